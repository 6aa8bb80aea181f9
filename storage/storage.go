// Package storage provides the staging storage shared by the credential
// store, the CSRF vault and the pending-intent cache. It is the only state
// that survives a process restart mid-flow, so implementations must persist
// writes before returning where the backing medium allows it.
package storage

// Store is a flat key-value store. Values are opaque bytes; keys are
// namespaced by the owning component (e.g. "csrf/google").
type Store interface {
	// Set stores value under key, overwriting any previous value.
	Set(key string, value []byte) error

	// Get returns the value for key and whether it exists.
	Get(key string) ([]byte, bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}
