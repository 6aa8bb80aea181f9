// Package csrfstate holds the single-use anti-forgery tokens that scope one
// OAuth attempt across the redirect round trip.
package csrfstate

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/masterhub/authflow/identity"
	"github.com/masterhub/authflow/storage"
)

const tokenLength = 32

// Vault generates, stores and validates per-provider CSRF state tokens.
// Tokens are single use: Validate deletes the stored token regardless of the
// match outcome, so a replayed callback can never validate twice.
type Vault struct {
	store storage.Store
}

// New creates a Vault over the given staging storage.
func New(store storage.Store) (*Vault, error) {
	if store == nil {
		return nil, errors.New("[csrfstate.New] storage is required")
	}
	return &Vault{store: store}, nil
}

// Begin generates a fresh random token for provider, stores it and returns it
// for embedding in the outbound authorization URL. A token already stored for
// the same provider is overwritten, cancelling the earlier attempt.
func (v *Vault) Begin(provider identity.Provider) (string, error) {
	if !provider.Valid() {
		return "", errors.Errorf("[Begin] invalid provider %q", provider)
	}
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "[Begin] rand.Read")
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if err := v.store.Set(key(provider), []byte(token)); err != nil {
		return "", errors.Wrap(err, "[Begin] store token")
	}
	return token, nil
}

// Validate reports whether a token stored for provider is byte-equal to
// supplied. The stored token is deleted first, so the check can only ever
// succeed once per Begin.
func (v *Vault) Validate(provider identity.Provider, supplied string) bool {
	stored, ok, err := v.store.Get(key(provider))
	if err != nil || !ok {
		return false
	}
	_ = v.store.Delete(key(provider))
	return supplied != "" && string(stored) == supplied
}

// Abandon deletes a stored token without validating it. Used on the error
// path of starting a redirect.
func (v *Vault) Abandon(provider identity.Provider) {
	_ = v.store.Delete(key(provider))
}

// AbandonAll clears stored tokens for every provider.
func (v *Vault) AbandonAll() {
	for _, p := range identity.Providers {
		v.Abandon(p)
	}
}

func key(provider identity.Provider) string {
	return "csrf/" + string(provider)
}
