// Package intent stages the user's declared role and specialty before the
// page is left for a provider, so the choice survives the redirect (or a
// crashed widget) and can be replayed on return.
package intent

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/masterhub/authflow/identity"
	"github.com/masterhub/authflow/roles"
	"github.com/masterhub/authflow/storage"
)

// PendingIntent is the role/specialty choice declared before an external
// provider round trip. At most one exists per provider.
type PendingIntent struct {
	Provider    identity.Provider `json:"provider"`
	Role        roles.Role        `json:"role"`
	SpecialtyID int               `json:"specialtyId,omitempty"`
}

// Cache stores pending intents keyed by provider.
type Cache struct {
	store storage.Store
}

// New creates a Cache over the given staging storage.
func New(store storage.Store) (*Cache, error) {
	if store == nil {
		return nil, errors.New("[intent.New] storage is required")
	}
	return &Cache{store: store}, nil
}

// Stage stores pi, overwriting any existing intent for the same provider.
// Starting a new attempt cancels the previous one.
func (c *Cache) Stage(pi PendingIntent) error {
	if !pi.Provider.Valid() {
		return errors.Errorf("[Stage] invalid provider %q", pi.Provider)
	}
	if !pi.Role.Valid() {
		pi.Role = roles.Default
	}
	data, err := json.Marshal(pi)
	if err != nil {
		return errors.Wrap(err, "[Stage] encode intent")
	}
	if err := c.store.Set(key(pi.Provider), data); err != nil {
		return errors.Wrap(err, "[Stage] store intent")
	}
	return nil
}

// Consume reads and deletes the intent for provider in one logical step.
// Returns nil when nothing is staged.
func (c *Cache) Consume(provider identity.Provider) (*PendingIntent, error) {
	data, ok, err := c.store.Get(key(provider))
	if err != nil {
		return nil, errors.Wrap(err, "[Consume] read intent")
	}
	if !ok {
		return nil, nil
	}
	_ = c.store.Delete(key(provider))

	var pi PendingIntent
	if err := json.Unmarshal(data, &pi); err != nil {
		return nil, nil
	}
	if !pi.Role.Valid() {
		pi.Role = roles.Default
	}
	return &pi, nil
}

// Clear deletes any staged intent for provider without reading it.
func (c *Cache) Clear(provider identity.Provider) {
	_ = c.store.Delete(key(provider))
}

// ClearAll deletes staged intents for every provider.
func (c *Cache) ClearAll() {
	for _, p := range identity.Providers {
		c.Clear(p)
	}
}

func key(provider identity.Provider) string {
	return "intent/" + string(provider)
}
