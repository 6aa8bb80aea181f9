package session

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/masterhub/authflow/roles"
	"github.com/masterhub/authflow/storage"
)

const storageKey = "session"

// DefaultTTL is the fixed validity window applied from the moment of Save.
// The upstream API declares no token TTL, so the store imposes its own.
const DefaultTTL = time.Hour

// Store persists the Session as a single value, so token, expiry and user
// snapshot are written and read atomically. No network access happens here.
type Store struct {
	store   storage.Store
	ttl     time.Duration
	nowTime func() time.Time
}

// StoreOption modifies a Store.
type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// WithTTL overrides the validity window (primarily for testing)
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewStore creates a Store over the given staging storage.
func NewStore(st storage.Store, options ...StoreOption) (*Store, error) {
	if st == nil {
		return nil, errors.New("[NewStore] storage is required")
	}
	s := &Store{
		store:   st,
		ttl:     DefaultTTL,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Save persists sess with its expiry advanced by the store's TTL from now.
// An invalid or absent role is replaced by the safe default before the write;
// a reader can never observe a token without a role.
func (s *Store) Save(sess Session) error {
	if sess.Token == "" {
		return errors.New("[Save] session token is required")
	}
	if !sess.Role.Valid() {
		sess.Role = roles.Default
	}
	sess.ExpiresAt = s.nowTime().Add(s.ttl)

	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "[Save] encode session")
	}
	if err := s.store.Set(storageKey, data); err != nil {
		return errors.Wrap(err, "[Save] write session")
	}
	return nil
}

// Load returns the persisted session, or nil when none exists or the expiry
// has passed. An expired session is cleared on the way out.
func (s *Store) Load() (*Session, error) {
	data, ok, err := s.store.Get(storageKey)
	if err != nil {
		return nil, errors.Wrap(err, "[Load] read session")
	}
	if !ok {
		return nil, nil
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// A torn or foreign value is unusable; drop it rather than serve it.
		_ = s.store.Delete(storageKey)
		return nil, nil
	}
	if sess.Token == "" || sess.Expired(s.nowTime()) {
		_ = s.store.Delete(storageKey)
		return nil, nil
	}
	if !sess.Role.Valid() {
		sess.Role = roles.Default
	}
	return &sess, nil
}

// Clear removes any persisted session.
func (s *Store) Clear() error {
	return errors.Wrap(s.store.Delete(storageKey), "[Clear] delete session")
}
