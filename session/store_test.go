package session_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/masterhub/authflow/roles"
	"github.com/masterhub/authflow/session"
	"github.com/masterhub/authflow/storage"
)

func newStore(t *testing.T, options ...session.StoreOption) *session.Store {
	t.Helper()
	s, err := session.NewStore(storage.NewMemory(0), options...)
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Save(session.Session{
		Token:  "t1",
		Role:   roles.Master,
		UserID: 7,
		Email:  "a@b.com",
	}))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "t1", loaded.Token)
	require.Equal(t, roles.Master, loaded.Role)
	require.Equal(t, int64(7), loaded.UserID)
	require.Equal(t, "a@b.com", loaded.Email)
	require.False(t, loaded.ExpiresAt.IsZero())
}

func TestSaveForcesSafeDefaultRole(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Save(session.Session{Token: "t1", UserID: 7}))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, roles.Client, loaded.Role)
}

func TestSaveRequiresToken(t *testing.T) {
	s := newStore(t)
	require.Error(t, s.Save(session.Session{Role: roles.Client}))
}

func TestSaveSetsFixedExpiryWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newStore(t, session.WithNowTime(func() time.Time { return now }))

	// Expiry is always one hour from Save; a caller-supplied expiry is
	// ignored because the API declares no TTL of its own.
	require.NoError(t, s.Save(session.Session{
		Token:     "t1",
		Role:      roles.Client,
		ExpiresAt: now.Add(24 * time.Hour),
	}))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, now.Add(time.Hour), loaded.ExpiresAt)
}

func TestLoadExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := now
	s := newStore(t, session.WithNowTime(func() time.Time { return current }))

	require.NoError(t, s.Save(session.Session{Token: "t1", Role: roles.Client}))

	current = now.Add(time.Hour + time.Second)
	loaded, err := s.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)

	// The expired entry is dropped, not served again at an earlier clock.
	current = now
	loaded, err = s.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestLoadAbsent(t *testing.T) {
	s := newStore(t)
	loaded, err := s.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestClear(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Save(session.Session{Token: "t1", Role: roles.Client}))
	require.NoError(t, s.Clear())

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestTokenClaims(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "42",
		"email": "a@b.com",
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := session.TokenClaims(signed)
	require.NoError(t, err)

	sub, err := claims.GetSubject()
	require.NoError(t, err)
	require.Equal(t, "42", sub)
}

func TestTokenClaimsRejectsOpaqueToken(t *testing.T) {
	_, err := session.TokenClaims("not-a-jwt")
	require.Error(t, err)
}
