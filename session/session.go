// Package session owns the authenticated result of any flow: the bearer
// token, its expiry, the resolved role and the user identity.
package session

import (
	"time"

	"github.com/masterhub/authflow/roles"
)

// Session is the persisted outcome of a successful authentication. It is
// created only by a completed exchange and destroyed on logout or a detected
// 401. A Session is never persisted without a role.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Role      roles.Role `json:"role"`
	UserID    int64      `json:"userId"`
	Email     string     `json:"email,omitempty"`
}

// Expired reports whether the session's expiry has passed at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
