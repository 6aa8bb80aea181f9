package identity

import (
	"github.com/masterhub/authflow/roles"
)

// Provider identifies an external identity provider.
type Provider string

const (
	Google    Provider = "google"
	Facebook  Provider = "facebook"
	Instagram Provider = "instagram"
	Telegram  Provider = "telegram"
)

// Providers lists every supported provider. Used when clearing staged flow
// state across the board.
var Providers = []Provider{Google, Facebook, Instagram, Telegram}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	switch p {
	case Google, Facebook, Instagram, Telegram:
		return true
	}
	return false
}

// Redirecting reports whether p authenticates through a full redirect
// round trip (as opposed to Telegram's in-page widget).
func (p Provider) Redirecting() bool {
	return p.Valid() && p != Telegram
}

// User is the profile snapshot returned by the identity API. Roles carries
// the raw server vocabulary; it is classified through roles.Resolve exactly
// once, at session finalization.
type User struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email,omitempty"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// AuthResult is the common response shape of the OAuth and Telegram callback
// endpoints.
type AuthResult struct {
	User    User   `json:"user"`
	Token   string `json:"token"`
	Message string `json:"message,omitempty"`
}

// OAuthExchange is the body of the provider callback endpoint.
type OAuthExchange struct {
	Code       string     `json:"code"`
	State      string     `json:"state"`
	Role       roles.Role `json:"role"`
	Occupation *int       `json:"occupation,omitempty"`
}

// TelegramExchange is the body of the Telegram callback endpoint. The widget
// payload fields are passed through; role and occupation come from the staged
// intent.
type TelegramExchange struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username,omitempty"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName,omitempty"`
	PhotoURL   string     `json:"photoUrl,omitempty"`
	AuthDate   int64      `json:"authDate,omitempty"`
	Hash       string     `json:"hash,omitempty"`
	Role       roles.Role `json:"role"`
	Occupation *int       `json:"occupation,omitempty"`
}

// Registration is the body of the user creation endpoint.
type Registration struct {
	Email      string     `json:"email"`
	Password   string     `json:"password"`
	FirstName  string     `json:"firstName,omitempty"`
	LastName   string     `json:"lastName,omitempty"`
	Role       roles.Role `json:"role"`
	Occupation *int       `json:"occupation,omitempty"`
}
