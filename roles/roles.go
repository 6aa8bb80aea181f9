// Package roles defines the canonical account role and the single place where
// raw server role strings are classified.
package roles

import (
	"fmt"
	"strings"
)

// Role represents the canonical account type: a master offers services,
// a client requests them. Always lower-case and singular, never the raw
// server string.
type Role string

const (
	Master Role = "master"
	Client Role = "client"
)

// Default is the role substituted whenever a role list is empty or carries no
// recognizable indicator. Ambiguity must never escalate to master.
const Default = Client

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	return r == Master || r == Client
}

func (r Role) String() string {
	return string(r)
}

// Parse converts a user-supplied role string (CLI flag, form field) into a
// canonical Role.
func Parse(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "master", "role_master":
		return Master, nil
	case "client", "role_client":
		return Client, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Resolve maps a raw server role list to exactly one canonical Role.
// Matching is case-insensitive: any of {role_master, master} wins over any of
// {role_client, client}; a list with neither (including the empty list)
// resolves to Default. Resolve is total and performs no I/O.
func Resolve(raw []string) Role {
	client := false
	for _, r := range raw {
		switch strings.ToLower(strings.TrimSpace(r)) {
		case "role_master", "master":
			return Master
		case "role_client", "client":
			client = true
		}
	}
	if client {
		return Client
	}
	return Default
}
