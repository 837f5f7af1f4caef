// Package account projects users into the shapes exposed to clients.
package account

import (
	"github.com/tbranch/accountlink/internal/auth/user"
)

// Status is the client-facing view of the current session's account.
//
// Email and EmailVerified are nil for anonymous users so guest accounts
// never leak contact details.
type Status struct {
	Authenticated bool            `json:"authenticated"`
	UserID        string          `json:"userId,omitempty"`
	Name          string          `json:"name,omitempty"`
	Email         *string         `json:"email,omitempty"`
	EmailVerified *bool           `json:"isEmailVerified,omitempty"`
	Roles         []string        `json:"roles,omitempty"`
	Providers     map[string]bool `json:"providers"`
}

// StatusFor projects a user (nil for signed-out sessions) against the set
// of configured providers.
//
// The providers map always covers every configured provider so clients
// can render link buttons without a second call.
func StatusFor(u *user.User, configured []user.Provider) Status {
	status := Status{
		Providers: make(map[string]bool, len(configured)),
	}
	for _, provider := range configured {
		status.Providers[string(provider)] = false
	}

	if u == nil {
		return status
	}

	status.Authenticated = true
	status.UserID = u.ID
	status.Name = u.Name
	for _, role := range u.Roles {
		status.Roles = append(status.Roles, string(role))
	}
	for _, identity := range u.Providers {
		if _, known := status.Providers[string(identity.Provider)]; known {
			status.Providers[string(identity.Provider)] = true
		}
	}

	if !u.IsAnonymous() {
		email := u.Email
		verified := u.EmailVerified
		status.Email = &email
		status.EmailVerified = &verified
	}
	return status
}
