package rbac

import (
	"errors"
	"strings"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

var ErrNotAdmin = errors.New("account is not allowed to use the admin console")

// Authorizer decides console access from an allow-list of admin emails.
type Authorizer struct {
	admins map[string]struct{}
}

func NewAuthorizer(emails []string) *Authorizer {
	a := &Authorizer{admins: make(map[string]struct{}, len(emails))}
	for _, email := range emails {
		if key := normalizeEmail(email); key != "" {
			a.admins[key] = struct{}{}
		}
	}
	return a
}

func (a *Authorizer) IsAdmin(email string) bool {
	if a == nil {
		return false
	}
	_, ok := a.admins[normalizeEmail(email)]
	return ok
}

// RoleFor is the role an account gets in tokens and profiles.
func (a *Authorizer) RoleFor(email string) Role {
	if a.IsAdmin(email) {
		return RoleAdmin
	}
	return RoleStudent
}

func (a *Authorizer) Require(email string) error {
	if !a.IsAdmin(email) {
		return ErrNotAdmin
	}
	return nil
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleStudent, RoleAdmin:
		return Role(role)
	default:
		return RoleStudent
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
