// Package identity carries the per-request user context consumed by the
// domain services: the acting account, user, and role. Authentication policy
// itself lives outside this service; the token is verified at the transport
// edge and only these three fields flow inward.
package identity

import (
	"errors"
	"fmt"
)

// Role is the closed set of caller roles. Query scoping dispatches
// exhaustively over it; a role outside the set fails with
// [ErrUnsupportedRole] rather than falling into a default data slice.
type Role string

const (
	// RoleTower is the fleet-wide control tower operator, the broadest
	// visibility scope.
	RoleTower Role = "CONTROL_TOWER"

	// RoleManager is a fleet manager scoped to their own account.
	RoleManager Role = "FLEET_MANAGER"

	// RoleConsultant is a dealership consultant scoped to their dealership.
	RoleConsultant Role = "DEALERSHIP_CONSULTANT"
)

// ErrUnsupportedRole reports a role outside the closed set. It is fatal for
// the request and never retried.
var ErrUnsupportedRole = errors.New("unsupported role")

// ParseRole validates a raw role string against the closed set.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleTower, RoleManager, RoleConsultant:
		return Role(raw), nil
	}

	return "", fmt.Errorf("role %q: %w", raw, ErrUnsupportedRole)
}

// User is the current caller as supplied by the transport layer.
type User struct {
	AccountID string
	UserID    string
	Role      Role
}

// Validate checks that the user context is complete.
func (u User) Validate() error {
	if u.AccountID == "" {
		return errors.New("user account id cannot be empty")
	}

	if u.UserID == "" {
		return errors.New("user id cannot be empty")
	}

	_, err := ParseRole(string(u.Role))

	return err
}
