package checkup

import (
	"context"
	"fmt"

	"github.com/fleetmgr/maintenance/internal/directory"
	"github.com/fleetmgr/maintenance/internal/identity"
	"github.com/fleetmgr/maintenance/internal/pagedstore"
)

// fleetCheckups is the fleet-index partition value shared by all
// fleet-visible schedule rows.
const fleetCheckups = "CHECKUP"

// Scope selects which index and partition a role-scoped query runs against.
// It is a closed set: the three implementations below cover the three roles,
// and [ScopeForUser] fails for anything else so a newly introduced role
// cannot silently see the wrong data slice.
type Scope interface {
	query() (pagedstore.Index, string)
}

// TowerScope is the control tower's fleet-wide view.
type TowerScope struct{}

func (TowerScope) query() (pagedstore.Index, string) {
	return pagedstore.FleetIndex, fleetCheckups
}

// ManagerScope restricts queries to one fleet account.
type ManagerScope struct {
	AccountID string
}

func (s ManagerScope) query() (pagedstore.Index, string) {
	return pagedstore.Index{}, accountPartition(s.AccountID)
}

// ConsultantScope restricts queries to one dealership.
type ConsultantScope struct {
	DealershipID string
}

func (s ConsultantScope) query() (pagedstore.Index, string) {
	return pagedstore.Index{}, dealerPartition(s.DealershipID)
}

// ScopeForUser resolves the query scope for the caller's role. Consultants
// are resolved to their dealership through the consultant directory. Roles
// outside the closed set fail with [identity.ErrUnsupportedRole].
func ScopeForUser(ctx context.Context, user identity.User, consultants directory.ConsultantDirectory) (Scope, error) {
	switch user.Role {
	case identity.RoleTower:
		return TowerScope{}, nil

	case identity.RoleManager:
		return ManagerScope{AccountID: user.AccountID}, nil

	case identity.RoleConsultant:
		consultant, err := consultants.ConsultantByID(ctx, user.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve consultant %s: %w", user.UserID, err)
		}

		if consultant == nil || consultant.DealershipID == "" {
			return nil, fmt.Errorf("consultant %s has no dealership", user.UserID)
		}

		return ConsultantScope{DealershipID: consultant.DealershipID}, nil
	}

	return nil, fmt.Errorf("role %q: %w", user.Role, identity.ErrUnsupportedRole)
}
