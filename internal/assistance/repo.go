package assistance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetmgr/maintenance/internal/directory"
	"github.com/fleetmgr/maintenance/internal/identity"
	"github.com/fleetmgr/maintenance/internal/pagedstore"
)

// fleetAssistance is the fleet-index partition value shared by all
// fleet-visible case rows.
const fleetAssistance = "ASSISTANCE"

const (
	caseKind    = "CASE"
	historyKind = "HISTORY"

	// activeCaseMarker is the sort key of the bodyless guard row that
	// enforces one unfinished case per vehicle. The guard lives in the
	// vehicle's chassis partition and is written with a not-exists
	// condition, so two concurrent creates cannot both succeed.
	activeCaseMarker = "ACTIVECASE"
)

// historyStampFormat keeps nanosecond timestamps at a fixed width so the
// lexical sort-key order matches chronological order.
const historyStampFormat = "2006-01-02T15:04:05.000000000Z"

func accountPartition(accountID string) string { return "ACCOUNT#" + accountID }
func chassisPartition(chassis string) string   { return "CHASSIS#" + chassis }
func dealerPartition(dealershipID string) string {
	return "DEALER#" + dealershipID
}
func casePartition(id string) string { return "CASE#" + id }

// Scope selects which index and partition a role-scoped case listing runs
// against. Same closed set as the checkup side: tower, manager, consultant.
type Scope interface {
	query() (pagedstore.Index, string)
}

// TowerScope is the control tower's fleet-wide view.
type TowerScope struct{}

func (TowerScope) query() (pagedstore.Index, string) {
	return pagedstore.FleetIndex, fleetAssistance
}

// ManagerScope restricts queries to one fleet account.
type ManagerScope struct {
	AccountID string
}

func (s ManagerScope) query() (pagedstore.Index, string) {
	return pagedstore.Index{}, accountPartition(s.AccountID)
}

// ConsultantScope restricts queries to cases dispatched to one dealership.
type ConsultantScope struct {
	DealershipID string
}

func (s ConsultantScope) query() (pagedstore.Index, string) {
	return pagedstore.Index{}, dealerPartition(s.DealershipID)
}

// ScopeForUser resolves the query scope for the caller's role.
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

// ListOptions narrow a role-scoped case listing.
type ListOptions struct {
	State      *State
	Cursor     string
	Limit      int32
	Descending bool
}

// Repository is the persistence boundary for cases and their history.
type Repository interface {
	// Insert writes a new case and its active-case guard. Returns
	// [pagedstore.ErrConditionFailed] when the vehicle already has an
	// unfinished case.
	Insert(ctx context.Context, c *Case) error

	// Update persists a mutated case. previous must be the loaded state of
	// the same case. Finishing the case releases its guard in the same
	// transaction.
	Update(ctx context.Context, c, previous *Case) error

	// GetByID loads a case. Returns (nil, nil) when absent.
	GetByID(ctx context.Context, id string) (*Case, error)

	// List returns one page of cases for a role scope.
	List(ctx context.Context, scope Scope, opts ListOptions) (*pagedstore.Page[Case], error)

	// AppendHistory appends one history entry for a case.
	AppendHistory(ctx context.Context, entry HistoryEntry) error

	// HistoryByCase returns a case's full history in chronological order.
	HistoryByCase(ctx context.Context, caseID string) ([]HistoryEntry, error)
}

// DynamoRepository implements [Repository] on two views of the same table:
// one typed store for case bodies, one for history entries.
type DynamoRepository struct {
	cases   *pagedstore.Store[Case]
	history *pagedstore.Store[HistoryEntry]
}

// NewDynamoRepository wraps connected stores.
func NewDynamoRepository(cases *pagedstore.Store[Case], history *pagedstore.Store[HistoryEntry]) *DynamoRepository {
	return &DynamoRepository{cases: cases, history: history}
}

// caseKeys builds every row a case lives under: a by-id row plus mirrors by
// account, chassis, and (while a dispatch is assigned) dealership. The
// account mirror carries the fleet marker.
func caseKeys(c *Case) []pagedstore.Key {
	sortParts := []string{caseKind, string(c.State), c.CreatedAt.UTC().Format(time.RFC3339), c.ID}

	keys := []pagedstore.Key{
		{Partition: casePartition(c.ID), SortParts: []string{caseKind, string(c.State)}},
		{Partition: accountPartition(c.AccountID), SortParts: sortParts, Attrs: map[string]string{pagedstore.FleetAttr: fleetAssistance}},
		{Partition: chassisPartition(c.Vehicle.Chassis), SortParts: sortParts},
	}

	if c.Dispatch != nil {
		keys = append(keys, pagedstore.Key{Partition: dealerPartition(c.Dispatch.DealershipID), SortParts: sortParts})
	}

	return keys
}

func guardKey(c *Case) pagedstore.Key {
	return pagedstore.Key{Partition: chassisPartition(c.Vehicle.Chassis), SortParts: []string{activeCaseMarker}}
}

// Insert implements [Repository].
func (r *DynamoRepository) Insert(ctx context.Context, c *Case) error {
	return r.cases.Save(ctx, pagedstore.Record[Case]{
		Item:   *c,
		Keys:   caseKeys(c),
		Guards: []pagedstore.Key{guardKey(c)},
	})
}

// Update implements [Repository].
func (r *DynamoRepository) Update(ctx context.Context, c, previous *Case) error {
	rec := pagedstore.Record[Case]{Item: *c, Keys: caseKeys(c)}
	oldKeys := caseKeys(previous)

	var unguard []pagedstore.Key
	if c.IsFinished() && !previous.IsFinished() {
		unguard = []pagedstore.Key{guardKey(c)}
	}

	if len(unguard) == 0 && keysEqual(rec.Keys, oldKeys) {
		return r.cases.Save(ctx, rec)
	}

	return r.cases.Rekey(ctx, rec, oldKeys, unguard)
}

func keysEqual(a, b []pagedstore.Key) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i].Partition != b[i].Partition {
			return false
		}

		if pagedstore.ComposeSortKey(a[i].SortParts...) != pagedstore.ComposeSortKey(b[i].SortParts...) {
			return false
		}
	}

	return true
}

// GetByID implements [Repository]. The by-id row's sort key embeds the
// state, so the lookup is a short prefix query rather than a point get.
func (r *DynamoRepository) GetByID(ctx context.Context, id string) (*Case, error) {
	if id == "" {
		return nil, errors.New("case id cannot be empty")
	}

	items, err := r.cases.QueryAll(ctx, pagedstore.Query{
		Partition: casePartition(id),
		Prefix:    []string{caseKind},
	})
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, nil
	}

	if len(items) > 1 {
		return nil, fmt.Errorf("found %d rows for case %s, expected one", len(items), id)
	}

	return &items[0], nil
}

// List implements [Repository].
func (r *DynamoRepository) List(ctx context.Context, scope Scope, opts ListOptions) (*pagedstore.Page[Case], error) {
	index, partition := scope.query()

	query := pagedstore.Query{
		Partition:  partition,
		Index:      index,
		Prefix:     []string{caseKind},
		Descending: opts.Descending,
		Cursor:     opts.Cursor,
		Limit:      opts.Limit,
	}

	if opts.State != nil {
		query.Prefix = append(query.Prefix, string(*opts.State))
	}

	return r.cases.Query(ctx, query)
}

// AppendHistory implements [Repository]. Entries live in the case's own
// partition under a fixed-width timestamp sort key, so a prefix query walks
// them oldest first.
func (r *DynamoRepository) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	if entry.CaseID == "" {
		return errors.New("history entry needs a case id")
	}

	key := pagedstore.Key{
		Partition: casePartition(entry.CaseID),
		SortParts: []string{historyKind, entry.OccurredAt.UTC().Format(historyStampFormat), string(entry.Type)},
	}

	return r.history.Save(ctx, pagedstore.Record[HistoryEntry]{Item: entry, Keys: []pagedstore.Key{key}})
}

// HistoryByCase implements [Repository].
func (r *DynamoRepository) HistoryByCase(ctx context.Context, caseID string) ([]HistoryEntry, error) {
	if caseID == "" {
		return nil, errors.New("case id cannot be empty")
	}

	return r.history.QueryAll(ctx, pagedstore.Query{
		Partition: casePartition(caseID),
		Prefix:    []string{historyKind},
	})
}
