package checkup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetmgr/maintenance/internal/pagedstore"
)

// ListOptions narrow a role-scoped schedule listing. A date range needs a
// state because the composite sort key orders state before date; filtering
// by date alone would require a full partition scan.
type ListOptions struct {
	State      *State
	From       *time.Time
	To         *time.Time
	Cursor     string
	Limit      int32
	Descending bool
}

// ErrDateFilterNeedsState reports a date-filtered listing without a state
// filter.
var ErrDateFilterNeedsState = errors.New("date filter requires a state filter")

// Repository is the persistence boundary for schedules.
type Repository interface {
	// Insert writes a new schedule under all of its mirror keys.
	Insert(ctx context.Context, s *Schedule) error

	// Update persists a mutated schedule. previous must be the loaded state
	// of the same schedule; when the lifecycle state changed, the rows are
	// re-keyed transactionally.
	Update(ctx context.Context, s, previous *Schedule) error

	// GetByID loads a schedule. Returns (nil, nil) when absent.
	GetByID(ctx context.Context, id string) (*Schedule, error)

	// List returns one page of schedules for a role scope.
	List(ctx context.Context, scope Scope, opts ListOptions) (*pagedstore.Page[Schedule], error)

	// ActiveByChassis returns the non-rejected, non-finished schedules for
	// a vehicle.
	ActiveByChassis(ctx context.Context, chassis string) ([]Schedule, error)
}

const scheduleKind = "SCHEDULE"

func accountPartition(accountID string) string { return "ACCOUNT#" + accountID }
func chassisPartition(chassis string) string   { return "CHASSIS#" + chassis }
func dealerPartition(dealershipID string) string {
	return "DEALER#" + dealershipID
}
func schedulePartition(id string) string { return "SCHEDULE#" + id }

// DynamoRepository implements [Repository] on the paged store.
type DynamoRepository struct {
	store *pagedstore.Store[Schedule]
}

// NewDynamoRepository wraps a connected store.
func NewDynamoRepository(store *pagedstore.Store[Schedule]) *DynamoRepository {
	return &DynamoRepository{store: store}
}

// scheduleKeys builds every row a schedule lives under: a by-id row plus
// mirrors by destination account, chassis, and (once assigned) dealership.
// The account mirror carries the fleet marker so the control tower sees
// exactly one copy.
func scheduleKeys(s *Schedule) []pagedstore.Key {
	sortParts := []string{scheduleKind, string(s.State), s.ScheduledAt.UTC().Format(time.RFC3339), s.ID}

	keys := []pagedstore.Key{
		{Partition: schedulePartition(s.ID), SortParts: []string{scheduleKind, string(s.State)}},
		{Partition: accountPartition(s.DestinationAccountID), SortParts: sortParts, Attrs: map[string]string{pagedstore.FleetAttr: fleetCheckups}},
		{Partition: chassisPartition(s.Vehicle.Chassis), SortParts: sortParts},
	}

	if s.Dealership != nil && s.Dealership.ID != "" {
		keys = append(keys, pagedstore.Key{Partition: dealerPartition(s.Dealership.ID), SortParts: sortParts})
	}

	return keys
}

// Insert implements [Repository].
func (r *DynamoRepository) Insert(ctx context.Context, s *Schedule) error {
	return r.store.Save(ctx, pagedstore.Record[Schedule]{Item: *s, Keys: scheduleKeys(s)})
}

// Update implements [Repository].
func (r *DynamoRepository) Update(ctx context.Context, s, previous *Schedule) error {
	rec := pagedstore.Record[Schedule]{Item: *s, Keys: scheduleKeys(s)}

	oldKeys := scheduleKeys(previous)
	if keysEqual(rec.Keys, oldKeys) {
		return r.store.Save(ctx, rec)
	}

	return r.store.Rekey(ctx, rec, oldKeys, nil)
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
func (r *DynamoRepository) GetByID(ctx context.Context, id string) (*Schedule, error) {
	if id == "" {
		return nil, errors.New("schedule id cannot be empty")
	}

	items, err := r.store.QueryAll(ctx, pagedstore.Query{
		Partition: schedulePartition(id),
		Prefix:    []string{scheduleKind},
	})
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, nil
	}

	if len(items) > 1 {
		return nil, fmt.Errorf("found %d rows for schedule %s, expected one", len(items), id)
	}

	return &items[0], nil
}

// List implements [Repository].
func (r *DynamoRepository) List(ctx context.Context, scope Scope, opts ListOptions) (*pagedstore.Page[Schedule], error) {
	index, partition := scope.query()

	query := pagedstore.Query{
		Partition:  partition,
		Index:      index,
		Prefix:     []string{scheduleKind},
		Descending: opts.Descending,
		Cursor:     opts.Cursor,
		Limit:      opts.Limit,
	}

	if opts.State != nil {
		query.Prefix = append(query.Prefix, string(*opts.State))
	}

	if opts.From != nil || opts.To != nil {
		if opts.State == nil {
			return nil, ErrDateFilterNeedsState
		}

		from, to := opts.From, opts.To
		if from == nil {
			epoch := time.Unix(0, 0)
			from = &epoch
		}
		if to == nil {
			far := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
			to = &far
		}

		query.Upper = append(append([]string{}, query.Prefix...), to.UTC().Format(time.RFC3339))
		query.Prefix = append(query.Prefix, from.UTC().Format(time.RFC3339))
	}

	return r.store.Query(ctx, query)
}

// ActiveByChassis implements [Repository]. Pending and confirmed schedules
// live under distinct state prefixes, so this is two short range scans.
func (r *DynamoRepository) ActiveByChassis(ctx context.Context, chassis string) ([]Schedule, error) {
	if chassis == "" {
		return nil, errors.New("chassis cannot be empty")
	}

	var active []Schedule

	for _, state := range []State{StatePending, StateConfirmed} {
		items, err := r.store.QueryAll(ctx, pagedstore.Query{
			Partition: chassisPartition(chassis),
			Prefix:    []string{scheduleKind, string(state)},
		})
		if err != nil {
			return nil, err
		}

		active = append(active, items...)
	}

	return active, nil
}
