package assistance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fleetmgr/maintenance/internal/directory"
	"github.com/fleetmgr/maintenance/internal/identity"
	"github.com/fleetmgr/maintenance/internal/pagedstore"
)

var (
	// ErrInvalidRequest reports malformed input.
	ErrInvalidRequest = errors.New("invalid case request")

	// ErrCaseNotFound reports an unknown case id.
	ErrCaseNotFound = errors.New("case not found")

	// ErrActiveCaseExists reports an attempt to open a second unfinished
	// case for the same vehicle.
	ErrActiveCaseExists = errors.New("vehicle already has an active case")

	// ErrCaseFinished reports a mutation on a finished case.
	ErrCaseFinished = errors.New("case is finished")

	// ErrDispatchExists reports a dispatch assignment while one is already
	// live. Cancel the live dispatch first.
	ErrDispatchExists = errors.New("case already has a live dispatch")

	// ErrNoDispatch reports a dispatch operation on a case with no live
	// dispatch.
	ErrNoDispatch = errors.New("case has no live dispatch")

	// ErrStepNotFound reports a step id absent from the checklist.
	ErrStepNotFound = errors.New("step not found")

	// ErrDefaultStepImmutable reports a rename or removal of a default
	// step.
	ErrDefaultStepImmutable = errors.New("default steps cannot be renamed or removed")
)

// defaultStepNames is the checklist every new dispatch starts with.
var defaultStepNames = []string{
	"Driver contacted",
	"Dealership notified",
	"Technician en route",
	"Service completed",
}

// CreateCaseRequest is the input to [Dispatcher.Create].
type CreateCaseRequest struct {
	OccurrenceType OccurrenceType
	Vehicle        VehicleSnapshot
	Location       *Location
	Description    string
	AccountID      string
}

func (r CreateCaseRequest) validate() error {
	if r.Vehicle.Chassis == "" {
		return fmt.Errorf("%w: vehicle chassis is required", ErrInvalidRequest)
	}

	if r.AccountID == "" {
		return fmt.Errorf("%w: account is required", ErrInvalidRequest)
	}

	if _, err := ParseOccurrenceType(string(r.OccurrenceType)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	return nil
}

// StepUpdate is a partial step mutation. Nil fields are left untouched.
type StepUpdate struct {
	Name *string
	Done *bool
}

// Dispatcher owns the roadside-assistance case lifecycle.
type Dispatcher struct {
	repo        Repository
	dealerships directory.DealershipDirectory
	consultants directory.ConsultantDirectory
	logger      logrus.FieldLogger
	clock       func() time.Time
	newID       func() string
}

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithClock sets a custom clock function. Defaults to [time.Now].
func WithClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.clock = clock
	}
}

// WithIDGenerator sets a custom id generator. Defaults to random UUIDs.
func WithIDGenerator(newID func() string) DispatcherOption {
	return func(d *Dispatcher) {
		d.newID = newID
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	repo Repository,
	dealerships directory.DealershipDirectory,
	consultants directory.ConsultantDirectory,
	logger logrus.FieldLogger,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		repo:        repo,
		dealerships: dealerships,
		consultants: consultants,
		logger:      logger.WithField("component", "assistance"),
		clock:       time.Now,
		newID:       uuid.NewString,
	}

	for _, o := range opts {
		o(d)
	}

	return d
}

// Create opens a case for a vehicle. The store-level guard row makes the
// one-active-case rule hold even under concurrent creates: the loser of the
// race gets [ErrActiveCaseExists].
func (d *Dispatcher) Create(ctx context.Context, user identity.User, req CreateCaseRequest) (*Case, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := d.clock().UTC()
	id := d.newID()

	c := &Case{
		ID:             id,
		Protocol:       buildProtocol(now, id),
		OccurrenceType: req.OccurrenceType,
		State:          StatePending,
		Vehicle:        req.Vehicle,
		Location:       req.Location,
		Description:    req.Description,
		AccountID:      req.AccountID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := d.repo.Insert(ctx, c); err != nil {
		if errors.Is(err, pagedstore.ErrConditionFailed) {
			return nil, fmt.Errorf("chassis %s: %w", req.Vehicle.Chassis, ErrActiveCaseExists)
		}

		return nil, fmt.Errorf("failed to persist case: %w", err)
	}

	d.appendHistory(ctx, c.ID, EventCreated, user, "")

	d.logger.WithFields(logrus.Fields{
		"case_id": c.ID,
		"chassis": c.Vehicle.Chassis,
		"type":    c.OccurrenceType,
	}).Info("assistance case opened")

	return c, nil
}

func buildProtocol(now time.Time, id string) string {
	short := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}

	return "RA-" + now.Format("20060102") + "-" + short
}

// AssignDispatch sends a dealership to the case. Only one dispatch can be
// live at a time: cancel the current one before assigning another.
func (d *Dispatcher) AssignDispatch(ctx context.Context, user identity.User, caseID, dealershipID string) (*Case, error) {
	c, err := d.getPending(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if c.Dispatch != nil {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrDispatchExists)
	}

	dealership, err := d.dealerships.DealershipByID(ctx, dealershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dealership %s: %w", dealershipID, err)
	}

	if dealership == nil {
		return nil, fmt.Errorf("%w: dealership %s not found", ErrInvalidRequest, dealershipID)
	}

	now := d.clock().UTC()

	steps := make([]Step, len(defaultStepNames))
	for i, name := range defaultStepNames {
		steps[i] = Step{ID: d.newID(), Name: name, IsDefault: true, UpdatedAt: now}
	}

	previous := *c
	c.Dispatch = &Dispatch{
		DealershipID: dealership.ID,
		FantasyName:  dealership.FantasyName,
		AssignedAt:   now,
		Steps:        steps,
	}
	c.UpdatedAt = now

	if err := d.repo.Update(ctx, c, &previous); err != nil {
		return nil, fmt.Errorf("failed to persist dispatch: %w", err)
	}

	d.appendHistory(ctx, c.ID, EventDispatchAssigned, user, dealership.ID)

	return c, nil
}

// CancelDispatch calls off the live dispatch. The dispatch moves onto the
// cancelled list with its checklist frozen, carrying the reason and the
// justification behind it, and the case can be dispatched again.
func (d *Dispatcher) CancelDispatch(ctx context.Context, user identity.User, caseID, reason, justification string) (*Case, error) {
	c, err := d.getPending(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if c.Dispatch == nil {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrNoDispatch)
	}

	now := d.clock().UTC()

	previous := *c
	cancelled := c.Dispatch
	c.CancelledDispatches = append(c.CancelledDispatches, CancelledDispatch{
		DealershipID:  cancelled.DealershipID,
		FantasyName:   cancelled.FantasyName,
		AssignedAt:    cancelled.AssignedAt,
		CancelledAt:   now,
		Reason:        reason,
		Justification: justification,
		Steps:         cancelled.Steps,
	})
	c.Dispatch = nil
	c.UpdatedAt = now

	if err := d.repo.Update(ctx, c, &previous); err != nil {
		return nil, fmt.Errorf("failed to persist cancellation: %w", err)
	}

	d.appendHistory(ctx, c.ID, EventDispatchCanceled, user, cancelled.DealershipID)

	return c, nil
}

// AddStep inserts a custom step at index, which may be anywhere from the
// front of the checklist to one past its end. Step changes are working
// state and leave no history entry.
func (d *Dispatcher) AddStep(ctx context.Context, caseID, name string, index int) (*Case, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: step name is required", ErrInvalidRequest)
	}

	c, err := d.getPending(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if c.Dispatch == nil {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrNoDispatch)
	}

	steps := c.Dispatch.Steps
	if index < 0 || index > len(steps) {
		return nil, fmt.Errorf("%w: step index %d out of range [0, %d]", ErrInvalidRequest, index, len(steps))
	}

	now := d.clock().UTC()
	step := Step{ID: d.newID(), Name: name, UpdatedAt: now}

	previous := *c
	c.Dispatch.Steps = append(steps[:index:index], append([]Step{step}, steps[index:]...)...)
	c.UpdatedAt = now

	if err := d.repo.Update(ctx, c, &previous); err != nil {
		return nil, fmt.Errorf("failed to persist step: %w", err)
	}

	return c, nil
}

// UpdateStep applies a partial mutation to the step with the given id.
// Default steps accept completion but not renaming.
func (d *Dispatcher) UpdateStep(ctx context.Context, caseID, stepID string, update StepUpdate) (*Case, error) {
	c, err := d.getPending(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if c.Dispatch == nil {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrNoDispatch)
	}

	index := findStep(c.Dispatch.Steps, stepID)
	if index < 0 {
		return nil, fmt.Errorf("step %s on case %s: %w", stepID, caseID, ErrStepNotFound)
	}

	step := &c.Dispatch.Steps[index]

	if update.Name != nil {
		if step.IsDefault {
			return nil, fmt.Errorf("step %s on case %s: %w", stepID, caseID, ErrDefaultStepImmutable)
		}

		if strings.TrimSpace(*update.Name) == "" {
			return nil, fmt.Errorf("%w: step name is required", ErrInvalidRequest)
		}
	}

	now := d.clock().UTC()

	previous := *c
	if update.Name != nil {
		step.Name = *update.Name
	}
	if update.Done != nil {
		step.Done = *update.Done
	}
	step.UpdatedAt = now
	c.UpdatedAt = now

	if err := d.repo.Update(ctx, c, &previous); err != nil {
		return nil, fmt.Errorf("failed to persist step: %w", err)
	}

	return c, nil
}

// DeleteStep removes the custom step with the given id. Default steps
// always refuse.
func (d *Dispatcher) DeleteStep(ctx context.Context, caseID, stepID string) (*Case, error) {
	c, err := d.getPending(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if c.Dispatch == nil {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrNoDispatch)
	}

	steps := c.Dispatch.Steps
	index := findStep(steps, stepID)
	if index < 0 {
		return nil, fmt.Errorf("step %s on case %s: %w", stepID, caseID, ErrStepNotFound)
	}

	if steps[index].IsDefault {
		return nil, fmt.Errorf("step %s on case %s: %w", stepID, caseID, ErrDefaultStepImmutable)
	}

	now := d.clock().UTC()

	previous := *c
	c.Dispatch.Steps = append(steps[:index:index], steps[index+1:]...)
	c.UpdatedAt = now

	if err := d.repo.Update(ctx, c, &previous); err != nil {
		return nil, fmt.Errorf("failed to persist step removal: %w", err)
	}

	return c, nil
}

func findStep(steps []Step, id string) int {
	for i := range steps {
		if steps[i].ID == id {
			return i
		}
	}

	return -1
}

// Finish closes the case and releases the vehicle's active-case guard, so a
// new case can be opened for the same vehicle.
func (d *Dispatcher) Finish(ctx context.Context, user identity.User, caseID string) (*Case, error) {
	c, err := d.getPending(ctx, caseID)
	if err != nil {
		return nil, err
	}

	now := d.clock().UTC()

	previous := *c
	c.State = StateFinished
	c.FinishedAt = &now
	c.UpdatedAt = now

	if err := d.repo.Update(ctx, c, &previous); err != nil {
		return nil, fmt.Errorf("failed to persist finish: %w", err)
	}

	d.appendHistory(ctx, c.ID, EventFinished, user, "")

	d.logger.WithField("case_id", c.ID).Info("assistance case finished")

	return c, nil
}

// Get loads one case by id.
func (d *Dispatcher) Get(ctx context.Context, caseID string) (*Case, error) {
	return d.get(ctx, caseID)
}

// History returns the case's append-only history, oldest first.
func (d *Dispatcher) History(ctx context.Context, caseID string) ([]HistoryEntry, error) {
	if _, err := d.get(ctx, caseID); err != nil {
		return nil, err
	}

	return d.repo.HistoryByCase(ctx, caseID)
}

// List returns one page of cases visible to the caller's role scope.
func (d *Dispatcher) List(ctx context.Context, user identity.User, opts ListOptions) (*pagedstore.Page[Case], error) {
	scope, err := ScopeForUser(ctx, user, d.consultants)
	if err != nil {
		return nil, err
	}

	return d.repo.List(ctx, scope, opts)
}

func (d *Dispatcher) get(ctx context.Context, caseID string) (*Case, error) {
	if caseID == "" {
		return nil, fmt.Errorf("%w: case id is required", ErrInvalidRequest)
	}

	c, err := d.repo.GetByID(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", caseID, err)
	}

	if c == nil {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrCaseNotFound)
	}

	return c, nil
}

func (d *Dispatcher) getPending(ctx context.Context, caseID string) (*Case, error) {
	c, err := d.get(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if c.IsFinished() {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrCaseFinished)
	}

	return c, nil
}

// appendHistory records a case-level event. History write failures are
// logged, not surfaced: the state change already committed and the caller
// can do nothing useful with the error.
func (d *Dispatcher) appendHistory(ctx context.Context, caseID string, event EventType, user identity.User, dealershipID string) {
	entry := HistoryEntry{
		CaseID:       caseID,
		Type:         event,
		Actor:        d.resolveActor(ctx, user),
		OccurredAt:   d.clock().UTC(),
		DealershipID: dealershipID,
	}

	if err := d.repo.AppendHistory(ctx, entry); err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"case_id": caseID,
			"event":   event,
		}).Error("failed to append case history")
	}
}

// resolveActor snapshots the acting user for a history entry. A consultant's
// dealership is looked up at write time; later reassignments must not
// rewrite who acted from where.
func (d *Dispatcher) resolveActor(ctx context.Context, user identity.User) Actor {
	actor := Actor{
		UserID:    user.UserID,
		AccountID: user.AccountID,
		Role:      string(user.Role),
	}

	if user.Role != identity.RoleConsultant {
		return actor
	}

	consultant, err := d.consultants.ConsultantByID(ctx, user.UserID)
	if err != nil {
		d.logger.WithError(err).WithField("user_id", user.UserID).Warn("failed to resolve acting consultant for history")
		return actor
	}

	if consultant == nil || consultant.DealershipID == "" {
		return actor
	}

	actor.DealershipID = consultant.DealershipID

	dealership, err := d.dealerships.DealershipByID(ctx, consultant.DealershipID)
	if err != nil {
		d.logger.WithError(err).WithField("dealership_id", consultant.DealershipID).Warn("failed to resolve acting consultant's dealership for history")
		return actor
	}

	if dealership != nil {
		actor.DealershipName = dealership.FantasyName
	}

	return actor
}
