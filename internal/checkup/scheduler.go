package checkup

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
	// ErrInvalidRequest reports malformed input. It is a caller mistake and
	// never retried.
	ErrInvalidRequest = errors.New("invalid schedule request")

	// ErrScheduleNotFound reports an unknown schedule id.
	ErrScheduleNotFound = errors.New("schedule not found")
)

// CreateRequest is the input to [Scheduler.Create].
type CreateRequest struct {
	ScheduledAt          time.Time
	Vehicle              VehicleSnapshot
	CheckupType          CheckupType
	SourceAccountID      string
	DestinationAccountID string
}

func (r CreateRequest) validate() error {
	if r.Vehicle.Chassis == "" {
		return fmt.Errorf("%w: vehicle chassis is required", ErrInvalidRequest)
	}

	if r.DestinationAccountID == "" {
		return fmt.Errorf("%w: destination account is required", ErrInvalidRequest)
	}

	if r.SourceAccountID == "" {
		return fmt.Errorf("%w: source account is required", ErrInvalidRequest)
	}

	if r.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled date is required", ErrInvalidRequest)
	}

	return nil
}

// Scheduler owns the checkup schedule lifecycle.
type Scheduler struct {
	repo        Repository
	campaigns   directory.CampaignCatalog
	consultants directory.ConsultantDirectory
	dealerships directory.DealershipDirectory
	logger      logrus.FieldLogger
	clock       func() time.Time
	newID       func() string
}

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithClock sets a custom clock function. Defaults to [time.Now]. This is
// useful for controlling time in tests.
func WithClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithIDGenerator sets a custom id generator. Defaults to random UUIDs.
func WithIDGenerator(newID func() string) SchedulerOption {
	return func(s *Scheduler) {
		s.newID = newID
	}
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	repo Repository,
	campaigns directory.CampaignCatalog,
	consultants directory.ConsultantDirectory,
	dealerships directory.DealershipDirectory,
	logger logrus.FieldLogger,
	opts ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		repo:        repo,
		campaigns:   campaigns,
		consultants: consultants,
		dealerships: dealerships,
		logger:      logger.WithField("component", "checkup"),
		clock:       time.Now,
		newID:       uuid.NewString,
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Create validates the request, matches open recall campaigns for the
// chassis, and persists a new pending schedule reachable by account,
// chassis, and (later) dealership.
func (s *Scheduler) Create(ctx context.Context, req CreateRequest) (*Schedule, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	active, err := s.repo.ActiveByChassis(ctx, req.Vehicle.Chassis)
	if err != nil {
		return nil, fmt.Errorf("failed to load active schedules for chassis %s: %w", req.Vehicle.Chassis, err)
	}

	open, err := s.campaigns.PendingCampaignsByChassis(ctx, req.Vehicle.Chassis)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaigns for chassis %s: %w", req.Vehicle.Chassis, err)
	}

	now := s.clock().UTC()
	id := s.newID()

	schedule := &Schedule{
		ID:                   id,
		Protocol:             buildProtocol(now, id),
		ScheduledAt:          req.ScheduledAt.UTC(),
		State:                StatePending,
		Vehicle:              req.Vehicle,
		Campaigns:            MatchedCampaigns(open, active),
		CheckupType:          req.CheckupType,
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Insert(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to persist schedule: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": schedule.ID,
		"chassis":     schedule.Vehicle.Chassis,
	}).Info("checkup schedule created")

	return schedule, nil
}

// buildProtocol derives the human-readable reference from the creation day
// and the schedule id.
func buildProtocol(now time.Time, id string) string {
	short := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}

	return "CK-" + now.Format("20060102") + "-" + short
}

// Assign attaches a consultant and their dealership to the schedule,
// resolving both through the directories at assignment time.
func (s *Scheduler) Assign(ctx context.Context, scheduleID, consultantUserID string) (*Schedule, error) {
	schedule, err := s.get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	if !schedule.IsActive() {
		return nil, fmt.Errorf("schedule %s is %s: %w", scheduleID, schedule.State, ErrInvalidTransition)
	}

	consultant, err := s.consultants.ConsultantByID(ctx, consultantUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve consultant %s: %w", consultantUserID, err)
	}

	if consultant == nil {
		return nil, fmt.Errorf("%w: user %s is not a consultant", ErrInvalidRequest, consultantUserID)
	}

	dealership, err := s.dealerships.DealershipByID(ctx, consultant.DealershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dealership %s: %w", consultant.DealershipID, err)
	}

	if dealership == nil {
		return nil, fmt.Errorf("%w: dealership %s not found", ErrInvalidRequest, consultant.DealershipID)
	}

	previous := *schedule
	schedule.Consultant = &Consultant{UserID: consultantUserID}
	schedule.Dealership = &DealershipRef{ID: dealership.ID, FantasyName: dealership.FantasyName}
	schedule.UpdatedAt = s.clock().UTC()

	if err := s.repo.Update(ctx, schedule, &previous); err != nil {
		return nil, fmt.Errorf("failed to persist assignment: %w", err)
	}

	return schedule, nil
}

// Confirm moves a pending schedule to confirmed.
func (s *Scheduler) Confirm(ctx context.Context, scheduleID string) (*Schedule, error) {
	return s.transition(ctx, scheduleID, StateConfirmed, nil)
}

// Reject cancels a schedule. The record is never deleted: it flips to the
// terminal rejected state and stops counting as active.
func (s *Scheduler) Reject(ctx context.Context, scheduleID string) (*Schedule, error) {
	return s.transition(ctx, scheduleID, StateRejected, nil)
}

// Finish closes a confirmed schedule with its maintenance outcome.
func (s *Scheduler) Finish(ctx context.Context, scheduleID string, outcome Outcome) (*Schedule, error) {
	return s.transition(ctx, scheduleID, StateFinished, &outcome)
}

func (s *Scheduler) transition(ctx context.Context, scheduleID string, next State, outcome *Outcome) (*Schedule, error) {
	schedule, err := s.get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	if !schedule.State.CanTransition(next) {
		return nil, fmt.Errorf("schedule %s cannot move from %s to %s: %w", scheduleID, schedule.State, next, ErrInvalidTransition)
	}

	previous := *schedule
	schedule.State = next
	schedule.UpdatedAt = s.clock().UTC()

	if outcome != nil {
		schedule.Outcome = outcome
	}

	if err := s.repo.Update(ctx, schedule, &previous); err != nil {
		return nil, fmt.Errorf("failed to persist transition to %s: %w", next, err)
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": schedule.ID,
		"state":       schedule.State,
	}).Info("checkup schedule transitioned")

	return schedule, nil
}

// Get loads one schedule by id.
func (s *Scheduler) Get(ctx context.Context, scheduleID string) (*Schedule, error) {
	return s.get(ctx, scheduleID)
}

func (s *Scheduler) get(ctx context.Context, scheduleID string) (*Schedule, error) {
	if scheduleID == "" {
		return nil, fmt.Errorf("%w: schedule id is required", ErrInvalidRequest)
	}

	schedule, err := s.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %s: %w", scheduleID, err)
	}

	if schedule == nil {
		return nil, fmt.Errorf("schedule %s: %w", scheduleID, ErrScheduleNotFound)
	}

	return schedule, nil
}

// List returns one page of schedules visible to the caller's role scope.
func (s *Scheduler) List(ctx context.Context, user identity.User, opts ListOptions) (*pagedstore.Page[Schedule], error) {
	scope, err := ScopeForUser(ctx, user, s.consultants)
	if err != nil {
		return nil, err
	}

	return s.repo.List(ctx, scope, opts)
}

// VehicleStatus is the overdue evaluation for one vehicle.
type VehicleStatus struct {
	Chassis          string
	Late             bool
	MatchedCampaigns []string
}

// EvaluateVehicle combines metrics, the maintenance-group convention, open
// campaigns, and the vehicle's active schedules into its overdue status.
// Vehicles in unknown maintenance groups are never late.
func (s *Scheduler) EvaluateVehicle(ctx context.Context, asset directory.Asset) (*VehicleStatus, error) {
	active, err := s.repo.ActiveByChassis(ctx, asset.Chassis)
	if err != nil {
		return nil, fmt.Errorf("failed to load active schedules for chassis %s: %w", asset.Chassis, err)
	}

	open, err := s.campaigns.PendingCampaignsByChassis(ctx, asset.Chassis)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaigns for chassis %s: %w", asset.Chassis, err)
	}

	status := &VehicleStatus{
		Chassis:          asset.Chassis,
		MatchedCampaigns: MatchedCampaigns(open, active),
	}

	group, ok := GroupByName(asset.MaintenanceGroup)
	if !ok {
		return status, nil
	}

	if threshold := group.NextDue(asset.Metrics); threshold != nil {
		status.Late = IsLate(asset.Metrics, *threshold, active)
	}

	return status, nil
}
