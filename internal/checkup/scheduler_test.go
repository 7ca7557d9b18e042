package checkup

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmgr/maintenance/internal/directory"
	"github.com/fleetmgr/maintenance/internal/identity"
	"github.com/fleetmgr/maintenance/internal/pagedstore"
)

// memoryRepo is an in-memory Repository for service-level tests.
type memoryRepo struct {
	schedules map[string]*Schedule
	insertErr error
	updateErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{schedules: make(map[string]*Schedule)}
}

func (r *memoryRepo) Insert(_ context.Context, s *Schedule) error {
	if r.insertErr != nil {
		return r.insertErr
	}

	clone := *s
	r.schedules[s.ID] = &clone
	return nil
}

func (r *memoryRepo) Update(_ context.Context, s, _ *Schedule) error {
	if r.updateErr != nil {
		return r.updateErr
	}

	clone := *s
	r.schedules[s.ID] = &clone
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*Schedule, error) {
	s, ok := r.schedules[id]
	if !ok {
		return nil, nil
	}

	clone := *s
	return &clone, nil
}

func (r *memoryRepo) List(_ context.Context, _ Scope, _ ListOptions) (*pagedstore.Page[Schedule], error) {
	var items []Schedule
	for _, s := range r.schedules {
		items = append(items, *s)
	}

	return &pagedstore.Page[Schedule]{Items: items}, nil
}

func (r *memoryRepo) ActiveByChassis(_ context.Context, chassis string) ([]Schedule, error) {
	var active []Schedule
	for _, s := range r.schedules {
		if s.Vehicle.Chassis == chassis && s.IsActive() {
			active = append(active, *s)
		}
	}

	return active, nil
}

type fakeCampaigns struct {
	byChassis map[string][]directory.Campaign
	err       error
}

func (f *fakeCampaigns) PendingCampaignsByChassis(_ context.Context, chassis string) ([]directory.Campaign, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.byChassis[chassis], nil
}

type fakeDealerships struct {
	byID map[string]*directory.Dealership
}

func (f *fakeDealerships) DealershipByID(_ context.Context, id string) (*directory.Dealership, error) {
	return f.byID[id], nil
}

type schedulerFixture struct {
	scheduler *Scheduler
	repo      *memoryRepo
	campaigns *fakeCampaigns
	now       time.Time
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo := newMemoryRepo()
	campaigns := &fakeCampaigns{byChassis: map[string][]directory.Campaign{}}
	consultants := &fakeConsultants{byID: map[string]*directory.Consultant{
		"u-7": {UserID: "u-7", DealershipID: "dealer-5"},
	}}
	dealerships := &fakeDealerships{byID: map[string]*directory.Dealership{
		"dealer-5": {ID: "dealer-5", FantasyName: "North Trucks"},
	}}

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ids := 0

	scheduler := NewScheduler(repo, campaigns, consultants, dealerships, logger,
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string {
			ids++
			return map[int]string{1: "sched-1", 2: "sched-2", 3: "sched-3"}[ids]
		}),
	)

	return &schedulerFixture{scheduler: scheduler, repo: repo, campaigns: campaigns, now: now}
}

func createRequest() CreateRequest {
	return CreateRequest{
		ScheduledAt:          time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		Vehicle:              VehicleSnapshot{Chassis: "9BWZZZ377VT004251", MaintenanceGroup: "HIGHWAY"},
		CheckupType:          CheckupType{ID: "preventive", Description: "Preventive checkup"},
		SourceAccountID:      "acc-src",
		DestinationAccountID: "acc-dst",
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t)

	s, err := fx.scheduler.Create(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, "sched-1", s.ID)
	assert.Equal(t, StatePending, s.State)
	assert.Equal(t, "CK-20260301-SCHED1", s.Protocol)
	assert.Equal(t, fx.now, s.CreatedAt)
	assert.Equal(t, fx.now, s.UpdatedAt)
	assert.NotNil(t, fx.repo.schedules["sched-1"])
}

func TestCreate_Validation(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t)

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"missing chassis", func(r *CreateRequest) { r.Vehicle.Chassis = "" }},
		{"missing destination account", func(r *CreateRequest) { r.DestinationAccountID = "" }},
		{"missing source account", func(r *CreateRequest) { r.SourceAccountID = "" }},
		{"missing scheduled date", func(r *CreateRequest) { r.ScheduledAt = time.Time{} }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := createRequest()
			tc.mutate(&req)

			_, err := fx.scheduler.Create(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestCreate_MatchesOpenCampaigns(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t)
	fx.campaigns.byChassis["9BWZZZ377VT004251"] = []directory.Campaign{
		{Number: "C-100"}, {Number: "C-200"},
	}

	first, err := fx.scheduler.Create(context.Background(), createRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"C-100", "C-200"}, first.Campaigns)

	// The active first schedule now covers both campaigns, so a second
	// schedule for the same vehicle picks up neither.
	second, err := fx.scheduler.Create(context.Background(), createRequest())
	require.NoError(t, err)
	assert.Empty(t, second.Campaigns)
}

func TestCreate_CampaignLookupFailure(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t)
	fx.campaigns.err = errors.New("catalog down")

	_, err := fx.scheduler.Create(context.Background(), createRequest())
	require.ErrorContains(t, err, "catalog down")
}

func TestAssign(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t)
	created, err := fx.scheduler.Create(context.Background(), createRequest())
	require.NoError(t, err)

	s, err := fx.scheduler.Assign(context.Background(), created.ID, "u-7")
	require.NoError(t, err)

	require.NotNil(t, s.Consultant)
	assert.Equal(t, "u-7", s.Consultant.UserID)
	require.NotNil(t, s.Dealership)
	assert.Equal(t, "dealer-5", s.Dealership.ID)
	assert.Equal(t, "North Trucks", s.Dealership.FantasyName)
}

func TestAssign_NotAConsultant(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t)
	created, err := fx.scheduler.Create(context.Background(), createRequest())
	require.NoError(t, err)

	_, err = fx.scheduler.Assign(context.Background(), created.ID, "u-99")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAssign_TerminalSchedule(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t)
	created, err := fx.scheduler.Create(context.Background(), createRequest())
	require.NoError(t, err)

	_, err = fx.scheduler.Reject(context.Background(), created.ID)
	require.NoError(t, err)

	_, err = fx.scheduler.Assign(context.Background(), created.ID, "u-7")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLifecycleTransitions(t *testing.T) {
	t.Parallel()

	t.Run("pending to confirmed to finished", func(t *testing.T) {
		t.Parallel()

		fx := newSchedulerFixture(t)
		created, err := fx.scheduler.Create(context.Background(), createRequest())
		require.NoError(t, err)

		confirmed, err := fx.scheduler.Confirm(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, StateConfirmed, confirmed.State)

		outcome := Outcome{StatusID: "done", CheckoutDate: fx.now, ServiceOrder: "SO-1"}
		finished, err := fx.scheduler.Finish(context.Background(), created.ID, outcome)
		require.NoError(t, err)
		assert.Equal(t, StateFinished, finished.State)
		require.NotNil(t, finished.Outcome)
		assert.Equal(t, "SO-1", finished.Outcome.ServiceOrder)
	})

	t.Run("pending cannot finish directly", func(t *testing.T) {
		t.Parallel()

		fx := newSchedulerFixture(t)
		created, err := fx.scheduler.Create(context.Background(), createRequest())
		require.NoError(t, err)

		_, err = fx.scheduler.Finish(context.Background(), created.ID, Outcome{})
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("terminal states refuse further transitions", func(t *testing.T) {
		t.Parallel()

		fx := newSchedulerFixture(t)
		created, err := fx.scheduler.Create(context.Background(), createRequest())
		require.NoError(t, err)

		_, err = fx.scheduler.Reject(context.Background(), created.ID)
		require.NoError(t, err)

		_, err = fx.scheduler.Confirm(context.Background(), created.ID)
		require.ErrorIs(t, err, ErrInvalidTransition)

		_, err = fx.scheduler.Reject(context.Background(), created.ID)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown schedule", func(t *testing.T) {
		t.Parallel()

		fx := newSchedulerFixture(t)

		_, err := fx.scheduler.Confirm(context.Background(), "missing")
		require.ErrorIs(t, err, ErrScheduleNotFound)
	})
}

func TestGet(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t)
	created, err := fx.scheduler.Create(context.Background(), createRequest())
	require.NoError(t, err)

	got, err := fx.scheduler.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = fx.scheduler.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrScheduleNotFound)

	_, err = fx.scheduler.Get(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestList_ResolvesScope(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t)
	_, err := fx.scheduler.Create(context.Background(), createRequest())
	require.NoError(t, err)

	user := identity.User{AccountID: "acc-dst", UserID: "u-1", Role: identity.RoleManager}
	page, err := fx.scheduler.List(context.Background(), user, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	bad := identity.User{AccountID: "acc-dst", UserID: "u-1", Role: identity.Role("MECHANIC")}
	_, err = fx.scheduler.List(context.Background(), bad, ListOptions{})
	require.ErrorIs(t, err, identity.ErrUnsupportedRole)
}

func TestEvaluateVehicle(t *testing.T) {
	t.Parallel()

	asset := directory.Asset{
		ID:               "asset-1",
		Chassis:          "9BWZZZ377VT004251",
		MaintenanceGroup: "HIGHWAY",
		Metrics:          directory.Metrics{Odometer: f64(62500)},
	}

	t.Run("overdue vehicle with no schedules", func(t *testing.T) {
		t.Parallel()

		fx := newSchedulerFixture(t)

		status, err := fx.scheduler.EvaluateVehicle(context.Background(), asset)
		require.NoError(t, err)
		assert.True(t, status.Late)
	})

	t.Run("pending schedule clears the flag", func(t *testing.T) {
		t.Parallel()

		fx := newSchedulerFixture(t)
		_, err := fx.scheduler.Create(context.Background(), createRequest())
		require.NoError(t, err)

		status, err := fx.scheduler.EvaluateVehicle(context.Background(), asset)
		require.NoError(t, err)
		assert.False(t, status.Late)
	})

	t.Run("rejecting the schedule makes the vehicle late again", func(t *testing.T) {
		t.Parallel()

		fx := newSchedulerFixture(t)
		created, err := fx.scheduler.Create(context.Background(), createRequest())
		require.NoError(t, err)

		_, err = fx.scheduler.Reject(context.Background(), created.ID)
		require.NoError(t, err)

		status, err := fx.scheduler.EvaluateVehicle(context.Background(), asset)
		require.NoError(t, err)
		assert.True(t, status.Late)
	})

	t.Run("unknown maintenance group is never late", func(t *testing.T) {
		t.Parallel()

		fx := newSchedulerFixture(t)

		odd := asset
		odd.MaintenanceGroup = "OFFROAD"

		status, err := fx.scheduler.EvaluateVehicle(context.Background(), odd)
		require.NoError(t, err)
		assert.False(t, status.Late)
	})

	t.Run("campaigns ride along", func(t *testing.T) {
		t.Parallel()

		fx := newSchedulerFixture(t)
		fx.campaigns.byChassis[asset.Chassis] = []directory.Campaign{{Number: "C-100"}}

		status, err := fx.scheduler.EvaluateVehicle(context.Background(), asset)
		require.NoError(t, err)
		assert.Equal(t, []string{"C-100"}, status.MatchedCampaigns)
	})
}
