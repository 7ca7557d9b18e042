package reporting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmgr/maintenance/internal/checkup"
	"github.com/fleetmgr/maintenance/internal/directory"
	"github.com/fleetmgr/maintenance/internal/identity"
	"github.com/fleetmgr/maintenance/internal/pagedstore"
)

type fakeAssets struct {
	mu           sync.Mutex
	fleet        []directory.Asset
	metrics      map[string]directory.Metrics
	metricsCalls [][]string
	metricsErr   error
	fleetErr     error
}

func (f *fakeAssets) AssetsByAccount(_ context.Context, _ string) ([]directory.Asset, error) {
	if f.fleetErr != nil {
		return nil, f.fleetErr
	}

	return f.fleet, nil
}

func (f *fakeAssets) MetricsByAssetIDs(_ context.Context, ids []string) (map[string]directory.Metrics, error) {
	f.mu.Lock()
	f.metricsCalls = append(f.metricsCalls, ids)
	f.mu.Unlock()

	if f.metricsErr != nil {
		return nil, f.metricsErr
	}

	out := make(map[string]directory.Metrics, len(ids))
	for _, id := range ids {
		if m, ok := f.metrics[id]; ok {
			out[id] = m
		}
	}

	return out, nil
}

// metricsEvaluator flags a vehicle late when its refreshed odometer is past
// 50000 and in campaign when the chassis appears in campaignChassis.
type metricsEvaluator struct {
	campaignChassis map[string]bool
	err             error
}

func (e *metricsEvaluator) EvaluateVehicle(_ context.Context, asset directory.Asset) (*checkup.VehicleStatus, error) {
	if e.err != nil {
		return nil, e.err
	}

	status := &checkup.VehicleStatus{Chassis: asset.Chassis}
	if asset.Metrics.Odometer != nil && *asset.Metrics.Odometer > 50000 {
		status.Late = true
	}

	if e.campaignChassis[asset.Chassis] {
		status.MatchedCampaigns = []string{"C-100"}
	}

	return status, nil
}

type fakeSchedules struct {
	byState map[checkup.State][]checkup.Schedule
	scopes  []checkup.Scope
	err     error
}

func (f *fakeSchedules) List(_ context.Context, scope checkup.Scope, opts checkup.ListOptions) (*pagedstore.Page[checkup.Schedule], error) {
	f.scopes = append(f.scopes, scope)

	if f.err != nil {
		return nil, f.err
	}

	if opts.State == nil {
		return nil, errors.New("tests always filter by state")
	}

	items := f.byState[*opts.State]

	// Serve two pages so the cursor walk is exercised.
	if opts.Cursor == "" && len(items) > 1 {
		return &pagedstore.Page[checkup.Schedule]{Items: items[:1], NextCursor: "next"}, nil
	}

	if opts.Cursor == "next" {
		return &pagedstore.Page[checkup.Schedule]{Items: items[1:]}, nil
	}

	return &pagedstore.Page[checkup.Schedule]{Items: items}, nil
}

func f64(v float64) *float64 { return &v }

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func makeFleet(n int) ([]directory.Asset, map[string]directory.Metrics) {
	fleet := make([]directory.Asset, n)
	metrics := make(map[string]directory.Metrics, n)

	for i := range fleet {
		id := fmt.Sprintf("asset-%d", i)
		fleet[i] = directory.Asset{ID: id, Chassis: "CH-" + id, MaintenanceGroup: "HIGHWAY"}

		// Even-numbered vehicles are past the late threshold.
		if i%2 == 0 {
			metrics[id] = directory.Metrics{Odometer: f64(60000)}
		} else {
			metrics[id] = directory.Metrics{Odometer: f64(10000)}
		}
	}

	return fleet, metrics
}

func TestReport(t *testing.T) {
	t.Parallel()

	fleet, metrics := makeFleet(10)
	assets := &fakeAssets{fleet: fleet, metrics: metrics}
	evaluator := &metricsEvaluator{campaignChassis: map[string]bool{"CH-asset-0": true, "CH-asset-3": true}}
	schedules := &fakeSchedules{byState: map[checkup.State][]checkup.Schedule{
		checkup.StatePending:   {{ID: "s1"}, {ID: "s2"}},
		checkup.StateConfirmed: {{ID: "s3"}},
		checkup.StateFinished:  {{ID: "s4"}, {ID: "s5"}, {ID: "s6"}},
	}}

	agg := NewAggregator(assets, evaluator, schedules, testLogger(), WithChunkSize(3))

	overview, err := agg.Report(context.Background(), identity.User{AccountID: "acc-1", Role: identity.RoleManager})
	require.NoError(t, err)

	assert.Equal(t, 10, overview.TotalVehicles)
	assert.Equal(t, 5, overview.OverdueVehicles)
	assert.Equal(t, 2, overview.VehiclesInCampaign)
	assert.Equal(t, 3, overview.ScheduledMaintenance)
	assert.Equal(t, 3, overview.FinishedMaintenance)
}

// The schedule counters must cover the same account whose assets define the
// fleet, whatever the caller's role.
func TestReport_ScheduleCountersStayAccountBound(t *testing.T) {
	t.Parallel()

	fleet, metrics := makeFleet(2)
	assets := &fakeAssets{fleet: fleet, metrics: metrics}
	schedules := &fakeSchedules{byState: map[checkup.State][]checkup.Schedule{}}

	agg := NewAggregator(assets, &metricsEvaluator{}, schedules, testLogger())

	_, err := agg.Report(context.Background(), identity.User{AccountID: "acc-7", Role: identity.RoleTower})
	require.NoError(t, err)

	require.NotEmpty(t, schedules.scopes)
	for _, scope := range schedules.scopes {
		assert.Equal(t, checkup.ManagerScope{AccountID: "acc-7"}, scope)
	}
}

func TestReport_ChunksMetricsFetches(t *testing.T) {
	t.Parallel()

	fleet, metrics := makeFleet(7)
	assets := &fakeAssets{fleet: fleet, metrics: metrics}

	agg := NewAggregator(assets, &metricsEvaluator{}, &fakeSchedules{}, testLogger(), WithChunkSize(3))

	_, err := agg.Report(context.Background(), identity.User{AccountID: "acc-1"})
	require.NoError(t, err)

	require.Len(t, assets.metricsCalls, 3, "7 vehicles in chunks of 3")

	var total int
	for _, call := range assets.metricsCalls {
		assert.LessOrEqual(t, len(call), 3)
		total += len(call)
	}
	assert.Equal(t, 7, total)
}

func TestReport_EmptyFleet(t *testing.T) {
	t.Parallel()

	assets := &fakeAssets{}

	agg := NewAggregator(assets, &metricsEvaluator{}, &fakeSchedules{}, testLogger())

	overview, err := agg.Report(context.Background(), identity.User{AccountID: "acc-1"})
	require.NoError(t, err)
	assert.Zero(t, overview.TotalVehicles)
	assert.Zero(t, overview.OverdueVehicles)
	assert.Empty(t, assets.metricsCalls)
}

func TestReport_ChunkFailureFailsWholeReport(t *testing.T) {
	t.Parallel()

	fleet, metrics := makeFleet(10)
	boom := errors.New("telemetry down")
	assets := &fakeAssets{fleet: fleet, metrics: metrics, metricsErr: boom}

	agg := NewAggregator(assets, &metricsEvaluator{}, &fakeSchedules{}, testLogger(), WithChunkSize(2))

	_, err := agg.Report(context.Background(), identity.User{AccountID: "acc-1"})
	require.ErrorIs(t, err, boom)
}

func TestReport_EvaluatorFailurePropagates(t *testing.T) {
	t.Parallel()

	fleet, metrics := makeFleet(4)
	boom := errors.New("scheduler down")
	assets := &fakeAssets{fleet: fleet, metrics: metrics}

	agg := NewAggregator(assets, &metricsEvaluator{err: boom}, &fakeSchedules{}, testLogger())

	_, err := agg.Report(context.Background(), identity.User{AccountID: "acc-1"})
	require.ErrorIs(t, err, boom)
}

func TestReport_ScheduleCountFailurePropagates(t *testing.T) {
	t.Parallel()

	fleet, metrics := makeFleet(2)
	boom := errors.New("store down")
	assets := &fakeAssets{fleet: fleet, metrics: metrics}

	agg := NewAggregator(assets, &metricsEvaluator{}, &fakeSchedules{err: boom}, testLogger())

	_, err := agg.Report(context.Background(), identity.User{AccountID: "acc-1"})
	require.ErrorIs(t, err, boom)
}

func TestReport_FleetLookupFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("directory down")
	assets := &fakeAssets{fleetErr: boom}

	agg := NewAggregator(assets, &metricsEvaluator{}, &fakeSchedules{}, testLogger())

	_, err := agg.Report(context.Background(), identity.User{AccountID: "acc-1"})
	require.ErrorIs(t, err, boom)
}
