// Package reporting computes fleet-wide maintenance counters by fanning out
// over the account's vehicles in bounded-concurrency chunks.
package reporting

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fleetmgr/maintenance/internal/checkup"
	"github.com/fleetmgr/maintenance/internal/directory"
	"github.com/fleetmgr/maintenance/internal/identity"
	"github.com/fleetmgr/maintenance/internal/pagedstore"
)

const (
	defaultChunkSize      = 100
	defaultMaxConcurrency = 8
)

// Overview is the fleet maintenance dashboard for one account.
type Overview struct {
	TotalVehicles        int `json:"totalVehicles"`
	OverdueVehicles      int `json:"overdueVehicles"`
	VehiclesInCampaign   int `json:"vehiclesInCampaign"`
	ScheduledMaintenance int `json:"scheduledMaintenance"`
	FinishedMaintenance  int `json:"finishedMaintenance"`
}

// VehicleEvaluator decides one vehicle's overdue status. Satisfied by
// [checkup.Scheduler].
type VehicleEvaluator interface {
	EvaluateVehicle(ctx context.Context, asset directory.Asset) (*checkup.VehicleStatus, error)
}

// ScheduleLister pages through role-scoped schedules. Satisfied by
// [checkup.Repository].
type ScheduleLister interface {
	List(ctx context.Context, scope checkup.Scope, opts checkup.ListOptions) (*pagedstore.Page[checkup.Schedule], error)
}

// Aggregator computes [Overview] reports.
type Aggregator struct {
	assets    directory.AssetDirectory
	evaluator VehicleEvaluator
	schedules ScheduleLister
	logger    logrus.FieldLogger

	chunkSize int
	workers   int64
}

// AggregatorOption configures an [Aggregator].
type AggregatorOption func(*Aggregator)

// WithChunkSize sets how many vehicles each metrics fetch covers.
func WithChunkSize(n int) AggregatorOption {
	return func(a *Aggregator) {
		a.chunkSize = n
	}
}

// WithMaxConcurrency caps the number of chunks evaluated in parallel.
func WithMaxConcurrency(n int64) AggregatorOption {
	return func(a *Aggregator) {
		a.workers = n
	}
}

// NewAggregator creates an Aggregator.
func NewAggregator(
	assets directory.AssetDirectory,
	evaluator VehicleEvaluator,
	schedules ScheduleLister,
	logger logrus.FieldLogger,
	opts ...AggregatorOption,
) *Aggregator {
	a := &Aggregator{
		assets:    assets,
		evaluator: evaluator,
		schedules: schedules,
		logger:    logger.WithField("component", "reporting"),
		chunkSize: defaultChunkSize,
		workers:   defaultMaxConcurrency,
	}

	for _, o := range opts {
		o(a)
	}

	return a
}

// Report builds the overview for the caller's account. Every counter covers
// that one account's fleet regardless of the caller's role: the vehicle set
// comes from the account's asset listing and the schedule counters walk the
// same account's partition, so the numbers stay mutually consistent. Vehicle
// chunks are fetched and evaluated concurrently; any chunk failure fails the
// whole report, since a partial dashboard silently undercounts.
func (a *Aggregator) Report(ctx context.Context, user identity.User) (*Overview, error) {
	fleet, err := a.assets.AssetsByAccount(ctx, user.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fleet for account %s: %w", user.AccountID, err)
	}

	overview := &Overview{TotalVehicles: len(fleet)}

	var mu sync.Mutex
	sem := semaphore.NewWeighted(a.workers)
	group, groupCtx := errgroup.WithContext(ctx)

	for start := 0; start < len(fleet); start += a.chunkSize {
		chunk := fleet[start:min(start+a.chunkSize, len(fleet))]

		group.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			overdue, inCampaign, err := a.evaluateChunk(groupCtx, chunk)
			if err != nil {
				return err
			}

			mu.Lock()
			overview.OverdueVehicles += overdue
			overview.VehiclesInCampaign += inCampaign
			mu.Unlock()

			return nil
		})
	}

	group.Go(func() error {
		scheduled, err := a.countSchedules(groupCtx, user.AccountID, checkup.StatePending, checkup.StateConfirmed)
		if err != nil {
			return err
		}

		finished, err := a.countSchedules(groupCtx, user.AccountID, checkup.StateFinished)
		if err != nil {
			return err
		}

		mu.Lock()
		overview.ScheduledMaintenance = scheduled
		overview.FinishedMaintenance = finished
		mu.Unlock()

		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"account_id": user.AccountID,
		"vehicles":   overview.TotalVehicles,
		"overdue":    overview.OverdueVehicles,
	}).Info("fleet overview computed")

	return overview, nil
}

// evaluateChunk refreshes one chunk's telemetry and evaluates each vehicle
// with the fresh readings.
func (a *Aggregator) evaluateChunk(ctx context.Context, chunk []directory.Asset) (overdue, inCampaign int, err error) {
	ids := make([]string, len(chunk))
	for i := range chunk {
		ids[i] = chunk[i].ID
	}

	metrics, err := a.assets.MetricsByAssetIDs(ctx, ids)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load metrics for %d vehicles: %w", len(ids), err)
	}

	for _, asset := range chunk {
		if m, ok := metrics[asset.ID]; ok {
			asset.Metrics = m
		}

		status, err := a.evaluator.EvaluateVehicle(ctx, asset)
		if err != nil {
			return 0, 0, err
		}

		if status.Late {
			overdue++
		}

		if len(status.MatchedCampaigns) > 0 {
			inCampaign++
		}
	}

	return overdue, inCampaign, nil
}

func (a *Aggregator) countSchedules(ctx context.Context, accountID string, states ...checkup.State) (int, error) {
	// The account partition, not the caller's role scope: the counters must
	// describe the same fleet the vehicle counters were computed over.
	scope := checkup.ManagerScope{AccountID: accountID}

	var total int
	for _, state := range states {
		cursor := ""
		for {
			page, err := a.schedules.List(ctx, scope, checkup.ListOptions{State: &state, Cursor: cursor})
			if err != nil {
				return 0, fmt.Errorf("failed to count %s schedules: %w", state, err)
			}

			total += len(page.Items)

			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
	}

	return total, nil
}
