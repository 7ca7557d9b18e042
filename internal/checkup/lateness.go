package checkup

import (
	"math"

	"github.com/fleetmgr/maintenance/internal/directory"
)

// Metric selects which telemetry reading a maintenance group's checkup
// interval is measured in.
type Metric string

const (
	// MetricDistance measures checkup intervals in odometer distance.
	MetricDistance Metric = "DISTANCE"

	// MetricEngineHours measures checkup intervals in engine hours, used
	// for severe-usage vehicles whose engines run while stationary.
	MetricEngineHours Metric = "ENGINE_HOURS"
)

// Group is a maintenance-group convention: which metric governs the vehicle
// and how far apart its checkup thresholds sit.
type Group struct {
	Name     string
	Metric   Metric
	Interval float64
}

// Maintenance-group conventions for heavy vehicles. Highway and mixed usage
// are distance-based; severe usage runs the engine while stationary and is
// measured in engine hours.
var groups = map[string]Group{
	"HIGHWAY": {Name: "HIGHWAY", Metric: MetricDistance, Interval: 50000},
	"MIXED":   {Name: "MIXED", Metric: MetricDistance, Interval: 30000},
	"SEVERE":  {Name: "SEVERE", Metric: MetricEngineHours, Interval: 500},
}

// GroupByName resolves a maintenance-group convention.
func GroupByName(name string) (Group, bool) {
	g, ok := groups[name]
	return g, ok
}

// Threshold is one checkup due point: the reading at which a checkup became
// due, in the group's metric.
type Threshold struct {
	Metric Metric
	Value  float64
}

// reading picks the metric relevant to t from m. Returns nil when that
// reading is unavailable.
func (t Threshold) reading(m directory.Metrics) *float64 {
	switch t.Metric {
	case MetricDistance:
		return m.Odometer
	case MetricEngineHours:
		return m.EngineHours
	}

	return nil
}

// NextDue returns the most recent checkup threshold the vehicle has reached,
// or nil when the governing reading is unavailable or the vehicle has not
// yet reached its first interval.
func (g Group) NextDue(m directory.Metrics) *Threshold {
	if g.Interval <= 0 {
		return nil
	}

	value := Threshold{Metric: g.Metric}.reading(m)
	if value == nil {
		return nil
	}

	passed := math.Floor(*value/g.Interval) * g.Interval
	if passed <= 0 {
		return nil
	}

	return &Threshold{Metric: g.Metric, Value: passed}
}

// IsLate decides whether a vehicle is overdue for a checkup: its governing
// reading strictly exceeds the threshold and no active (non-rejected,
// non-finished) schedule already covers it.
//
// A missing reading means "insufficient data, not late" rather than
// defaulting to zero, since zero would flag every vehicle without telemetry
// as overdue.
func IsLate(m directory.Metrics, threshold Threshold, activeSchedules []Schedule) bool {
	value := threshold.reading(m)
	if value == nil {
		return false
	}

	if *value <= threshold.Value {
		return false
	}

	for i := range activeSchedules {
		if activeSchedules[i].IsActive() {
			return false
		}
	}

	return true
}
