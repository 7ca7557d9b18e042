// Package directory defines the external collaborators the maintenance
// service consumes: the vehicle/asset directory, the recall campaign catalog,
// the plan catalog, and the dealership/consultant directories. The domain
// packages depend only on the interfaces here; [Gateway] is the HTTP-backed
// implementation used in production wiring.
package directory

import "context"

// Metrics are the latest telemetry readings for one asset. A nil field means
// the reading is unavailable, which is distinct from zero: vehicles without
// telemetry must not be treated as if their odometer read zero.
type Metrics struct {
	Odometer    *float64 `json:"odometer"`
	EngineHours *float64 `json:"engineHours"`
}

// Asset is one vehicle as known by the asset directory.
type Asset struct {
	ID               string  `json:"id"`
	Chassis          string  `json:"chassis"`
	MaintenanceGroup string  `json:"maintenanceGroup"`
	Metrics          Metrics `json:"metrics"`
}

// Campaign is an open recall campaign for a chassis.
type Campaign struct {
	Number      string `json:"number"`
	Description string `json:"description"`
}

// Plan is an active subscription plan.
type Plan struct {
	ProductName string `json:"productName"`
}

// PlanPeriod groups the assets covered by a plan during one period.
type PlanPeriod struct {
	AssetIDs []string `json:"assetIds"`
}

// PlanAssets is a plan together with the assets it covers.
type PlanAssets struct {
	ProductName string       `json:"productName"`
	Periods     []PlanPeriod `json:"periods"`
}

// Dealership is one dealership as known by the dealership directory.
type Dealership struct {
	ID          string `json:"id"`
	FantasyName string `json:"fantasyName"`
}

// Consultant links a consultant user to their current dealership.
type Consultant struct {
	UserID       string `json:"userId"`
	DealershipID string `json:"dealershipId"`
}

// AssetDirectory resolves a fleet account's vehicles and their telemetry.
type AssetDirectory interface {
	AssetsByAccount(ctx context.Context, accountID string) ([]Asset, error)
	MetricsByAssetIDs(ctx context.Context, assetIDs []string) (map[string]Metrics, error)
}

// CampaignCatalog lists open recall campaigns per chassis.
type CampaignCatalog interface {
	PendingCampaignsByChassis(ctx context.Context, chassis string) ([]Campaign, error)
}

// PlanCatalog lists active plans and their covered assets.
type PlanCatalog interface {
	ActivePlans(ctx context.Context) ([]Plan, error)
	PlansAndAssets(ctx context.Context) ([]PlanAssets, error)
}

// DealershipDirectory resolves dealerships by id. Returns (nil, nil) when the
// dealership is unknown.
type DealershipDirectory interface {
	DealershipByID(ctx context.Context, id string) (*Dealership, error)
}

// ConsultantDirectory resolves a consultant user to their dealership.
// Returns (nil, nil) when the user is not a consultant.
type ConsultantDirectory interface {
	ConsultantByID(ctx context.Context, userID string) (*Consultant, error)
}
