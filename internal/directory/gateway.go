package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUpstream reports a failed call to an external collaborator gateway.
// It is surfaced to the caller, who decides whether to retry.
var ErrUpstream = errors.New("upstream gateway error")

// Gateway is the HTTP-backed implementation of the collaborator interfaces.
// All requests carry a bearer token obtained from the injected [TokenCache].
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenCache
	logger     logrus.FieldLogger
}

// GatewayOption configures a [Gateway].
type GatewayOption func(*Gateway)

// WithHTTPClient sets a custom HTTP client. The default has a 15 second
// timeout.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *Gateway) {
		g.httpClient = client
	}
}

// NewGateway creates a Gateway for the collaborator API at baseURL.
func NewGateway(baseURL string, tokens *TokenCache, logger logrus.FieldLogger, opts ...GatewayOption) (*Gateway, error) {
	if baseURL == "" {
		return nil, errors.New("gateway base URL cannot be empty")
	}

	if tokens == nil {
		return nil, errors.New("token cache cannot be nil")
	}

	g := &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     tokens,
		logger:     logger.WithField("component", "directory"),
	}

	for _, o := range opts {
		o(g)
	}

	return g, nil
}

// AssetsByAccount implements [AssetDirectory].
func (g *Gateway) AssetsByAccount(ctx context.Context, accountID string) ([]Asset, error) {
	if accountID == "" {
		return nil, errors.New("account id cannot be empty")
	}

	var assets []Asset
	if err := g.getJSON(ctx, "/assets?accountId="+url.QueryEscape(accountID), &assets); err != nil {
		return nil, err
	}

	return assets, nil
}

// MetricsByAssetIDs implements [AssetDirectory]. Assets without telemetry are
// absent from the returned map.
func (g *Gateway) MetricsByAssetIDs(ctx context.Context, assetIDs []string) (map[string]Metrics, error) {
	if len(assetIDs) == 0 {
		return map[string]Metrics{}, nil
	}

	var rows []struct {
		ID          string   `json:"id"`
		Odometer    *float64 `json:"odometer"`
		EngineHours *float64 `json:"engineHours"`
	}

	path := "/assets/metrics?ids=" + url.QueryEscape(strings.Join(assetIDs, ","))
	if err := g.getJSON(ctx, path, &rows); err != nil {
		return nil, err
	}

	metrics := make(map[string]Metrics, len(rows))
	for _, row := range rows {
		metrics[row.ID] = Metrics{Odometer: row.Odometer, EngineHours: row.EngineHours}
	}

	return metrics, nil
}

// PendingCampaignsByChassis implements [CampaignCatalog].
func (g *Gateway) PendingCampaignsByChassis(ctx context.Context, chassis string) ([]Campaign, error) {
	if chassis == "" {
		return nil, errors.New("chassis cannot be empty")
	}

	var campaigns []Campaign
	if err := g.getJSON(ctx, "/campaigns/pending?chassis="+url.QueryEscape(chassis), &campaigns); err != nil {
		return nil, err
	}

	return campaigns, nil
}

// ActivePlans implements [PlanCatalog].
func (g *Gateway) ActivePlans(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	if err := g.getJSON(ctx, "/plans/active", &plans); err != nil {
		return nil, err
	}

	return plans, nil
}

// PlansAndAssets implements [PlanCatalog].
func (g *Gateway) PlansAndAssets(ctx context.Context) ([]PlanAssets, error) {
	var plans []PlanAssets
	if err := g.getJSON(ctx, "/plans/assets", &plans); err != nil {
		return nil, err
	}

	return plans, nil
}

// DealershipByID implements [DealershipDirectory].
func (g *Gateway) DealershipByID(ctx context.Context, id string) (*Dealership, error) {
	if id == "" {
		return nil, errors.New("dealership id cannot be empty")
	}

	var dealership Dealership

	err := g.getJSON(ctx, "/dealerships/"+url.PathEscape(id), &dealership)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &dealership, nil
}

// ConsultantByID implements [ConsultantDirectory].
func (g *Gateway) ConsultantByID(ctx context.Context, userID string) (*Consultant, error) {
	if userID == "" {
		return nil, errors.New("consultant user id cannot be empty")
	}

	var consultant Consultant

	err := g.getJSON(ctx, "/consultants/"+url.PathEscape(userID), &consultant)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &consultant, nil
}

var errNotFound = errors.New("not found")

func (g *Gateway) getJSON(ctx context.Context, path string, out any) error {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	response, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return errNotFound
	}

	if response.StatusCode != http.StatusOK {
		g.logger.WithField("status", response.StatusCode).Warn("gateway call failed")
		return fmt.Errorf("%w: status %d from %s", ErrUpstream, response.StatusCode, path)
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response from %s: %v", ErrUpstream, path, err)
	}

	return nil
}
