package directory

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokenCache(t *testing.T) *TokenCache {
	t.Helper()

	cache, err := NewTokenCache(func(_ context.Context) (string, time.Duration, error) {
		return "test-token", time.Hour, nil
	})
	require.NoError(t, err)

	return cache
}

func testGateway(t *testing.T, handler http.Handler) *Gateway {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gateway, err := NewGateway(server.URL, testTokenCache(t), logger)
	require.NoError(t, err)

	return gateway
}

func TestGateway_AssetsByAccount(t *testing.T) {
	t.Parallel()

	gateway := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets", r.URL.Path)
		assert.Equal(t, "A1", r.URL.Query().Get("accountId"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"v-1","chassis":"9BW111","maintenanceGroup":"HIGHWAY","metrics":{"odometer":30500}}]`))
	}))

	assets, err := gateway.AssetsByAccount(context.Background(), "A1")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "9BW111", assets[0].Chassis)
	require.NotNil(t, assets[0].Metrics.Odometer)
	assert.Equal(t, 30500.0, *assets[0].Metrics.Odometer)
	assert.Nil(t, assets[0].Metrics.EngineHours)
}

func TestGateway_MetricsByAssetIDs(t *testing.T) {
	t.Parallel()

	gateway := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v-1,v-2", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`[{"id":"v-1","odometer":12000,"engineHours":440}]`))
	}))

	metrics, err := gateway.MetricsByAssetIDs(context.Background(), []string{"v-1", "v-2"})
	require.NoError(t, err)
	require.Contains(t, metrics, "v-1")
	assert.NotContains(t, metrics, "v-2")
}

func TestGateway_MetricsByAssetIDs_Empty(t *testing.T) {
	t.Parallel()

	gateway := testGateway(t, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected for empty id list")
	}))

	metrics, err := gateway.MetricsByAssetIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestGateway_DealershipNotFound(t *testing.T) {
	t.Parallel()

	gateway := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	dealership, err := gateway.DealershipByID(context.Background(), "DLX")
	require.NoError(t, err)
	assert.Nil(t, dealership)
}

func TestGateway_UpstreamError(t *testing.T) {
	t.Parallel()

	gateway := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := gateway.ActivePlans(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
}

func TestGateway_MalformedResponse(t *testing.T) {
	t.Parallel()

	gateway := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))

	_, err := gateway.PendingCampaignsByChassis(context.Background(), "9BW111")
	require.ErrorIs(t, err, ErrUpstream)
}
