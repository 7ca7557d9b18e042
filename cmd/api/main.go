package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/fleetmgr/maintenance/internal/assistance"
	"github.com/fleetmgr/maintenance/internal/checkup"
	"github.com/fleetmgr/maintenance/internal/config"
	"github.com/fleetmgr/maintenance/internal/directory"
	"github.com/fleetmgr/maintenance/internal/httpapi"
	"github.com/fleetmgr/maintenance/internal/pagedstore"
	"github.com/fleetmgr/maintenance/internal/reporting"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := run(logger); err != nil {
		logger.WithError(err).Fatal("api exited")
	}
}

func run(logger *logrus.Logger) error {
	// Local development keeps secrets in .env; in deployed environments the
	// variables are already set and the file is absent.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	storeOpts := []pagedstore.Option{}
	if cfg.Store.DefaultQueryLimit > 0 {
		storeOpts = append(storeOpts, pagedstore.WithDefaultQueryLimit(cfg.Store.DefaultQueryLimit))
	}

	scheduleStore := pagedstore.New[checkup.Schedule](&awsCfg, cfg.Store.TableName, storeOpts...)
	caseStore := pagedstore.New[assistance.Case](&awsCfg, cfg.Store.TableName, storeOpts...)
	historyStore := pagedstore.New[assistance.HistoryEntry](&awsCfg, cfg.Store.TableName, storeOpts...)

	for _, store := range []interface{ Connect() error }{scheduleStore, caseStore, historyStore} {
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect store: %w", err)
		}
	}

	if err := scheduleStore.Init(ctx, cfg.Store.SkipSchemaValidation); err != nil {
		return fmt.Errorf("failed to validate table schema: %w", err)
	}

	tokens, err := directory.NewTokenCache(tokenRefresher(cfg))
	if err != nil {
		return fmt.Errorf("failed to build token cache: %w", err)
	}

	gateway, err := directory.NewGateway(cfg.Directory.BaseURL, tokens, logger,
		directory.WithHTTPClient(&http.Client{Timeout: cfg.Directory.Timeout}))
	if err != nil {
		return fmt.Errorf("failed to build directory gateway: %w", err)
	}

	scheduler := checkup.NewScheduler(
		checkup.NewDynamoRepository(scheduleStore),
		gateway, gateway, gateway, logger,
	)

	dispatcher := assistance.NewDispatcher(
		assistance.NewDynamoRepository(caseStore, historyStore),
		gateway, gateway, logger,
	)

	aggOpts := []reporting.AggregatorOption{}
	if cfg.Reporting.ChunkSize > 0 {
		aggOpts = append(aggOpts, reporting.WithChunkSize(cfg.Reporting.ChunkSize))
	}
	if cfg.Reporting.MaxConcurrency > 0 {
		aggOpts = append(aggOpts, reporting.WithMaxConcurrency(cfg.Reporting.MaxConcurrency))
	}

	reports := reporting.NewAggregator(gateway, scheduler, checkup.NewDynamoRepository(scheduleStore), logger, aggOpts...)

	api := httpapi.NewServer(scheduler, dispatcher, reports, httpapi.NewAuthenticator(cfg.JWTSecret), logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Server.Addr).Info("api listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err

	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}

	return nil
}

// tokenRefresher exchanges client credentials for a directory access token.
func tokenRefresher(cfg *config.Config) directory.RefreshFunc {
	client := &http.Client{Timeout: cfg.Directory.Timeout}

	return func(ctx context.Context) (string, time.Duration, error) {
		form := url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {cfg.Directory.ClientID},
			"client_secret": {cfg.DirectoryClientSecret},
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Directory.TokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return "", 0, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := client.Do(req)
		if err != nil {
			return "", 0, fmt.Errorf("failed to request token: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", 0, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
		}

		var body struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", 0, fmt.Errorf("failed to decode token response: %w", err)
		}

		if body.AccessToken == "" {
			return "", 0, fmt.Errorf("token endpoint returned an empty token")
		}

		return body.AccessToken, time.Duration(body.ExpiresIn) * time.Second, nil
	}
}
