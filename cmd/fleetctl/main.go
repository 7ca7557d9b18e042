package main

import (
	"context"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fleetmgr/maintenance/cmd/fleetctl/commands"
	"github.com/fleetmgr/maintenance/internal/assistance"
	"github.com/fleetmgr/maintenance/internal/checkup"
	"github.com/fleetmgr/maintenance/internal/config"
	"github.com/fleetmgr/maintenance/internal/pagedstore"
)

var app *commands.AppContext

func main() {
	rootCmd := &cobra.Command{
		Use:   "fleetctl",
		Short: "Fleet maintenance admin CLI",
		Long:  `Operator tooling for inspecting checkup schedules and assistance cases directly in the store.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(cmd.Context())
		},
	}

	rootCmd.AddCommand(
		commands.ListCheckupsCmd(appRef()),
		commands.ListCasesCmd(appRef()),
		commands.CaseHistoryCmd(appRef()),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// appRef hands commands a pointer that is filled in by PersistentPreRunE.
func appRef() **commands.AppContext {
	return &app
}

func initApp(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	scheduleStore := pagedstore.New[checkup.Schedule](&awsCfg, cfg.Store.TableName)
	caseStore := pagedstore.New[assistance.Case](&awsCfg, cfg.Store.TableName)
	historyStore := pagedstore.New[assistance.HistoryEntry](&awsCfg, cfg.Store.TableName)

	for _, store := range []interface{ Connect() error }{scheduleStore, caseStore, historyStore} {
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect store: %w", err)
		}
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	app = &commands.AppContext{
		Schedules:    scheduleStore,
		Cases:        caseStore,
		HistoryRepo:  assistance.NewDynamoRepository(caseStore, historyStore),
		ScheduleRepo: checkup.NewDynamoRepository(scheduleStore),
		Logger:       logger,
	}

	return nil
}
