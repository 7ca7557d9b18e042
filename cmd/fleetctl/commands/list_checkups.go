package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetmgr/maintenance/internal/pagedstore"
)

// ListCheckupsCmd pages through one account's checkup schedules.
func ListCheckupsCmd(app **AppContext) *cobra.Command {
	var (
		accountID string
		state     string
		page      int
		limit     int32
	)

	cmd := &cobra.Command{
		Use:   "listCheckups",
		Short: "List checkup schedules for a fleet account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := []string{"SCHEDULE"}
			if state != "" {
				prefix = append(prefix, state)
			}

			schedules, err := (*app).Schedules.PageAt(cmd.Context(), page, limit, pagedstore.Query{
				Partition: "ACCOUNT#" + accountID,
				Prefix:    prefix,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			fmt.Printf("\nPage %d (%d schedules):\n\n", page, len(schedules))
			for _, s := range schedules {
				consultant := "-"
				if s.Consultant != nil {
					consultant = s.Consultant.UserID
				}

				fmt.Printf("- %s  %s  %s  %s  chassis=%s  consultant=%s\n",
					s.Protocol,
					s.State,
					s.ScheduledAt.Format("2006-01-02 15:04"),
					s.ID,
					s.Vehicle.Chassis,
					consultant,
				)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Fleet account id (required)")
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (PENDING, CONFIRMED, REJECTED, FINISHED)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	cmd.Flags().Int32Var(&limit, "limit", 25, "Page size")
	cmd.MarkFlagRequired("account")

	return cmd
}
