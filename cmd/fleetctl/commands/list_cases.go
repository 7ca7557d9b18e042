package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetmgr/maintenance/internal/pagedstore"
)

// ListCasesCmd pages through one account's assistance cases.
func ListCasesCmd(app **AppContext) *cobra.Command {
	var (
		accountID string
		state     string
		page      int
		limit     int32
	)

	cmd := &cobra.Command{
		Use:   "listCases",
		Short: "List assistance cases for a fleet account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := []string{"CASE"}
			if state != "" {
				prefix = append(prefix, state)
			}

			cases, err := (*app).Cases.PageAt(cmd.Context(), page, limit, pagedstore.Query{
				Partition: "ACCOUNT#" + accountID,
				Prefix:    prefix,
			})
			if err != nil {
				return fmt.Errorf("failed to list cases: %w", err)
			}

			fmt.Printf("\nPage %d (%d cases):\n\n", page, len(cases))
			for _, c := range cases {
				dispatch := "-"
				if c.Dispatch != nil {
					dispatch = c.Dispatch.FantasyName
				}

				fmt.Printf("- %s  %s  %s  %s  chassis=%s  dispatch=%s  cancelled=%d\n",
					c.Protocol,
					c.OccurrenceType,
					c.State,
					c.ID,
					c.Vehicle.Chassis,
					dispatch,
					len(c.CancelledDispatches),
				)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Fleet account id (required)")
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (PENDING, FINISHED)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	cmd.Flags().Int32Var(&limit, "limit", 25, "Page size")
	cmd.MarkFlagRequired("account")

	return cmd
}
