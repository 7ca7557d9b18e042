package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CaseHistoryCmd prints one case's append-only history.
func CaseHistoryCmd(app **AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "caseHistory <case-id>",
		Short: "Show the event history of an assistance case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID := args[0]

			entries, err := (*app).HistoryRepo.HistoryByCase(cmd.Context(), caseID)
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}

			if len(entries) == 0 {
				fmt.Printf("No history for case %s\n", caseID)
				return nil
			}

			fmt.Printf("\nHistory for case %s (%d events):\n\n", caseID, len(entries))
			for _, e := range entries {
				dealership := ""
				if e.DealershipID != "" {
					dealership = "  dealership=" + e.DealershipID
				}

				fmt.Printf("- %s  %-18s  by %s (%s)%s\n",
					e.OccurredAt.Format("2006-01-02 15:04:05"),
					e.Type,
					e.Actor.UserID,
					e.Actor.Role,
					dealership,
				)
			}

			return nil
		},
	}
}
