package checkup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetmgr/maintenance/internal/directory"
)

func TestMatchedCampaigns(t *testing.T) {
	t.Parallel()

	open := []directory.Campaign{
		{Number: "C-100", Description: "Brake valve recall"},
		{Number: "C-200", Description: "ECU reflash"},
		{Number: "C-300", Description: "Coolant hose"},
	}

	t.Run("no schedules surfaces all open campaigns in catalog order", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, []string{"C-100", "C-200", "C-300"}, MatchedCampaigns(open, nil))
	})

	t.Run("campaigns covered by an active schedule are excluded", func(t *testing.T) {
		t.Parallel()

		schedules := []Schedule{
			{State: StatePending, Campaigns: []string{"C-200"}},
		}

		assert.Equal(t, []string{"C-100", "C-300"}, MatchedCampaigns(open, schedules))
	})

	t.Run("rejected schedules do not cover anything", func(t *testing.T) {
		t.Parallel()

		schedules := []Schedule{
			{State: StateRejected, Campaigns: []string{"C-100", "C-200", "C-300"}},
		}

		assert.Equal(t, []string{"C-100", "C-200", "C-300"}, MatchedCampaigns(open, schedules))
	})

	t.Run("duplicate catalog entries collapse", func(t *testing.T) {
		t.Parallel()

		dup := append([]directory.Campaign{}, open...)
		dup = append(dup, directory.Campaign{Number: "C-100"})

		assert.Equal(t, []string{"C-100", "C-200", "C-300"}, MatchedCampaigns(dup, nil))
	})

	t.Run("no open campaigns", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, MatchedCampaigns(nil, []Schedule{{State: StatePending}}))
	})
}
