package checkup

import (
	"slices"

	"github.com/fleetmgr/maintenance/internal/directory"
)

// MatchedCampaigns returns the numbers of open recall campaigns not already
// referenced by any active schedule for the vehicle. A campaign an active
// schedule already covers is not surfaced again, since the shop already
// intends to address it. Results keep the catalog's order.
func MatchedCampaigns(open []directory.Campaign, activeSchedules []Schedule) []string {
	covered := make(map[string]struct{})

	for i := range activeSchedules {
		if !activeSchedules[i].IsActive() {
			continue
		}

		for _, number := range activeSchedules[i].Campaigns {
			covered[number] = struct{}{}
		}
	}

	matched := make([]string, 0, len(open))

	for _, campaign := range open {
		if _, ok := covered[campaign.Number]; ok {
			continue
		}

		if !slices.Contains(matched, campaign.Number) {
			matched = append(matched, campaign.Number)
		}
	}

	return matched
}
