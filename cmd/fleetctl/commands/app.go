// Package commands holds the fleetctl subcommands. Each command receives the
// shared [AppContext] built by the root command's PersistentPreRunE.
package commands

import (
	"github.com/sirupsen/logrus"

	"github.com/fleetmgr/maintenance/internal/assistance"
	"github.com/fleetmgr/maintenance/internal/checkup"
	"github.com/fleetmgr/maintenance/internal/pagedstore"
)

// AppContext holds the dependencies shared by all subcommands.
type AppContext struct {
	Schedules    *pagedstore.Store[checkup.Schedule]
	Cases        *pagedstore.Store[assistance.Case]
	HistoryRepo  *assistance.DynamoRepository
	ScheduleRepo *checkup.DynamoRepository
	Logger       logrus.FieldLogger
}
