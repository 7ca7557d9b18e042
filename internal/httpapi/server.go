// Package httpapi exposes the maintenance domains over HTTP: JWT-checked
// routes for checkup schedules, assistance cases, and fleet reports.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/fleetmgr/maintenance/internal/assistance"
	"github.com/fleetmgr/maintenance/internal/checkup"
	"github.com/fleetmgr/maintenance/internal/reporting"
)

// Server wires the domain services onto a chi router.
type Server struct {
	scheduler  *checkup.Scheduler
	dispatcher *assistance.Dispatcher
	reports    *reporting.Aggregator
	auth       *Authenticator
	logger     logrus.FieldLogger
}

// NewServer creates a Server.
func NewServer(
	scheduler *checkup.Scheduler,
	dispatcher *assistance.Dispatcher,
	reports *reporting.Aggregator,
	auth *Authenticator,
	logger logrus.FieldLogger,
) *Server {
	return &Server{
		scheduler:  scheduler,
		dispatcher: dispatcher,
		reports:    reports,
		auth:       auth,
		logger:     logger.WithField("component", "httpapi"),
	}
}

// Router builds the route tree. Everything under /api requires a valid
// bearer token.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Route("/checkups", func(r chi.Router) {
			r.Post("/", s.handleCreateSchedule)
			r.Get("/", s.handleListSchedules)
			r.Get("/{scheduleID}", s.handleGetSchedule)
			r.Post("/{scheduleID}/assign", s.handleAssignSchedule)
			r.Post("/{scheduleID}/confirm", s.handleConfirmSchedule)
			r.Post("/{scheduleID}/reject", s.handleRejectSchedule)
			r.Post("/{scheduleID}/finish", s.handleFinishSchedule)
		})

		r.Route("/cases", func(r chi.Router) {
			r.Post("/", s.handleCreateCase)
			r.Get("/", s.handleListCases)
			r.Get("/{caseID}", s.handleGetCase)
			r.Get("/{caseID}/history", s.handleCaseHistory)
			r.Post("/{caseID}/finish", s.handleFinishCase)

			r.Route("/{caseID}/dispatch", func(r chi.Router) {
				r.Post("/", s.handleAssignDispatch)
				r.Delete("/", s.handleCancelDispatch)
				r.Post("/steps", s.handleAddStep)
				r.Patch("/steps/{stepID}", s.handleUpdateStep)
				r.Delete("/steps/{stepID}", s.handleDeleteStep)
			})
		})

		r.Get("/reports/overview", s.handleOverview)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
