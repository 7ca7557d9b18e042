package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetmgr/maintenance/internal/checkup"
)

type createScheduleRequest struct {
	ScheduledAt          time.Time               `json:"scheduledAt"`
	Vehicle              checkup.VehicleSnapshot `json:"vehicle"`
	CheckupType          checkup.CheckupType     `json:"checkupType"`
	DestinationAccountID string                  `json:"destinationAccountId"`
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	var body createScheduleRequest
	if !s.decode(w, r, &body) {
		return
	}

	schedule, err := s.scheduler.Create(r.Context(), checkup.CreateRequest{
		ScheduledAt:          body.ScheduledAt,
		Vehicle:              body.Vehicle,
		CheckupType:          body.CheckupType,
		SourceAccountID:      user.AccountID,
		DestinationAccountID: body.DestinationAccountID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, schedule)
}

type schedulePage struct {
	Items      []checkup.Schedule `json:"items"`
	NextCursor string             `json:"nextCursor,omitempty"`
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	opts, err := scheduleListOptions(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	page, err := s.scheduler.List(r.Context(), user, *opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, schedulePage{Items: page.Items, NextCursor: page.NextCursor})
}

func scheduleListOptions(r *http.Request) (*checkup.ListOptions, error) {
	q := r.URL.Query()

	opts := checkup.ListOptions{
		Cursor:     q.Get("cursor"),
		Descending: q.Get("order") == "desc",
	}

	if raw := q.Get("state"); raw != "" {
		state := checkup.State(raw)
		opts.State = &state
	}

	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, badParam("from")
		}
		opts.From = &from
	}

	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, badParam("to")
		}
		opts.To = &to
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || limit < 1 {
			return nil, badParam("limit")
		}
		opts.Limit = int32(limit)
	}

	return &opts, nil
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.scheduler.Get(r.Context(), chi.URLParam(r, "scheduleID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, schedule)
}

type assignScheduleRequest struct {
	ConsultantUserID string `json:"consultantUserId"`
}

func (s *Server) handleAssignSchedule(w http.ResponseWriter, r *http.Request) {
	var body assignScheduleRequest
	if !s.decode(w, r, &body) {
		return
	}

	schedule, err := s.scheduler.Assign(r.Context(), chi.URLParam(r, "scheduleID"), body.ConsultantUserID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) handleConfirmSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.scheduler.Confirm(r.Context(), chi.URLParam(r, "scheduleID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) handleRejectSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.scheduler.Reject(r.Context(), chi.URLParam(r, "scheduleID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) handleFinishSchedule(w http.ResponseWriter, r *http.Request) {
	var body checkup.Outcome
	if !s.decode(w, r, &body) {
		return
	}

	schedule, err := s.scheduler.Finish(r.Context(), chi.URLParam(r, "scheduleID"), body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	overview, err := s.reports.Report(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, overview)
}
