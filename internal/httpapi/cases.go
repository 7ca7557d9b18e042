package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fleetmgr/maintenance/internal/assistance"
)

type createCaseRequest struct {
	OccurrenceType string                     `json:"occurrenceType"`
	Vehicle        assistance.VehicleSnapshot `json:"vehicle"`
	Location       *assistance.Location       `json:"location,omitempty"`
	Description    string                     `json:"description,omitempty"`
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	var body createCaseRequest
	if !s.decode(w, r, &body) {
		return
	}

	c, err := s.dispatcher.Create(r.Context(), user, assistance.CreateCaseRequest{
		OccurrenceType: assistance.OccurrenceType(body.OccurrenceType),
		Vehicle:        body.Vehicle,
		Location:       body.Location,
		Description:    body.Description,
		AccountID:      user.AccountID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, c)
}

type casePage struct {
	Items      []assistance.Case `json:"items"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	opts := assistance.ListOptions{
		Cursor:     q.Get("cursor"),
		Descending: q.Get("order") == "desc",
	}

	if raw := q.Get("state"); raw != "" {
		state := assistance.State(raw)
		opts.State = &state
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || limit < 1 {
			s.writeError(w, badParam("limit"))
			return
		}
		opts.Limit = int32(limit)
	}

	page, err := s.dispatcher.List(r.Context(), user, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, casePage{Items: page.Items, NextCursor: page.NextCursor})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.dispatcher.Get(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCaseHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.dispatcher.History(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleFinishCase(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	c, err := s.dispatcher.Finish(r.Context(), user, chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, c)
}

type assignDispatchRequest struct {
	DealershipID string `json:"dealershipId"`
}

func (s *Server) handleAssignDispatch(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	var body assignDispatchRequest
	if !s.decode(w, r, &body) {
		return
	}

	c, err := s.dispatcher.AssignDispatch(r.Context(), user, chi.URLParam(r, "caseID"), body.DealershipID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCancelDispatch(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	c, err := s.dispatcher.CancelDispatch(r.Context(), user, chi.URLParam(r, "caseID"),
		q.Get("reason"), q.Get("justification"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, c)
}

type addStepRequest struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

func (s *Server) handleAddStep(w http.ResponseWriter, r *http.Request) {
	var body addStepRequest
	if !s.decode(w, r, &body) {
		return
	}

	c, err := s.dispatcher.AddStep(r.Context(), chi.URLParam(r, "caseID"), body.Name, body.Index)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, c)
}

type updateStepRequest struct {
	Name *string `json:"name,omitempty"`
	Done *bool   `json:"done,omitempty"`
}

func (s *Server) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	var body updateStepRequest
	if !s.decode(w, r, &body) {
		return
	}

	c, err := s.dispatcher.UpdateStep(r.Context(), chi.URLParam(r, "caseID"), chi.URLParam(r, "stepID"), assistance.StepUpdate{
		Name: body.Name,
		Done: body.Done,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteStep(w http.ResponseWriter, r *http.Request) {
	c, err := s.dispatcher.DeleteStep(r.Context(), chi.URLParam(r, "caseID"), chi.URLParam(r, "stepID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, c)
}
