package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fleetmgr/maintenance/internal/assistance"
	"github.com/fleetmgr/maintenance/internal/checkup"
	"github.com/fleetmgr/maintenance/internal/directory"
	"github.com/fleetmgr/maintenance/internal/identity"
	"github.com/fleetmgr/maintenance/internal/pagedstore"
)

type errorBody struct {
	Error string `json:"error"`
}

// errBadParam reports an unparseable query parameter.
var errBadParam = errors.New("invalid query parameter")

func badParam(name string) error {
	return fmt.Errorf("%w: %s", errBadParam, name)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

// writeError maps domain errors onto HTTP statuses. Unrecognized errors are
// logged and surfaced as a bare 500 so internals never leak to callers.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed")
		s.writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}

	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, checkup.ErrScheduleNotFound),
		errors.Is(err, assistance.ErrCaseNotFound),
		errors.Is(err, assistance.ErrStepNotFound):
		return http.StatusNotFound

	case errors.Is(err, assistance.ErrActiveCaseExists),
		errors.Is(err, assistance.ErrDispatchExists):
		return http.StatusConflict

	case errors.Is(err, checkup.ErrInvalidTransition),
		errors.Is(err, assistance.ErrCaseFinished),
		errors.Is(err, assistance.ErrNoDispatch),
		errors.Is(err, assistance.ErrDefaultStepImmutable):
		return http.StatusUnprocessableEntity

	case errors.Is(err, checkup.ErrInvalidRequest),
		errors.Is(err, assistance.ErrInvalidRequest),
		errors.Is(err, checkup.ErrDateFilterNeedsState),
		errors.Is(err, pagedstore.ErrBadCursor),
		errors.Is(err, pagedstore.ErrPageOutOfRange),
		errors.Is(err, errBadParam):
		return http.StatusBadRequest

	case errors.Is(err, identity.ErrUnsupportedRole):
		return http.StatusForbidden

	case errors.Is(err, directory.ErrUpstream):
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return false
	}

	return true
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing user context"})
	}

	return user, ok
}
