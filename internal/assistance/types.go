// Package assistance owns roadside-assistance cases: breakdown occurrences
// opened for a vehicle, the dispatch sent to handle them, its ordered
// checklist of steps, and the append-only case history.
package assistance

import (
	"errors"
	"time"
)

// OccurrenceType is the kind of roadside event that opened the case.
type OccurrenceType string

const (
	// OccurrenceAssistance is an on-site repair attempt.
	OccurrenceAssistance OccurrenceType = "ASSISTANCE"

	// OccurrenceWinch is a tow to the nearest dealership.
	OccurrenceWinch OccurrenceType = "WINCH"
)

// ParseOccurrenceType validates a wire-level occurrence type.
func ParseOccurrenceType(raw string) (OccurrenceType, error) {
	switch t := OccurrenceType(raw); t {
	case OccurrenceAssistance, OccurrenceWinch:
		return t, nil
	}

	return "", errors.New("unknown occurrence type: " + raw)
}

// State is the lifecycle state of a case. Unlike checkup schedules the
// lifecycle has exactly two states: a case stays pending through any number
// of dispatch assignments and cancellations, then finishes once.
type State string

const (
	StatePending  State = "PENDING"
	StateFinished State = "FINISHED"
)

// VehicleSnapshot is the vehicle data captured when the case was opened.
type VehicleSnapshot struct {
	Chassis string `json:"chassis"`
	Plate   string `json:"plate"`
	Model   string `json:"model"`
}

// Location is where the vehicle broke down.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Step is one entry in a dispatch's ordered checklist. Steps are addressed
// by id, not position, so a concurrent insert cannot redirect an update.
// Default steps come with every dispatch and cannot be renamed or removed;
// custom steps are fully mutable.
type Step struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Done      bool      `json:"done"`
	IsDefault bool      `json:"isDefault"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Dispatch is the dealership currently sent to handle the case.
type Dispatch struct {
	DealershipID string    `json:"dealershipId"`
	FantasyName  string    `json:"fantasyName"`
	AssignedAt   time.Time `json:"assignedAt"`
	Steps        []Step    `json:"steps"`
}

// CancelledDispatch records a dispatch that was called off: who was called
// off, when, the short reason, and the free-form justification behind it.
// The steps are kept as they stood at cancellation time.
type CancelledDispatch struct {
	DealershipID  string    `json:"dealershipId"`
	FantasyName   string    `json:"fantasyName"`
	AssignedAt    time.Time `json:"assignedAt"`
	CancelledAt   time.Time `json:"cancelledAt"`
	Reason        string    `json:"reason,omitempty"`
	Justification string    `json:"justification,omitempty"`
	Steps         []Step    `json:"steps"`
}

// Case is one roadside-assistance occurrence for one vehicle. A vehicle has
// at most one unfinished case at a time.
type Case struct {
	ID             string          `json:"id"`
	Protocol       string          `json:"protocol"`
	OccurrenceType OccurrenceType  `json:"occurrenceType"`
	State          State           `json:"state"`
	Vehicle        VehicleSnapshot `json:"vehicle"`
	Location       *Location       `json:"location,omitempty"`
	Description    string          `json:"description,omitempty"`
	AccountID      string          `json:"accountId"`

	Dispatch            *Dispatch           `json:"dispatch,omitempty"`
	CancelledDispatches []CancelledDispatch `json:"cancelledDispatches,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// IsFinished reports whether the case reached its terminal state.
func (c *Case) IsFinished() bool {
	return c.State == StateFinished
}

// EventType tags one history entry.
type EventType string

const (
	EventCreated          EventType = "CREATED"
	EventDispatchAssigned EventType = "ASSIGNED_DISPATCH"
	EventDispatchCanceled EventType = "CANCELED_DISPATCH"
	EventFinished         EventType = "FINISHED"
)

// Actor is who performed the recorded action, resolved at write time so the
// history stays readable even after the user record changes. For consultant
// actors the dealership they belonged to at that moment is captured too.
type Actor struct {
	UserID    string `json:"userId"`
	AccountID string `json:"accountId"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role"`

	DealershipID   string `json:"dealershipId,omitempty"`
	DealershipName string `json:"dealershipName,omitempty"`
}

// HistoryEntry is one append-only record of a case-level action. Step
// mutations are working state, not case events, and do not appear here.
type HistoryEntry struct {
	CaseID     string    `json:"caseId"`
	Type       EventType `json:"type"`
	Actor      Actor     `json:"actor"`
	OccurredAt time.Time `json:"occurredAt"`

	// DealershipID is the dispatch's target dealership, set on dispatch
	// events. The acting consultant's own dealership lives on Actor.
	DealershipID string `json:"dealershipId,omitempty"`
}
