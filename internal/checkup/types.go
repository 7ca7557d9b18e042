// Package checkup owns the lifecycle of scheduled preventive-maintenance
// visits: creation, consultant and dealership assignment, rejection,
// completion, and the business rule that decides whether a vehicle is
// overdue for its next checkup.
package checkup

import (
	"errors"
	"time"
)

// State is the lifecycle state of a [Schedule].
//
// Transitions only move forward:
//
//	PENDING   -> CONFIRMED, REJECTED
//	CONFIRMED -> FINISHED, REJECTED
//
// REJECTED and FINISHED are terminal. Rejection is logical: the record is
// re-keyed under the new state but never deleted, so historical reporting
// still sees it.
type State string

const (
	StatePending   State = "PENDING"
	StateConfirmed State = "CONFIRMED"
	StateRejected  State = "REJECTED"
	StateFinished  State = "FINISHED"
)

// ErrInvalidTransition reports a state change the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid schedule state transition")

var scheduleTransitions = map[State][]State{
	StatePending:   {StateConfirmed, StateRejected},
	StateConfirmed: {StateFinished, StateRejected},
	StateRejected:  {},
	StateFinished:  {},
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range scheduleTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// VehicleSnapshot is the vehicle data captured on the schedule at creation
// time. Odometer and engine hours are pointers because missing telemetry is
// "no reading", never zero.
type VehicleSnapshot struct {
	Chassis          string   `json:"chassis"`
	Plate            string   `json:"plate"`
	Model            string   `json:"model"`
	Odometer         *float64 `json:"odometer"`
	EngineHours      *float64 `json:"engineHours"`
	MaintenanceGroup string   `json:"maintenanceGroup"`
}

// Consultant is the dealership consultant assigned to a schedule.
type Consultant struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// DealershipRef identifies the dealership that will perform the checkup.
type DealershipRef struct {
	ID          string `json:"id"`
	FantasyName string `json:"fantasyName"`
}

// CheckupType describes the kind of maintenance visit.
type CheckupType struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Outcome records how a finished checkup was closed out.
type Outcome struct {
	StatusID     string    `json:"statusId"`
	CheckoutDate time.Time `json:"checkoutDate"`
	ServiceOrder string    `json:"serviceOrder"`
}

// Schedule is one scheduled or past maintenance visit for one vehicle.
// The ID is immutable once created.
type Schedule struct {
	ID          string          `json:"id"`
	Protocol    string          `json:"protocol"`
	ScheduledAt time.Time       `json:"scheduledAt"`
	State       State           `json:"state"`
	Vehicle     VehicleSnapshot `json:"vehicle"`
	Consultant  *Consultant     `json:"consultant,omitempty"`
	Dealership  *DealershipRef  `json:"dealership,omitempty"`
	Campaigns   []string        `json:"campaigns,omitempty"`
	CheckupType CheckupType     `json:"checkupType"`

	// SourceAccountID created the schedule; DestinationAccountID must act
	// on it.
	SourceAccountID      string `json:"sourceAccountId"`
	DestinationAccountID string `json:"destinationAccountId"`

	Outcome   *Outcome  `json:"outcome,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsActive reports whether the schedule still counts toward "a checkup is
// already planned" decisions: not rejected and not yet finished.
func (s *Schedule) IsActive() bool {
	return s.State != StateRejected && s.State != StateFinished
}
