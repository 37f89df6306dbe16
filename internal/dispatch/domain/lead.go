// Package domain defines the core lead dispatch model: lead and closer
// entities, the lead status state machine, and lineup rotation rules.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// LeadStatus is the closed set of lead lifecycle states.
type LeadStatus string

const (
	LeadStatusWaitingAssignment LeadStatus = "waiting_assignment"
	LeadStatusScheduled         LeadStatus = "scheduled"
	LeadStatusAccepted          LeadStatus = "accepted"
	LeadStatusInProcess         LeadStatus = "in_process"
	LeadStatusSold              LeadStatus = "sold"
	LeadStatusNoSale            LeadStatus = "no_sale"
	LeadStatusCanceled          LeadStatus = "canceled"
	LeadStatusRescheduled       LeadStatus = "rescheduled"
	LeadStatusCreditFail        LeadStatus = "credit_fail"
	LeadStatusExpired           LeadStatus = "expired"
)

// DispatchType distinguishes immediate dispatch from appointment-bound leads.
type DispatchType string

const (
	DispatchImmediate DispatchType = "immediate"
	DispatchScheduled DispatchType = "scheduled"
)

// Caller roles recognized by the RPC surface.
const (
	RoleSetter  = "setter"
	RoleCloser  = "closer"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// Lead is a sales opportunity routed through the engine.
type Lead struct {
	ID                       uuid.UUID    `json:"id"`
	TeamID                   uuid.UUID    `json:"teamId"`
	Status                   LeadStatus   `json:"status"`
	DispatchType             DispatchType `json:"dispatchType"`
	AssignedCloserID         *uuid.UUID   `json:"assignedCloserId,omitempty"`
	AssignedCloserName       *string      `json:"assignedCloserName,omitempty"`
	ScheduledAppointmentTime *time.Time   `json:"scheduledAppointmentTime,omitempty"`
	SetterVerified           bool         `json:"setterVerified"`
	SetterID                 *uuid.UUID   `json:"setterId,omitempty"`
	CustomerName             string       `json:"customerName"`
	CustomerPhone            string       `json:"customerPhone"`
	Address                  *string      `json:"address,omitempty"`
	AcceptedAt               *time.Time   `json:"acceptedAt,omitempty"`
	AcceptedBy               *uuid.UUID   `json:"acceptedBy,omitempty"`
	CreatedAt                time.Time    `json:"createdAt"`
	UpdatedAt                time.Time    `json:"updatedAt"`
}

// IsTerminal reports whether the status can never be reopened by the engine.
func (s LeadStatus) IsTerminal() bool {
	switch s {
	case LeadStatusSold, LeadStatusNoSale, LeadStatusCanceled, LeadStatusCreditFail, LeadStatusExpired:
		return true
	}
	return false
}

// Valid reports whether the status is a known lifecycle state.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusWaitingAssignment, LeadStatusScheduled, LeadStatusAccepted,
		LeadStatusInProcess, LeadStatusSold, LeadStatusNoSale, LeadStatusCanceled,
		LeadStatusRescheduled, LeadStatusCreditFail, LeadStatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows moving from one
// status to another. waiting_assignment is also reachable from any
// non-terminal state as a manager override.
func CanTransition(from, to LeadStatus) bool {
	if from == to {
		return false
	}
	if to == LeadStatusWaitingAssignment {
		return !from.IsTerminal()
	}

	switch from {
	case LeadStatusWaitingAssignment:
		return to == LeadStatusScheduled || to == LeadStatusAccepted
	case LeadStatusScheduled:
		return to == LeadStatusCanceled || to == LeadStatusExpired
	case LeadStatusAccepted:
		return to == LeadStatusInProcess
	case LeadStatusInProcess:
		switch to {
		case LeadStatusSold, LeadStatusNoSale, LeadStatusCanceled,
			LeadStatusRescheduled, LeadStatusCreditFail:
			return true
		}
		return false
	case LeadStatusRescheduled:
		return to == LeadStatusScheduled
	}
	return false
}

// IsException reports whether a status transition returns the assigned closer
// to the front of the lineup: a deal lost through no fault of execution.
func IsException(prior, next LeadStatus) bool {
	if prior != LeadStatusInProcess && prior != LeadStatusAccepted {
		return false
	}
	return next == LeadStatusCanceled || next == LeadStatusRescheduled
}

// IsCompletion reports whether a status transition sends the assigned closer
// to the back of the lineup: a deal finished on its merits.
func IsCompletion(prior, next LeadStatus) bool {
	if prior != LeadStatusInProcess && prior != LeadStatusAccepted {
		return false
	}
	return next == LeadStatusSold || next == LeadStatusNoSale || next == LeadStatusCreditFail
}

// Assignable reports whether the lead may be handed to a closer right now.
// Unverified scheduled leads are soft holds and are not assignable.
func (l Lead) Assignable() bool {
	if l.Status == LeadStatusWaitingAssignment {
		return true
	}
	return l.Status == LeadStatusScheduled && l.SetterVerified
}

// ManualAssignable reports whether a manager may route the lead through the
// selector. Any non-terminal lead qualifies except an unverified scheduled
// hold: active leads may be recycled back into the rotation.
func (l Lead) ManualAssignable() bool {
	if l.Status.IsTerminal() {
		return false
	}
	return l.Status != LeadStatusScheduled || l.SetterVerified
}

// TargetStatusForAssignment computes the status a lead takes when assigned.
// A verified scheduled lead becomes an active assignment; otherwise the
// dispatch type decides.
func (l Lead) TargetStatusForAssignment() LeadStatus {
	if l.Status == LeadStatusScheduled && l.SetterVerified {
		return LeadStatusWaitingAssignment
	}
	if l.DispatchType == DispatchImmediate {
		return LeadStatusWaitingAssignment
	}
	return LeadStatusScheduled
}

// ActiveAssignmentStatuses are the lead statuses that count against a
// closer's load. A scheduled lead counts only when setter-verified; the
// store-level count applies that extra filter.
func ActiveAssignmentStatuses() []LeadStatus {
	return []LeadStatus{
		LeadStatusWaitingAssignment,
		LeadStatusScheduled,
		LeadStatusAccepted,
		LeadStatusInProcess,
	}
}
