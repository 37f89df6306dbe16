// Package transport defines the request and response shapes of the dispatch
// HTTP surface.
package transport

import (
	"time"
)

// CreateLeadRequest is the intake payload.
type CreateLeadRequest struct {
	TeamID                   string     `json:"teamId" validate:"required,uuid"`
	Status                   string     `json:"status" validate:"omitempty,oneof=waiting_assignment scheduled"`
	DispatchType             string     `json:"dispatchType" validate:"required,oneof=immediate scheduled"`
	ScheduledAppointmentTime *time.Time `json:"scheduledAppointmentTime"`
	SetterVerified           bool       `json:"setterVerified"`
	SetterID                 *string    `json:"setterId" validate:"omitempty,uuid"`
	CustomerName             string     `json:"customerName" validate:"required,max=200"`
	CustomerPhone            string     `json:"customerPhone" validate:"required,max=32"`
	Address                  *string    `json:"address" validate:"omitempty,max=500"`
}

// UpdateLeadRequest carries the mutable intake fields. Absent fields are
// left untouched.
type UpdateLeadRequest struct {
	Status                   *string    `json:"status"`
	ScheduledAppointmentTime *time.Time `json:"scheduledAppointmentTime"`
	SetterVerified           *bool      `json:"setterVerified"`
}

// UpdateLeadStatusRequest applies one lifecycle transition.
type UpdateLeadStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateCloserStatusRequest flips a closer's duty status.
type UpdateCloserStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ListActivitiesRequest pages the team activity feed.
type ListActivitiesRequest struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=200"`
}
