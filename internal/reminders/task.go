// Package reminders schedules appointment reminder tasks and sweeps the due
// ones. Tasks are written when an assigned lead gains or changes its
// appointment time, claimed at most once by the sweeper, and never deleted.
package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task is one persisted appointment reminder. TeamID is resolved from the
// lead at claim time and is not stored on the row.
type Task struct {
	ID              uuid.UUID  `json:"id"`
	LeadID          uuid.UUID  `json:"leadId"`
	CloserID        uuid.UUID  `json:"closerId"`
	TeamID          uuid.UUID  `json:"teamId"`
	AppointmentTime time.Time  `json:"appointmentTime"`
	ReminderTime    time.Time  `json:"reminderTime"`
	Processed       bool       `json:"processed"`
	Superseded      bool       `json:"superseded"`
	CustomerName    string     `json:"customerName"`
	Address         *string    `json:"address,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
}

// InsertParams describes one new reminder task.
type InsertParams struct {
	LeadID          uuid.UUID
	CloserID        uuid.UUID
	AppointmentTime time.Time
	ReminderTime    time.Time
	CustomerName    string
	Address         *string
}

// Store is the reminder persistence capability.
type Store interface {
	Insert(ctx context.Context, params InsertParams) (Task, error)
	// SupersedeForLead flags the lead's unprocessed tasks so the sweeper
	// skips them. Returns how many tasks were superseded.
	SupersedeForLead(ctx context.Context, leadID uuid.UUID) (int64, error)
	// ClaimDue marks up to limit due, unprocessed, unsuperseded tasks as
	// processed and returns them. A task is returned by exactly one claim.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error)
}

// Dispatcher hands a claimed task to the delivery worker.
type Dispatcher interface {
	DispatchReminder(ctx context.Context, task Task) error
}

// ErrorSink records swallowed reaction failures.
type ErrorSink interface {
	Record(ctx context.Context, functionName, entityID, message string)
}
