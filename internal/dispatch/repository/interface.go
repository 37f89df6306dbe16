package repository

import (
	"context"
	"errors"
	"time"

	"dispatch_backend/internal/dispatch/domain"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lead or closer does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStaleSelection is returned by AssignLead when the closer's state
	// changed between selection and the conditional assignment write.
	ErrStaleSelection = errors.New("closer selection is stale")
)

// CandidateCloser pairs a closer with its active assignment load at
// selection time. The load is re-checked inside the assignment transaction.
type CandidateCloser struct {
	Closer            domain.Closer
	ActiveAssignments int
}

// AssignLeadParams describes one conditional lead assignment.
type AssignLeadParams struct {
	LeadID       uuid.UUID
	CloserUID    uuid.UUID
	CloserName   string
	TargetStatus domain.LeadStatus
	// ExpectedActiveCount is the closer's load observed during selection.
	// The write fails with ErrStaleSelection when the count moved.
	ExpectedActiveCount int
}

// CreateLeadParams describes a new lead at intake.
type CreateLeadParams struct {
	TeamID                   uuid.UUID
	Status                   domain.LeadStatus
	DispatchType             domain.DispatchType
	ScheduledAppointmentTime *time.Time
	SetterVerified           bool
	SetterID                 *uuid.UUID
	CustomerName             string
	CustomerPhone            string
	Address                  *string
}

// UpdateLeadParams carries the mutable intake fields of a lead.
type UpdateLeadParams struct {
	Status                   *domain.LeadStatus
	ScheduledAppointmentTime *time.Time
	SetterVerified           *bool
}

// LeadStore is the lead persistence capability consumed by the engine.
type LeadStore interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	CreateLead(ctx context.Context, params CreateLeadParams) (domain.Lead, error)
	// AssignLead performs the selection-conditional assignment write: it
	// locks the closer row, re-checks duty status and active load, then
	// writes the assignment fields and target status in one transaction.
	AssignLead(ctx context.Context, params AssignLeadParams) (domain.Lead, error)
	// ReleaseLead clears the assignment and returns the lead to
	// waiting_assignment.
	ReleaseLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	// AcceptLead marks the lead accepted by its assigned closer.
	AcceptLead(ctx context.Context, id uuid.UUID, closerID uuid.UUID, at time.Time) (domain.Lead, error)
	UpdateLeadStatus(ctx context.Context, id uuid.UUID, to domain.LeadStatus) (domain.Lead, error)
	UpdateLead(ctx context.Context, id uuid.UUID, params UpdateLeadParams) (domain.Lead, error)
	// LeadsAssignedTo lists a closer's leads in the given statuses.
	LeadsAssignedTo(ctx context.Context, closerID uuid.UUID, statuses []domain.LeadStatus) ([]domain.Lead, error)
}

// CloserStore is the closer persistence capability consumed by the engine.
type CloserStore interface {
	GetCloser(ctx context.Context, uid uuid.UUID) (domain.Closer, error)
	// OnDutyCandidates returns the team's On Duty closers ordered by lineup
	// position, each with its current active assignment count. Unverified
	// scheduled leads do not count against load.
	OnDutyCandidates(ctx context.Context, teamID uuid.UUID) ([]CandidateCloser, error)
	// TeamLineupBounds returns the min and max lineup order over the team's
	// On Duty closers and how many there are. Off Duty closers are not part
	// of the lineup.
	TeamLineupBounds(ctx context.Context, teamID uuid.UUID) (min int64, max int64, count int, err error)
	SetLineupOrder(ctx context.Context, uid uuid.UUID, order int64) (domain.Closer, error)
	// RecordException moves the closer and stamps the exception audit fields.
	RecordException(ctx context.Context, uid uuid.UUID, order int64, reason string, at time.Time) (domain.Closer, error)
	UpdateCloserStatus(ctx context.Context, uid uuid.UUID, status domain.CloserStatus) (domain.Closer, error)
}

// ActivityParams describes one append-only activity log entry.
type ActivityParams struct {
	Type     string
	LeadID   *uuid.UUID
	CloserID *uuid.UUID
	TeamID   uuid.UUID
	Metadata map[string]any
}

// ActivityStore appends and reads the audit trail. Entries are never mutated.
type ActivityStore interface {
	Append(ctx context.Context, params ActivityParams) error
	ListByTeam(ctx context.Context, teamID uuid.UUID, limit int) ([]Activity, error)
}

// ErrorSink records swallowed reaction failures for the manager-facing trail.
type ErrorSink interface {
	Record(ctx context.Context, functionName, entityID, message string)
}
