// Package repository provides pgx-backed persistence for the dispatch engine
// plus the narrow store interfaces the services consume. The interfaces keep
// the engine testable against in-memory fakes.
package repository

import (
	"context"
	"errors"
	"time"

	"dispatch_backend/internal/dispatch/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const leadColumns = `id, team_id, status, dispatch_type, assigned_closer_id, assigned_closer_name,
	scheduled_appointment_time, setter_verified, setter_id, customer_name, customer_phone, address,
	accepted_at, accepted_by, created_at, updated_at`

// activeLoadCondition filters the lead statuses that count against a
// closer's load; unverified scheduled leads are soft holds.
const activeLoadCondition = `status = ANY($2) AND NOT (status = 'scheduled' AND setter_verified = false)`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanLead(row pgx.Row) (domain.Lead, error) {
	var lead domain.Lead
	err := row.Scan(
		&lead.ID, &lead.TeamID, &lead.Status, &lead.DispatchType,
		&lead.AssignedCloserID, &lead.AssignedCloserName,
		&lead.ScheduledAppointmentTime, &lead.SetterVerified, &lead.SetterID,
		&lead.CustomerName, &lead.CustomerPhone, &lead.Address,
		&lead.AcceptedAt, &lead.AcceptedBy, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
}

func (r *Repository) CreateLead(ctx context.Context, params CreateLeadParams) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			team_id, status, dispatch_type, scheduled_appointment_time,
			setter_verified, setter_id, customer_name, customer_phone, address
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+leadColumns,
		params.TeamID, params.Status, params.DispatchType, params.ScheduledAppointmentTime,
		params.SetterVerified, params.SetterID, params.CustomerName, params.CustomerPhone, params.Address,
	))
}

// AssignLead writes one assignment inside a conditional transaction. The
// closer row is locked, duty status and active load are re-checked against
// the selection snapshot, then the lead is updated. A moved load or a closer
// gone off duty surfaces as ErrStaleSelection so the caller can reselect.
func (r *Repository) AssignLead(ctx context.Context, params AssignLeadParams) (domain.Lead, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Lead{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var closerStatus string
	err = tx.QueryRow(ctx,
		`SELECT status FROM closers WHERE uid = $1 FOR UPDATE`,
		params.CloserUID,
	).Scan(&closerStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrStaleSelection
	}
	if err != nil {
		return domain.Lead{}, err
	}
	if domain.CloserStatus(closerStatus) != domain.CloserOnDuty {
		return domain.Lead{}, ErrStaleSelection
	}

	var activeCount int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM leads WHERE assigned_closer_id = $1 AND `+activeLoadCondition,
		params.CloserUID, leadStatusStrings(domain.ActiveAssignmentStatuses()),
	).Scan(&activeCount)
	if err != nil {
		return domain.Lead{}, err
	}
	if params.ExpectedActiveCount >= 0 && activeCount != params.ExpectedActiveCount {
		return domain.Lead{}, ErrStaleSelection
	}

	lead, err := scanLead(tx.QueryRow(ctx, `
		UPDATE leads
		SET assigned_closer_id = $2, assigned_closer_name = $3, status = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns,
		params.LeadID, params.CloserUID, params.CloserName, params.TargetStatus,
	))
	if err != nil {
		return domain.Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

func (r *Repository) ReleaseLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads
		SET assigned_closer_id = NULL, assigned_closer_name = NULL,
			status = 'waiting_assignment', updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns, id))
}

func (r *Repository) AcceptLead(ctx context.Context, id uuid.UUID, closerID uuid.UUID, at time.Time) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads
		SET status = 'accepted', accepted_at = $3, accepted_by = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns, id, closerID, at))
}

func (r *Repository) UpdateLeadStatus(ctx context.Context, id uuid.UUID, to domain.LeadStatus) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns, id, to))
}

func (r *Repository) UpdateLead(ctx context.Context, id uuid.UUID, params UpdateLeadParams) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads
		SET status = COALESCE($2, status),
			scheduled_appointment_time = COALESCE($3, scheduled_appointment_time),
			setter_verified = COALESCE($4, setter_verified),
			updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns,
		id, params.Status, params.ScheduledAppointmentTime, params.SetterVerified))
}

func (r *Repository) LeadsAssignedTo(ctx context.Context, closerID uuid.UUID, statuses []domain.LeadStatus) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE assigned_closer_id = $1 AND status = ANY($2)
		ORDER BY created_at ASC
	`, closerID, leadStatusStrings(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func leadStatusStrings(statuses []domain.LeadStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
