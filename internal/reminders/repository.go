package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, params InsertParams) (Task, error) {
	var task Task
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointment_reminders (
			lead_id, closer_id, appointment_time, reminder_time, customer_name, address
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, lead_id, closer_id, appointment_time, reminder_time,
			processed, superseded, customer_name, address, created_at, processed_at
	`, params.LeadID, params.CloserID, params.AppointmentTime, params.ReminderTime,
		params.CustomerName, params.Address,
	).Scan(
		&task.ID, &task.LeadID, &task.CloserID, &task.AppointmentTime, &task.ReminderTime,
		&task.Processed, &task.Superseded, &task.CustomerName, &task.Address,
		&task.CreatedAt, &task.ProcessedAt,
	)
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

func (r *Repository) SupersedeForLead(ctx context.Context, leadID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointment_reminders
		SET superseded = TRUE
		WHERE lead_id = $1 AND processed = FALSE AND superseded = FALSE
	`, leadID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ClaimDue claims due tasks with SKIP LOCKED so concurrent sweepers never
// double-deliver, and marks them processed inside the same transaction. The
// team id comes from the lead row.
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT r.id, r.lead_id, r.closer_id, l.team_id, r.appointment_time, r.reminder_time,
			r.processed, r.superseded, r.customer_name, r.address, r.created_at, r.processed_at
		FROM appointment_reminders r
		JOIN leads l ON l.id = r.lead_id
		WHERE r.processed = FALSE AND r.superseded = FALSE AND r.reminder_time <= $1
		ORDER BY r.reminder_time ASC
		LIMIT $2
		FOR UPDATE OF r SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, limit)
	for rows.Next() {
		var task Task
		if err := rows.Scan(
			&task.ID, &task.LeadID, &task.CloserID, &task.TeamID,
			&task.AppointmentTime, &task.ReminderTime,
			&task.Processed, &task.Superseded, &task.CustomerName, &task.Address,
			&task.CreatedAt, &task.ProcessedAt,
		); err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, task)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(tasks) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]uuid.UUID, 0, len(tasks))
	for i := range tasks {
		ids = append(ids, tasks[i].ID)
		tasks[i].Processed = true
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointment_reminders
		SET processed = TRUE, processed_at = $2
		WHERE id = ANY($1)
	`, ids, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return tasks, nil
}

var _ Store = (*Repository)(nil)
