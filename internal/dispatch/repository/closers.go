package repository

import (
	"context"
	"errors"
	"time"

	"dispatch_backend/internal/dispatch/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const closerColumns = `uid, team_id, name, status, lineup_order,
	last_exception_at, last_exception_reason, created_at, updated_at`

func scanCloser(row pgx.Row) (domain.Closer, error) {
	var closer domain.Closer
	err := row.Scan(
		&closer.UID, &closer.TeamID, &closer.Name, &closer.Status, &closer.LineupOrder,
		&closer.LastExceptionAt, &closer.LastExceptionReason, &closer.CreatedAt, &closer.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Closer{}, ErrNotFound
	}
	return closer, err
}

func (r *Repository) GetCloser(ctx context.Context, uid uuid.UUID) (domain.Closer, error) {
	return scanCloser(r.pool.QueryRow(ctx, `SELECT `+closerColumns+` FROM closers WHERE uid = $1`, uid))
}

// OnDutyCandidates returns the team's On Duty closers in lineup order with
// their active assignment counts. Ties on lineup order break by name.
func (r *Repository) OnDutyCandidates(ctx context.Context, teamID uuid.UUID) ([]CandidateCloser, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.uid, c.team_id, c.name, c.status, c.lineup_order,
			c.last_exception_at, c.last_exception_reason, c.created_at, c.updated_at,
			COUNT(l.id) FILTER (
				WHERE l.status = ANY($2)
				AND NOT (l.status = 'scheduled' AND l.setter_verified = false)
			) AS active_assignments
		FROM closers c
		LEFT JOIN leads l ON l.assigned_closer_id = c.uid
		WHERE c.team_id = $1 AND c.status = 'On Duty'
		GROUP BY c.uid
		ORDER BY c.lineup_order ASC, c.name ASC
	`, teamID, leadStatusStrings(domain.ActiveAssignmentStatuses()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]CandidateCloser, 0)
	for rows.Next() {
		var cand CandidateCloser
		if err := rows.Scan(
			&cand.Closer.UID, &cand.Closer.TeamID, &cand.Closer.Name, &cand.Closer.Status,
			&cand.Closer.LineupOrder, &cand.Closer.LastExceptionAt, &cand.Closer.LastExceptionReason,
			&cand.Closer.CreatedAt, &cand.Closer.UpdatedAt, &cand.ActiveAssignments,
		); err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}

func (r *Repository) TeamLineupBounds(ctx context.Context, teamID uuid.UUID) (int64, int64, int, error) {
	var min, max *int64
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT MIN(lineup_order), MAX(lineup_order), COUNT(*)
		FROM closers WHERE team_id = $1 AND status = 'On Duty'
	`, teamID).Scan(&min, &max, &count)
	if err != nil {
		return 0, 0, 0, err
	}
	if count == 0 || min == nil || max == nil {
		return 0, 0, 0, nil
	}
	return *min, *max, count, nil
}

func (r *Repository) SetLineupOrder(ctx context.Context, uid uuid.UUID, order int64) (domain.Closer, error) {
	return scanCloser(r.pool.QueryRow(ctx, `
		UPDATE closers SET lineup_order = $2, updated_at = now()
		WHERE uid = $1
		RETURNING `+closerColumns, uid, order))
}

func (r *Repository) RecordException(ctx context.Context, uid uuid.UUID, order int64, reason string, at time.Time) (domain.Closer, error) {
	return scanCloser(r.pool.QueryRow(ctx, `
		UPDATE closers
		SET lineup_order = $2, last_exception_at = $4, last_exception_reason = $3, updated_at = now()
		WHERE uid = $1
		RETURNING `+closerColumns, uid, order, reason, at))
}

func (r *Repository) UpdateCloserStatus(ctx context.Context, uid uuid.UUID, status domain.CloserStatus) (domain.Closer, error) {
	return scanCloser(r.pool.QueryRow(ctx, `
		UPDATE closers SET status = $2, updated_at = now()
		WHERE uid = $1
		RETURNING `+closerColumns, uid, status))
}
