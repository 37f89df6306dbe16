package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Activity log entry types written by the engine.
const (
	ActivityLeadAssigned         = "lead_assigned"
	ActivityLeadAccepted         = "lead_accepted"
	ActivityCloserAddedToLineup  = "closer_added_to_lineup"
	ActivityRoundRobinException  = "round_robin_exception"
	ActivityRoundRobinCompletion = "round_robin_completion"
	ActivityNoAvailableClosers   = "no_available_closers"
)

// Activity is one append-only audit record.
type Activity struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	LeadID    *uuid.UUID      `json:"leadId,omitempty"`
	CloserID  *uuid.UUID      `json:"closerId,omitempty"`
	TeamID    uuid.UUID       `json:"teamId"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (r *Repository) Append(ctx context.Context, params ActivityParams) error {
	metadata, err := json.Marshal(params.Metadata)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO activities (type, lead_id, closer_id, team_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, params.Type, params.LeadID, params.CloserID, params.TeamID, metadata)
	return err
}

func (r *Repository) ListByTeam(ctx context.Context, teamID uuid.UUID, limit int) ([]Activity, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, type, lead_id, closer_id, team_id, metadata, created_at
		FROM activities
		WHERE team_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, teamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Activity, 0, limit)
	for rows.Next() {
		var item Activity
		if err := rows.Scan(&item.ID, &item.Type, &item.LeadID, &item.CloserID, &item.TeamID, &item.Metadata, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
