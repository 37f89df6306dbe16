package repository

import (
	"context"

	"dispatch_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgErrorSink persists swallowed reaction failures to the function_errors
// table. Recording is itself best-effort: a sink write failure is logged and
// dropped, never propagated, so a broken sink cannot re-trigger a reaction.
type PgErrorSink struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewErrorSink(pool *pgxpool.Pool, log *logger.Logger) *PgErrorSink {
	return &PgErrorSink{pool: pool, log: log}
}

func (s *PgErrorSink) Record(ctx context.Context, functionName, entityID, message string) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO function_errors (function_name, entity_id, message)
		VALUES ($1, $2, $3)
	`, functionName, entityID, message)
	if err != nil && s.log != nil {
		s.log.DatabaseError("record_function_error", err)
	}
}
