package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"cardforge-backend/internal/models"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Append writes one immutable event-log row. Entries are never updated or
// deleted.
func (r *EventRepo) Append(ctx context.Context, e *models.EventLogEntry) error {
	e.ID = uuid.New()

	query := `INSERT INTO event_log (id, user_id, session_id, event_type)
		VALUES ($1, $2, $3, $4) RETURNING created_at`

	return r.pool.QueryRow(ctx, query, e.ID, e.UserID, e.SessionID, e.EventType).Scan(&e.CreatedAt)
}

func (r *EventRepo) ListBySession(ctx context.Context, userID, sessionID uuid.UUID) ([]*models.EventLogEntry, error) {
	query := `SELECT id, user_id, session_id, event_type, created_at
		FROM event_log WHERE user_id = $1 AND session_id = $2 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.EventLogEntry
	for rows.Next() {
		e := &models.EventLogEntry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.SessionID, &e.EventType, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
