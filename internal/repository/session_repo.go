package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"cardforge-backend/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Create(ctx context.Context, s *models.GenerationSession) error {
	s.ID = uuid.New()

	query := `INSERT INTO generation_sessions
		(id, user_id, input_text, input_text_hash, model, custom_prompt, generation_duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING accepted_unedited_count, accepted_edited_count, created_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.UserID, s.InputText, s.InputTextHash, s.Model, s.CustomPrompt, s.GenerationDurationMs,
	).Scan(&s.AcceptedUneditedCount, &s.AcceptedEditedCount, &s.CreatedAt)
}

func (r *SessionRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.GenerationSession, error) {
	s := &models.GenerationSession{}
	query := `SELECT id, user_id, input_text, input_text_hash, model, custom_prompt,
		generation_duration_ms, accepted_unedited_count, accepted_edited_count, created_at
		FROM generation_sessions WHERE id = $1 AND user_id = $2`

	err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&s.ID, &s.UserID, &s.InputText, &s.InputTextHash, &s.Model, &s.CustomPrompt,
		&s.GenerationDurationMs, &s.AcceptedUneditedCount, &s.AcceptedEditedCount, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// IncrementCounters adds to the acceptance counters in a single storage-side
// update so concurrent action batches on the same session never lose counts.
func (r *SessionRepo) IncrementCounters(ctx context.Context, id, userID uuid.UUID, unedited, edited int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE generation_sessions
		SET accepted_unedited_count = accepted_unedited_count + $1,
			accepted_edited_count = accepted_edited_count + $2
		WHERE id = $3
		  AND user_id = $4
	`, unedited, edited, id, userID)
	return err
}
