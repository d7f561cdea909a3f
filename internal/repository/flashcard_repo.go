package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cardforge-backend/internal/models"
)

type FlashcardRepo struct {
	pool *pgxpool.Pool
}

func NewFlashcardRepo(pool *pgxpool.Pool) *FlashcardRepo {
	return &FlashcardRepo{pool: pool}
}

const flashcardColumns = `id, user_id, session_id, front, back, source, created_at, updated_at, deleted_at`

func (r *FlashcardRepo) Create(ctx context.Context, c *models.Flashcard) error {
	c.ID = uuid.New()

	query := `INSERT INTO flashcards (id, user_id, session_id, front, back, source)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		c.ID, c.UserID, c.SessionID, c.Front, c.Back, c.Source,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// CreateBatch inserts generated candidates linked to their session.
func (r *FlashcardRepo) CreateBatch(ctx context.Context, cards []*models.Flashcard) error {
	for _, c := range cards {
		if err := r.Create(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *FlashcardRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Flashcard, error) {
	query := `SELECT ` + flashcardColumns + ` FROM flashcards
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	return r.scanOne(r.pool.QueryRow(ctx, query, id, userID))
}

// ListCollection returns the user's permanent cards: manual cards plus
// accepted candidates. Pending candidates (session_id still set) are excluded.
func (r *FlashcardRepo) ListCollection(ctx context.Context, userID uuid.UUID) ([]*models.Flashcard, error) {
	query := `SELECT ` + flashcardColumns + ` FROM flashcards
		WHERE user_id = $1 AND deleted_at IS NULL AND session_id IS NULL
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *FlashcardRepo) Update(ctx context.Context, id, userID uuid.UUID, front, back string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE flashcards
		SET front = $1, back = $2, updated_at = NOW()
		WHERE id = $3 AND user_id = $4 AND deleted_at IS NULL
	`, front, back, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *FlashcardRepo) SoftDelete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE flashcards
		SET deleted_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Candidate queries — a candidate is pending while session_id is set and the
// card is not soft-deleted.

func (r *FlashcardRepo) ListPending(ctx context.Context, userID, sessionID uuid.UUID) ([]*models.Flashcard, error) {
	query := `SELECT ` + flashcardColumns + ` FROM flashcards
		WHERE user_id = $1 AND session_id = $2 AND deleted_at IS NULL
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *FlashcardRepo) ListOtherPending(ctx context.Context, userID, excludeSessionID uuid.UUID) ([]*models.Flashcard, error) {
	query := `SELECT ` + flashcardColumns + ` FROM flashcards
		WHERE user_id = $1 AND session_id IS NOT NULL AND session_id != $2 AND deleted_at IS NULL
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, userID, excludeSessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// ListOrphaned surfaces still-pending candidates whose session predates the
// staleness cutoff, so abandoned batches are never silently lost.
func (r *FlashcardRepo) ListOrphaned(ctx context.Context, userID uuid.UUID, olderThan time.Time) ([]*models.Flashcard, error) {
	query := `SELECT f.id, f.user_id, f.session_id, f.front, f.back, f.source, f.created_at, f.updated_at, f.deleted_at
		FROM flashcards f
		JOIN generation_sessions s ON s.id = f.session_id
		WHERE f.user_id = $1 AND f.session_id IS NOT NULL AND f.deleted_at IS NULL
		  AND s.created_at < $2
		ORDER BY s.created_at ASC, f.created_at ASC`

	rows, err := r.pool.Query(ctx, query, userID, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// GetPendingIDs returns which of the given ids are still pending in the
// given session for this user. Resolved, rejected, or foreign ids simply do
// not come back.
func (r *FlashcardRepo) GetPendingIDs(ctx context.Context, userID, sessionID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM flashcards
		WHERE id = ANY($1) AND user_id = $2 AND session_id = $3 AND deleted_at IS NULL
	`, ids, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	return found, rows.Err()
}

// Accept resolves pending candidates of one session into permanent cards and
// returns the ids it actually touched. A candidate already resolved by a
// concurrent batch fails the pending guard and is absent from the result.
func (r *FlashcardRepo) Accept(ctx context.Context, userID, sessionID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE flashcards
		SET session_id = NULL, updated_at = NOW()
		WHERE id = ANY($1) AND user_id = $2 AND session_id = $3 AND deleted_at IS NULL
		RETURNING id
	`, ids, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// EditAndAccept overwrites the card text and resolves it in one update.
// Reports whether the candidate was still pending when the update ran.
func (r *FlashcardRepo) EditAndAccept(ctx context.Context, userID, sessionID, id uuid.UUID, front, back string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE flashcards
		SET front = $1, back = $2, session_id = NULL, updated_at = NOW()
		WHERE id = $3 AND user_id = $4 AND session_id = $5 AND deleted_at IS NULL
	`, front, back, id, userID, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Reject soft-deletes pending candidates of one session and returns the ids
// it actually touched. session_id is left in place; the deletion flag alone
// excludes them from listings.
func (r *FlashcardRepo) Reject(ctx context.Context, userID, sessionID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE flashcards
		SET deleted_at = NOW()
		WHERE id = ANY($1) AND user_id = $2 AND session_id = $3 AND deleted_at IS NULL
		RETURNING id
	`, ids, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *FlashcardRepo) scanOne(row interface{ Scan(...any) error }) (*models.Flashcard, error) {
	c := &models.Flashcard{}
	err := row.Scan(&c.ID, &c.UserID, &c.SessionID, &c.Front, &c.Back, &c.Source, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *FlashcardRepo) scanAll(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]*models.Flashcard, error) {
	var cards []*models.Flashcard
	for rows.Next() {
		c := &models.Flashcard{}
		err := rows.Scan(&c.ID, &c.UserID, &c.SessionID, &c.Front, &c.Back, &c.Source, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
