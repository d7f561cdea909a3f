package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"cardforge-backend/internal/models"
)

// OrphanStaleness is the default age after which a session with pending
// candidates counts as abandoned.
const OrphanStaleness = 7 * 24 * time.Hour

// Narrow storage surfaces the review flow needs. The concrete repositories
// satisfy them.

type sessionStore interface {
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.GenerationSession, error)
	IncrementCounters(ctx context.Context, id, userID uuid.UUID, unedited, edited int) error
}

type candidateStore interface {
	GetPendingIDs(ctx context.Context, userID, sessionID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	Accept(ctx context.Context, userID, sessionID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)
	EditAndAccept(ctx context.Context, userID, sessionID, id uuid.UUID, front, back string) (bool, error)
	Reject(ctx context.Context, userID, sessionID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)
	ListPending(ctx context.Context, userID, sessionID uuid.UUID) ([]*models.Flashcard, error)
	ListOtherPending(ctx context.Context, userID, excludeSessionID uuid.UUID) ([]*models.Flashcard, error)
	ListOrphaned(ctx context.Context, userID uuid.UUID, olderThan time.Time) ([]*models.Flashcard, error)
}

type eventStore interface {
	Append(ctx context.Context, e *models.EventLogEntry) error
	ListBySession(ctx context.Context, userID, sessionID uuid.UUID) ([]*models.EventLogEntry, error)
}

// ReviewService applies accept/edit/reject batches to candidates and keeps
// session counters and the event log consistent.
type ReviewService struct {
	sessionRepo sessionStore
	cardRepo    candidateStore
	eventRepo   eventStore
	redis       *redis.Client
}

func NewReviewService(
	sessionRepo sessionStore,
	cardRepo candidateStore,
	eventRepo eventStore,
	redisClient *redis.Client,
) *ReviewService {
	return &ReviewService{
		sessionRepo: sessionRepo,
		cardRepo:    cardRepo,
		eventRepo:   eventRepo,
		redis:       redisClient,
	}
}

// editPlan is one validated edit action ready to apply.
type editPlan struct {
	id    uuid.UUID
	front string
	back  string
}

// actionPlan is a fully validated batch, partitioned by action kind.
type actionPlan struct {
	accepts []uuid.UUID
	edits   []editPlan
	rejects []uuid.UUID
}

func (p *actionPlan) ids() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.accepts)+len(p.edits)+len(p.rejects))
	ids = append(ids, p.accepts...)
	for _, e := range p.edits {
		ids = append(ids, e.id)
	}
	ids = append(ids, p.rejects...)
	return ids
}

// ApplyActions validates and applies one action batch against a session.
// Validation is all-or-nothing: no candidate is mutated unless the entire
// batch passes.
func (s *ReviewService) ApplyActions(ctx context.Context, userID, sessionID uuid.UUID, actions []models.CandidateAction) (*models.CandidateActionsResult, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, err
	}

	plan, err := partitionActions(actions)
	if err != nil {
		return nil, err
	}

	ids := plan.ids()
	pending, err := s.cardRepo.GetPendingIDs(ctx, userID, session.ID, ids)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(ids, pending); len(missing) > 0 {
		return nil, &NotFoundError{Message: "Candidates not found: " + joinIDs(missing)}
	}

	result := &models.CandidateActionsResult{
		Accepted: []uuid.UUID{},
		Edited:   []uuid.UUID{},
		Rejected: []uuid.UUID{},
	}
	if len(plan.accepts) > 0 {
		applied, err := s.cardRepo.Accept(ctx, userID, session.ID, plan.accepts)
		if err != nil {
			return nil, err
		}
		result.Accepted = append(result.Accepted, applied...)
	}
	for _, e := range plan.edits {
		applied, err := s.cardRepo.EditAndAccept(ctx, userID, session.ID, e.id, e.front, e.back)
		if err != nil {
			return nil, err
		}
		if applied {
			result.Edited = append(result.Edited, e.id)
		}
	}
	if len(plan.rejects) > 0 {
		applied, err := s.cardRepo.Reject(ctx, userID, session.ID, plan.rejects)
		if err != nil {
			return nil, err
		}
		result.Rejected = append(result.Rejected, applied...)
	}

	// Counters and events reflect what the guarded updates actually touched,
	// never the planned counts, so a candidate resolved by a concurrent batch
	// cannot be counted twice.
	if len(result.Accepted) > 0 || len(result.Edited) > 0 {
		if err := s.sessionRepo.IncrementCounters(ctx, session.ID, userID, len(result.Accepted), len(result.Edited)); err != nil {
			return nil, err
		}
	}

	s.logBatchEvents(ctx, userID, session.ID, result)

	// Ids that passed the pending check but lost the race to another batch
	// surface the same way as unknown ids.
	appliedSet := make(map[uuid.UUID]bool, len(ids))
	for _, id := range result.Accepted {
		appliedSet[id] = true
	}
	for _, id := range result.Edited {
		appliedSet[id] = true
	}
	for _, id := range result.Rejected {
		appliedSet[id] = true
	}
	if lost := missingIDs(ids, appliedSet); len(lost) > 0 {
		return nil, &NotFoundError{Message: "Candidates not found: " + joinIDs(lost)}
	}
	return result, nil
}

// partitionActions validates the raw batch and splits it by action kind.
func partitionActions(actions []models.CandidateAction) (*actionPlan, error) {
	if len(actions) == 0 {
		return nil, &ValidationError{Fields: map[string]string{
			"actions": "at least one action is required",
		}}
	}

	plan := &actionPlan{}
	seen := make(map[uuid.UUID]bool, len(actions))

	for i, a := range actions {
		field := fmt.Sprintf("actions[%d]", i)

		if a.CandidateID == uuid.Nil {
			return nil, &ValidationError{Fields: map[string]string{
				field + ".candidate_id": "candidate_id is required",
			}}
		}
		if seen[a.CandidateID] {
			return nil, &ValidationError{Fields: map[string]string{
				field + ".candidate_id": "candidate_id appears more than once in the batch",
			}}
		}
		seen[a.CandidateID] = true

		switch a.Action {
		case models.ActionAccept:
			plan.accepts = append(plan.accepts, a.CandidateID)

		case models.ActionEdit:
			if a.EditedFront == nil || a.EditedBack == nil {
				return nil, &ValidationError{Fields: map[string]string{
					field: "edit actions require both edited_front and edited_back",
				}}
			}
			if err := ValidateCardText(*a.EditedFront, *a.EditedBack); err != "" {
				return nil, &ValidationError{Fields: map[string]string{field: err}}
			}
			plan.edits = append(plan.edits, editPlan{id: a.CandidateID, front: *a.EditedFront, back: *a.EditedBack})

		case models.ActionReject:
			plan.rejects = append(plan.rejects, a.CandidateID)

		default:
			return nil, &ValidationError{Fields: map[string]string{
				field + ".action": fmt.Sprintf("action must be accept, edit or reject, got %q", a.Action),
			}}
		}
	}

	return plan, nil
}

// ValidateCardText checks front/back against the column limits. Returns an
// empty string when the text is acceptable.
func ValidateCardText(front, back string) string {
	if front == "" {
		return "front must not be empty"
	}
	if back == "" {
		return "back must not be empty"
	}
	if utf8.RuneCountInString(front) > models.MaxFrontLen {
		return fmt.Sprintf("front must be at most %d characters", models.MaxFrontLen)
	}
	if utf8.RuneCountInString(back) > models.MaxBackLen {
		return fmt.Sprintf("back must be at most %d characters", models.MaxBackLen)
	}
	return ""
}

func missingIDs(ids []uuid.UUID, found map[uuid.UUID]bool) []uuid.UUID {
	var missing []uuid.UUID
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func joinIDs(ids []uuid.UUID) string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	sort.Strings(strs)
	return strings.Join(strs, ", ")
}

// logBatchEvents writes one entry per non-zero category plus a summary entry,
// all from the actually-applied counts.
func (s *ReviewService) logBatchEvents(ctx context.Context, userID, sessionID uuid.UUID, res *models.CandidateActionsResult) {
	if n := len(res.Accepted); n > 0 {
		s.logEvent(ctx, userID, sessionID, fmt.Sprintf("candidates_accepted_unedited:%d", n))
	}
	if n := len(res.Edited); n > 0 {
		s.logEvent(ctx, userID, sessionID, fmt.Sprintf("candidates_accepted_edited:%d", n))
	}
	if n := len(res.Rejected); n > 0 {
		s.logEvent(ctx, userID, sessionID, fmt.Sprintf("candidates_rejected:%d", n))
	}
	total := len(res.Accepted) + len(res.Edited) + len(res.Rejected)
	s.logEvent(ctx, userID, sessionID, fmt.Sprintf("candidate_actions_processed:total=%d", total))
}

func (s *ReviewService) logEvent(ctx context.Context, userID, sessionID uuid.UUID, eventType string) {
	entry := &models.EventLogEntry{UserID: userID, SessionID: &sessionID, EventType: eventType}
	if err := s.eventRepo.Append(ctx, entry); err != nil {
		log.Printf("event log append failed: %v", err)
		return
	}
	publishEvent(ctx, s.redis, userID, entry)
}

func (s *ReviewService) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.GenerationSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, err
	}
	return session, nil
}

// Read-side multi-session tracker. None of these mutate state.

func (s *ReviewService) ListPending(ctx context.Context, userID, sessionID uuid.UUID) ([]*models.Flashcard, error) {
	if _, err := s.sessionRepo.GetByID(ctx, sessionID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, err
	}
	return s.cardRepo.ListPending(ctx, userID, sessionID)
}

// ListOtherPending returns still-undecided candidates from every session
// except the one the client is currently reviewing.
func (s *ReviewService) ListOtherPending(ctx context.Context, userID, excludeSessionID uuid.UUID) ([]*models.Flashcard, error) {
	return s.cardRepo.ListOtherPending(ctx, userID, excludeSessionID)
}

// ListOrphaned returns pending candidates from sessions older than the
// staleness threshold.
func (s *ReviewService) ListOrphaned(ctx context.Context, userID uuid.UUID, staleness time.Duration) ([]*models.Flashcard, error) {
	if staleness <= 0 {
		staleness = OrphanStaleness
	}
	return s.cardRepo.ListOrphaned(ctx, userID, time.Now().Add(-staleness))
}

func (s *ReviewService) SessionEvents(ctx context.Context, userID, sessionID uuid.UUID) ([]*models.EventLogEntry, error) {
	if _, err := s.sessionRepo.GetByID(ctx, sessionID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, err
	}
	return s.eventRepo.ListBySession(ctx, userID, sessionID)
}
