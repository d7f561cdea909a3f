package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cardforge-backend/internal/llm"
	"cardforge-backend/internal/models"
	"cardforge-backend/internal/repository"
)

const (
	MinInputLen = 1000
	MaxInputLen = 10000

	maxCustomPromptLen = 1000

	DefaultModel = "openai/gpt-4o-mini"

	generationTemperature = 0.7
	generationMaxTokens   = 4000
)

// allowedModels is the fixed allow-list of completion models. Not
// user-extensible.
var allowedModels = map[string]bool{
	DefaultModel:                  true,
	"anthropic/claude-3.5-sonnet": true,
	"google/gemini-2.0-flash-001": true,
}

// ChatClient is the gateway surface the orchestrator needs.
type ChatClient interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
	ListModels(ctx context.Context) ([]llm.Model, error)
}

type GenerationService struct {
	llm         ChatClient
	sessionRepo *repository.SessionRepo
	cardRepo    *repository.FlashcardRepo
	eventRepo   *repository.EventRepo
	redis       *redis.Client
}

func NewGenerationService(
	llmClient ChatClient,
	sessionRepo *repository.SessionRepo,
	cardRepo *repository.FlashcardRepo,
	eventRepo *repository.EventRepo,
	redisClient *redis.Client,
) *GenerationService {
	return &GenerationService{
		llm:         llmClient,
		sessionRepo: sessionRepo,
		cardRepo:    cardRepo,
		eventRepo:   eventRepo,
		redis:       redisClient,
	}
}

// Generate turns pasted source text into a generation session with validated
// candidates. Input is validated before any network call is made.
func (s *GenerationService) Generate(ctx context.Context, userID uuid.UUID, req models.GenerateSessionRequest) (*models.GenerateSessionResponse, error) {
	if req.Model == "" {
		req.Model = DefaultModel
	}
	if err := validateGenerateRequest(req); err != nil {
		return nil, err
	}

	temp := float64(generationTemperature)
	start := time.Now()
	resp, err := s.llm.Chat(ctx, llm.ChatRequest{
		Model:          req.Model,
		Messages:       buildGenerationMessages(req.InputText, req.CustomPrompt),
		Temperature:    &temp,
		MaxTokens:      generationMaxTokens,
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	})
	durationMs := int(time.Since(start).Milliseconds())
	if err != nil {
		return nil, mapUpstreamError(err)
	}

	entries, err := parseCandidates(resp.Content)
	if err != nil {
		return nil, err
	}

	session := &models.GenerationSession{
		UserID:               userID,
		InputText:            req.InputText,
		InputTextHash:        hashInputText(req.InputText),
		Model:                req.Model,
		CustomPrompt:         req.CustomPrompt,
		GenerationDurationMs: durationMs,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	cards := make([]*models.Flashcard, len(entries))
	for i, e := range entries {
		cards[i] = &models.Flashcard{
			UserID:    userID,
			SessionID: &session.ID,
			Front:     e.Front,
			Back:      e.Back,
			Source:    models.SourceAI,
		}
	}
	if err := s.cardRepo.CreateBatch(ctx, cards); err != nil {
		return nil, err
	}

	s.logEvent(ctx, userID, &session.ID, fmt.Sprintf("candidates_generated:%d", len(cards)))
	log.Printf("Generation session %s: %d candidates in %dms (model %s, %d tokens)",
		session.ID, len(cards), durationMs, req.Model, resp.Usage.TotalTokens)

	out := &models.GenerateSessionResponse{
		ID:            session.ID,
		Candidates:    make([]models.Candidate, len(cards)),
		InputTextHash: session.InputTextHash,
	}
	for i, c := range cards {
		out.Candidates[i] = models.Candidate{
			ID:     c.ID,
			Front:  c.Front,
			Back:   c.Back,
			Prompt: entries[i].Prompt,
		}
	}
	return out, nil
}

// Models returns the gateway's model catalog (served from its age-based
// cache when fresh).
func (s *GenerationService) Models(ctx context.Context) ([]llm.Model, error) {
	catalog, err := s.llm.ListModels(ctx)
	if err != nil {
		return nil, mapUpstreamError(err)
	}
	return catalog, nil
}

func validateGenerateRequest(req models.GenerateSessionRequest) error {
	fieldErrors := make(map[string]string)

	inputLen := utf8.RuneCountInString(req.InputText)
	if inputLen < MinInputLen || inputLen > MaxInputLen {
		fieldErrors["input_text"] = fmt.Sprintf("input_text must be between %d and %d characters, got %d", MinInputLen, MaxInputLen, inputLen)
	}
	if !allowedModels[req.Model] {
		fieldErrors["model"] = fmt.Sprintf("model %q is not in the allowed list", req.Model)
	}
	if req.CustomPrompt != nil && utf8.RuneCountInString(*req.CustomPrompt) > maxCustomPromptLen {
		fieldErrors["custom_prompt"] = fmt.Sprintf("custom_prompt must be at most %d characters", maxCustomPromptLen)
	}

	if len(fieldErrors) > 0 {
		return &ValidationError{Fields: fieldErrors}
	}
	return nil
}

const systemInstruction = `You are an expert flashcard creator. Generate high-quality flashcards from the source text the user provides.

CRITICAL: Return ONLY a valid JSON object, no preamble, no markdown, no backticks, shaped as:
{"candidates": [{"front": "string", "back": "string", "prompt": "string|null"}]}

Rules:
- front is a question or term, at most 200 characters
- back is a self-contained answer, at most 500 characters
- prompt optionally explains why the card is worth learning
- No two cards may test the same fact`

// buildGenerationMessages produces exactly two messages: the fixed system
// instruction first, then the user message carrying the source text with any
// custom guidance merged in.
func buildGenerationMessages(inputText string, customPrompt *string) []llm.Message {
	var b strings.Builder
	if customPrompt != nil && strings.TrimSpace(*customPrompt) != "" {
		b.WriteString("Additional guidance: ")
		b.WriteString(strings.TrimSpace(*customPrompt))
		b.WriteString("\n\n")
	}
	b.WriteString("---SOURCE TEXT START---\n")
	b.WriteString(inputText)
	b.WriteString("\n---SOURCE TEXT END---")

	return []llm.Message{
		{Role: "system", Content: systemInstruction},
		{Role: "user", Content: b.String()},
	}
}

type candidateEntry struct {
	Front  string  `json:"front"`
	Back   string  `json:"back"`
	Prompt *string `json:"prompt"`
}

// parseCandidates applies the parsing policy: malformed JSON is fatal,
// individual bad entries are dropped, an empty surviving set is fatal.
func parseCandidates(raw string) ([]candidateEntry, error) {
	raw = stripCodeFences(raw)

	var wire struct {
		Candidates []candidateEntry `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, &ParseError{Message: "model reply is not valid JSON: " + err.Error()}
	}
	if len(wire.Candidates) == 0 {
		return nil, &ParseError{Message: "model reply contains no candidates"}
	}

	var valid []candidateEntry
	for _, e := range wire.Candidates {
		if e.Front == "" || e.Back == "" {
			continue
		}
		if utf8.RuneCountInString(e.Front) > models.MaxFrontLen || utf8.RuneCountInString(e.Back) > models.MaxBackLen {
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return nil, &ParseError{Message: "every candidate entry was invalid"}
	}
	return valid, nil
}

func stripCodeFences(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

func hashInputText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// mapUpstreamError translates the gateway taxonomy into service errors once
// retries are exhausted.
func mapUpstreamError(err error) error {
	switch e := err.(type) {
	case *llm.BadRequestError:
		return &UpstreamError{Message: "completion API rejected the request: " + e.Message}
	case *llm.AuthError:
		return &UpstreamError{Message: "completion API authentication failed"}
	case *llm.RateLimitError:
		return &UpstreamRateLimitError{Message: "completion API rate limit exceeded"}
	case *llm.ServerError:
		return &UpstreamError{Message: e.Message}
	case *llm.NetworkError:
		return &UpstreamError{Message: "completion API unreachable: " + e.Err.Error()}
	default:
		return err
	}
}

// logEvent appends to the event log and fans the entry out over pub/sub for
// the websocket feed. Event-log failures are logged, never fatal.
func (s *GenerationService) logEvent(ctx context.Context, userID uuid.UUID, sessionID *uuid.UUID, eventType string) {
	entry := &models.EventLogEntry{UserID: userID, SessionID: sessionID, EventType: eventType}
	if err := s.eventRepo.Append(ctx, entry); err != nil {
		log.Printf("event log append failed: %v", err)
		return
	}
	publishEvent(ctx, s.redis, userID, entry)
}

func publishEvent(ctx context.Context, client *redis.Client, userID uuid.UUID, entry *models.EventLogEntry) {
	if client == nil {
		return
	}
	data, _ := json.Marshal(models.WSMessage{Type: "event_log", Payload: entry})
	client.Publish(ctx, "user_events:"+userID.String(), string(data))
}
