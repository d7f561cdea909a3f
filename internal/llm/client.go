package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	defaultMaxAttempts = 3
	defaultTimeout     = 60 * time.Second
	backoffBase        = 500 * time.Millisecond

	modelCacheTTL = 5 * time.Minute
)

type Message struct {
	Role    string `json:"role"` // "system" | "user" | "assistant"
	Content string `json:"content"`
}

type ResponseFormat struct {
	Type string `json:"type"` // e.g. "json_object"
}

type ChatRequest struct {
	Model          string
	Messages       []Message
	Temperature    *float64 // nil = provider default; must be within [0, 2]
	MaxTokens      int      // 0 = provider default
	ResponseFormat *ResponseFormat
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	Content string
	Usage   Usage
}

type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// modelCache holds the last model catalog; entries expire purely by age.
type modelCache struct {
	models    []Model
	fetchedAt time.Time
}

func (c *modelCache) isStale(now time.Time, ttl time.Duration) bool {
	return c.models == nil || now.Sub(c.fetchedAt) > ttl
}

// Client talks to an OpenAI-style chat completions API with bearer auth.
// Safe for concurrent use.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	maxAttempts int

	mu    sync.Mutex
	cache modelCache
	now   func() time.Time
}

func NewClient(baseURL, apiKey string, maxAttempts int) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: API key must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

// Chat sends a completion request, retrying transient failures with bounded
// exponential backoff. Non-transient errors propagate on the first attempt.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := validateChatRequest(req); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffDelay(attempt, lastErr)); err != nil {
				return nil, &NetworkError{Err: err}
			}
		}

		resp, err := c.doChat(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func validateChatRequest(req ChatRequest) error {
	if req.Model == "" {
		return &BadRequestError{Message: "model must not be empty"}
	}
	if len(req.Messages) == 0 {
		return &BadRequestError{Message: "messages must not be empty"}
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return &BadRequestError{Message: "temperature must be within [0, 2]"}
	}
	if req.MaxTokens < 0 {
		return &BadRequestError{Message: "max_tokens must not be negative"}
	}
	return nil
}

// backoffDelay doubles per attempt; a Retry-After hint from the API wins.
func backoffDelay(attempt int, lastErr error) time.Duration {
	if rl, ok := lastErr.(*RateLimitError); ok && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	return backoffBase << (attempt - 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

type wireChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type wireChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func (c *Client) doChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(wireChatRequest{
		Model:          req.Model,
		Messages:       req.Messages,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: req.ResponseFormat,
	})
	if err != nil {
		return nil, &BadRequestError{Message: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyStatus(httpResp)
	}

	var wire wireChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wire); err != nil {
		return nil, &ServerError{Status: httpResp.StatusCode, Message: "malformed completion response: " + err.Error()}
	}
	if len(wire.Choices) == 0 {
		return nil, &ServerError{Status: httpResp.StatusCode, Message: "completion response has no choices"}
	}

	return &ChatResponse{
		Content: wire.Choices[0].Message.Content,
		Usage:   wire.Usage,
	}, nil
}

// classifyStatus maps a non-200 response onto the error taxonomy.
func classifyStatus(resp *http.Response) error {
	msg := readErrorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return &BadRequestError{Message: msg}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Message: msg}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Message: msg, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return &ServerError{Status: resp.StatusCode, Message: msg}
	default:
		return &BadRequestError{Message: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, msg)}
	}
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "no error detail"
	}

	var wire struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &wire) == nil && wire.Error.Message != "" {
		return wire.Error.Message
	}
	return string(raw)
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// ListModels returns the model catalog, cached for five minutes. A fresh
// cache hit returns without a network call. The mutex is not held across the
// fetch, so cache hits never wait behind a slow refetch; concurrent misses
// may fetch twice, and the last store wins.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	c.mu.Lock()
	if !c.cache.isStale(c.now(), modelCacheTTL) {
		models := c.cache.models
		c.mu.Unlock()
		return models, nil
	}
	c.mu.Unlock()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyStatus(httpResp)
	}

	var wire struct {
		Data []Model `json:"data"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&wire); err != nil {
		return nil, &ServerError{Status: httpResp.StatusCode, Message: "malformed models response: " + err.Error()}
	}

	c.mu.Lock()
	c.cache = modelCache{models: wire.Data, fetchedAt: c.now()}
	c.mu.Unlock()
	return wire.Data, nil
}
