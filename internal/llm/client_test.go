package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func floatPtr(f float64) *float64 { return &f }

func TestNewClient_EmptyAPIKey(t *testing.T) {
	if _, err := NewClient("http://localhost", "", 3); err == nil {
		t.Fatal("expected constructor to fail with empty API key")
	}
}

func TestChat_ValidatesBeforeDispatch(t *testing.T) {
	// Any request reaching the server is a validation failure
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request was dispatched despite invalid input")
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "test-key", 3)
	if err != nil {
		t.Fatal(err)
	}

	msg := []Message{{Role: "user", Content: "hi"}}

	tests := []struct {
		name string
		req  ChatRequest
	}{
		{"empty model", ChatRequest{Messages: msg}},
		{"empty messages", ChatRequest{Model: "m"}},
		{"temperature too low", ChatRequest{Model: "m", Messages: msg, Temperature: floatPtr(-0.1)}},
		{"temperature too high", ChatRequest{Model: "m", Messages: msg, Temperature: floatPtr(2.1)}},
		{"negative max tokens", ChatRequest{Model: "m", Messages: msg, MaxTokens: -1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Chat(context.Background(), tc.req)
			if _, ok := err.(*BadRequestError); !ok {
				t.Errorf("expected *BadRequestError, got %T (%v)", err, err)
			}
		})
	}
}

func TestChat_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}

		var body struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Errorf("expected system message first, got %+v", body.Messages)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"candidates":[]}`}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "test-key", 3)

	resp, err := client.Chat(context.Background(), ChatRequest{
		Model: "test-model",
		Messages: []Message{
			{Role: "system", Content: "instructions"},
			{Role: "user", Content: "source text"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"candidates":[]}` {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestChat_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"400 bad request", 400, func(e error) bool { _, ok := e.(*BadRequestError); return ok }},
		{"401 auth", 401, func(e error) bool { _, ok := e.(*AuthError); return ok }},
		{"403 auth", 403, func(e error) bool { _, ok := e.(*AuthError); return ok }},
		{"429 rate limit", 429, func(e error) bool { _, ok := e.(*RateLimitError); return ok }},
		{"500 server", 500, func(e error) bool { _, ok := e.(*ServerError); return ok }},
		{"503 server", 503, func(e error) bool { _, ok := e.(*ServerError); return ok }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer srv.Close()

			client, _ := NewClient(srv.URL, "test-key", 1)
			_, err := client.Chat(context.Background(), ChatRequest{
				Model:    "m",
				Messages: []Message{{Role: "user", Content: "x"}},
			})
			if err == nil || !tc.check(err) {
				t.Errorf("status %d classified as %T (%v)", tc.status, err, err)
			}
		})
	}
}

func TestChat_RetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "test-key", 3)
	resp, err := client.Chat(context.Background(), ChatRequest{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestChat_RetryCeiling(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "test-key", 2)
	_, err := client.Chat(context.Background(), ChatRequest{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	if _, ok := err.(*ServerError); !ok {
		t.Fatalf("expected *ServerError after exhausted retries, got %T", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestChat_NoRetryOnAuthError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "test-key", 3)
	_, err := client.Chat(context.Background(), ChatRequest{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	if _, ok := err.(*AuthError); !ok {
		t.Fatalf("expected *AuthError, got %T", err)
	}
	if attempts != 1 {
		t.Errorf("auth error must not be retried, got %d attempts", attempts)
	}
}

func TestBackoffDelay(t *testing.T) {
	if d := backoffDelay(1, &ServerError{Status: 500}); d != 500*time.Millisecond {
		t.Errorf("attempt 1: expected 500ms, got %v", d)
	}
	if d := backoffDelay(2, &ServerError{Status: 500}); d != time.Second {
		t.Errorf("attempt 2: expected 1s, got %v", d)
	}
	if d := backoffDelay(1, &RateLimitError{RetryAfter: 3 * time.Second}); d != 3*time.Second {
		t.Errorf("expected Retry-After hint to win, got %v", d)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header   string
		expected time.Duration
	}{
		{"", 0},
		{"2", 2 * time.Second},
		{"garbage", 0},
		{"-1", 0},
	}
	for _, tc := range tests {
		if got := parseRetryAfter(tc.header); got != tc.expected {
			t.Errorf("parseRetryAfter(%q) = %v, expected %v", tc.header, got, tc.expected)
		}
	}
}

func TestListModels_CachesByAge(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []Model{{ID: "model-a", Name: "Model A"}},
		})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "test-key", 3)

	for i := 0; i < 3; i++ {
		models, err := client.ListModels(context.Background())
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if len(models) != 1 || models[0].ID != "model-a" {
			t.Fatalf("call %d: unexpected catalog %+v", i, models)
		}
	}
	if hits != 1 {
		t.Errorf("expected a single upstream fetch within the TTL, got %d", hits)
	}

	// Age the cache past the TTL; the next call must refetch
	client.now = func() time.Time { return time.Now().Add(modelCacheTTL + time.Minute) }
	if _, err := client.ListModels(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hits != 2 {
		t.Errorf("expected refetch after expiry, got %d hits", hits)
	}
}

func TestListModels_FetchDoesNotHoldLock(t *testing.T) {
	inFetch := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(inFetch)
		<-release
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []Model{{ID: "m"}}})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "test-key", 3)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := client.ListModels(context.Background()); err != nil {
			t.Errorf("refetch failed: %v", err)
		}
	}()

	<-inFetch

	// While the refetch is in flight the mutex must stay free, so cache hits
	// are never queued behind the network call.
	acquired := make(chan struct{})
	go func() {
		client.mu.Lock()
		_ = client.cache.isStale(client.now(), modelCacheTTL)
		client.mu.Unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("mutex held across the network fetch")
	}

	close(release)
	<-done
}

func TestModelCache_IsStale(t *testing.T) {
	now := time.Now()
	empty := modelCache{}
	if !empty.isStale(now, modelCacheTTL) {
		t.Error("empty cache must be stale")
	}

	fresh := modelCache{models: []Model{{ID: "m"}}, fetchedAt: now}
	if fresh.isStale(now.Add(time.Minute), modelCacheTTL) {
		t.Error("one-minute-old cache must be fresh")
	}
	if !fresh.isStale(now.Add(modelCacheTTL+time.Second), modelCacheTTL) {
		t.Error("cache older than the TTL must be stale")
	}
}
