package services

import (
	"strings"
	"testing"

	"cardforge-backend/internal/llm"
	"cardforge-backend/internal/models"
)

func strPtr(s string) *string { return &s }

func TestValidateGenerateRequest_InputLength(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{"too short", 999, true},
		{"lower bound", 1000, false},
		{"upper bound", 10000, false},
		{"too long", 10001, true},
		{"empty", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := models.GenerateSessionRequest{
				InputText: strings.Repeat("a", tc.length),
				Model:     DefaultModel,
			}
			err := validateGenerateRequest(req)
			if tc.wantErr {
				ve, ok := err.(*ValidationError)
				if !ok {
					t.Fatalf("expected *ValidationError, got %T", err)
				}
				if _, has := ve.Fields["input_text"]; !has {
					t.Errorf("expected input_text field error, got %v", ve.Fields)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateGenerateRequest_CountsRunesNotBytes(t *testing.T) {
	// 1000 multibyte characters is within bounds even though it is 3000 bytes
	req := models.GenerateSessionRequest{
		InputText: strings.Repeat("語", 1000),
		Model:     DefaultModel,
	}
	if err := validateGenerateRequest(req); err != nil {
		t.Errorf("unexpected error for 1000-rune input: %v", err)
	}
}

func TestValidateGenerateRequest_ModelAllowList(t *testing.T) {
	req := models.GenerateSessionRequest{
		InputText: strings.Repeat("a", 1000),
		Model:     "someone/unlisted-model",
	}
	ve, ok := validateGenerateRequest(req).(*ValidationError)
	if !ok {
		t.Fatal("expected *ValidationError for unlisted model")
	}
	if _, has := ve.Fields["model"]; !has {
		t.Errorf("expected model field error, got %v", ve.Fields)
	}
}

func TestBuildGenerationMessages(t *testing.T) {
	msgs := buildGenerationMessages("the source", nil)
	if len(msgs) != 2 {
		t.Fatalf("expected exactly 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("expected system message first, got %q", msgs[0].Role)
	}
	if msgs[1].Role != "user" || !strings.Contains(msgs[1].Content, "the source") {
		t.Errorf("user message missing source text: %+v", msgs[1])
	}
	if strings.Contains(msgs[1].Content, "Additional guidance") {
		t.Error("guidance section must be absent without a custom prompt")
	}
}

func TestBuildGenerationMessages_MergesCustomPrompt(t *testing.T) {
	msgs := buildGenerationMessages("the source", strPtr("focus on dates"))
	if !strings.Contains(msgs[1].Content, "focus on dates") {
		t.Error("custom prompt not merged into user message")
	}
	if !strings.HasPrefix(msgs[1].Content, "Additional guidance:") {
		t.Error("custom prompt must precede the source text")
	}
}

func TestParseCandidates(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantCount int
		wantErr   bool
	}{
		{
			"valid object",
			`{"candidates":[{"front":"Q1","back":"A1"},{"front":"Q2","back":"A2","prompt":"why"}]}`,
			2, false,
		},
		{
			"fenced json",
			"```json\n{\"candidates\":[{\"front\":\"Q\",\"back\":\"A\"}]}\n```",
			1, false,
		},
		{
			"drops entries missing front or back",
			`{"candidates":[{"front":"Q1","back":"A1"},{"front":"","back":"A2"},{"front":"Q3"}]}`,
			1, false,
		},
		{
			"drops overlength entries",
			`{"candidates":[{"front":"` + strings.Repeat("x", 201) + `","back":"A"},{"front":"Q","back":"A"}]}`,
			1, false,
		},
		{"malformed json", `not json at all`, 0, true},
		{"empty array", `{"candidates":[]}`, 0, true},
		{"all entries invalid", `{"candidates":[{"front":"only front"},{"back":"only back"}]}`, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entries, err := parseCandidates(tc.raw)
			if tc.wantErr {
				if _, ok := err.(*ParseError); !ok {
					t.Fatalf("expected *ParseError, got %T (%v)", err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(entries) != tc.wantCount {
				t.Errorf("expected %d entries, got %d", tc.wantCount, len(entries))
			}
		})
	}
}

func TestParseCandidates_KeepsPromptField(t *testing.T) {
	entries, err := parseCandidates(`{"candidates":[{"front":"Q","back":"A","prompt":"rationale"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Prompt == nil || *entries[0].Prompt != "rationale" {
		t.Errorf("expected prompt rationale to survive parsing, got %+v", entries[0])
	}
}

func TestHashInputText(t *testing.T) {
	a := hashInputText("same text")
	b := hashInputText("same text")
	c := hashInputText("other text")

	if a != b {
		t.Error("hash must be deterministic")
	}
	if a == c {
		t.Error("different inputs must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestMapUpstreamError(t *testing.T) {
	if _, ok := mapUpstreamError(&llm.RateLimitError{}).(*UpstreamRateLimitError); !ok {
		t.Error("rate limit must map to *UpstreamRateLimitError")
	}
	if _, ok := mapUpstreamError(&llm.AuthError{}).(*UpstreamError); !ok {
		t.Error("auth failure must map to *UpstreamError")
	}
	if _, ok := mapUpstreamError(&llm.ServerError{Status: 502}).(*UpstreamError); !ok {
		t.Error("server error must map to *UpstreamError")
	}
}
