package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/raphaelgruber/council-go/internal/config"
)

func testConfig(provider string) config.Config {
	return config.Config{LLMProvider: provider}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("malformed request body"), false},
		{"invalid api key", errors.New("invalid api key"), false},
		{"insufficient credit", errors.New("insufficient credit balance"), false},
		{"401 status", errors.New("HTTP 401: not allowed"), false},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"429 status", errors.New("HTTP 429: too many requests"), true},
		{"503 status", errors.New("HTTP 503: service unavailable"), true},
		{"overloaded", errors.New("overloaded_error: try again later"), true},
		{"request timeout", errors.New("request timeout"), true},
		{"request deadline", errors.New("context deadline exceeded"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"wrapped retryable", fmt.Errorf("generate: %w", errors.New("rate limit hit")), true},
		{"canceled context", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("generate: %w", context.Canceled), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.retryable {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestTokenCounts(t *testing.T) {
	tests := []struct {
		name    string
		info    map[string]any
		wantIn  int
		wantOut int
	}{
		{
			name:    "openai style",
			info:    map[string]any{"PromptTokens": 120, "CompletionTokens": 480},
			wantIn:  120,
			wantOut: 480,
		},
		{
			name:    "anthropic style",
			info:    map[string]any{"InputTokens": 80, "OutputTokens": 300},
			wantIn:  80,
			wantOut: 300,
		},
		{
			name:    "json float values",
			info:    map[string]any{"prompt_tokens": float64(15), "completion_tokens": float64(25)},
			wantIn:  15,
			wantOut: 25,
		},
		{
			name: "no usage info",
			info: map[string]any{},
		},
		{
			name: "nil info",
			info: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := tokenCounts(tt.info)
			if in != tt.wantIn || out != tt.wantOut {
				t.Errorf("tokenCounts() = (%d, %d), want (%d, %d)", in, out, tt.wantIn, tt.wantOut)
			}
		})
	}
}

func TestNewModelUnsupportedProvider(t *testing.T) {
	c := NewClient(testConfig("something-else"), nil)
	if _, err := c.model(context.Background(), "any"); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestNewModelRequiresAPIKey(t *testing.T) {
	c := NewClient(testConfig("openai"), nil)
	if _, err := c.model(context.Background(), "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for missing OpenAI API key")
	}

	c = NewClient(testConfig("anthropic"), nil)
	if _, err := c.model(context.Background(), "claude-3-5-haiku-latest"); err == nil {
		t.Fatal("expected error for missing Anthropic API key")
	}
}
