package config

import (
	"log/slog"
	"testing"
)

func TestParseModels(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty falls back to defaults", "", len(DefaultModels)},
		{"single", "gpt-4o", 1},
		{"csv with spaces", "gpt-4o, claude-3-5-haiku-latest ,llama3.1", 3},
		{"only commas falls back", ",,", len(DefaultModels)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseModels(tt.in)
			if len(got) != tt.want {
				t.Errorf("parseModels(%q) = %v, want %d models", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	if got := parseLogLevel("debug"); got != slog.LevelDebug {
		t.Errorf("debug = %v", got)
	}
	if got := parseLogLevel("WARNING"); got != slog.LevelWarn {
		t.Errorf("WARNING = %v", got)
	}
	if got := parseLogLevel("bogus"); got != slog.LevelInfo {
		t.Errorf("bogus should default to info, got %v", got)
	}
}
