package tui

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 60, "short"},
		{strings.Repeat("a", 60), 60, strings.Repeat("a", 60)},
		{strings.Repeat("a", 61), 60, strings.Repeat("a", 57) + "..."},
		{"", 10, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestTruncateMultibyte(t *testing.T) {
	// Cutting mid-rune would leave invalid UTF-8 in the header.
	prompt := strings.Repeat("日本語のプロジェクト", 10)
	got := truncate(prompt, 60)

	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if want := string([]rune(prompt)[:57]) + "..."; got != want {
		t.Errorf("truncate = %q, want %q", got, want)
	}
}
