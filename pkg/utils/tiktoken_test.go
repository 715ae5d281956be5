package utils

import (
	"strings"
	"testing"
)

func TestNewTokenCounter(t *testing.T) {
	counter, err := NewTokenCounter()
	if err != nil {
		t.Fatalf("NewTokenCounter failed: %v", err)
	}
	if counter == nil {
		t.Fatal("NewTokenCounter returned nil counter")
	}
}

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter()
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		text      string
		minTokens int
		maxTokens int
	}{
		{"", 0, 0},
		{"hello", 1, 2},
		{"planner", 1, 3},
		{"def fibonacci(n):\n    return n if n < 2 else fibonacci(n-1) + fibonacci(n-2)", 10, 40},
	}

	for _, tt := range tests {
		got := counter.CountTokens(tt.text)
		if got < tt.minTokens || got > tt.maxTokens {
			t.Errorf("CountTokens(%q) = %d, want [%d, %d]", tt.text, got, tt.minTokens, tt.maxTokens)
		}
		if shared := CountTokens(tt.text); shared != got {
			t.Errorf("CountTokens(%q) shared = %d, counter = %d", tt.text, shared, got)
		}
	}
}

func TestNilCounterEstimates(t *testing.T) {
	var counter *TokenCounter
	if got := counter.CountTokens("12345678"); got != 2 {
		t.Errorf("nil counter estimate = %d, want 2", got)
	}
}

func TestTruncateToTokenLimit(t *testing.T) {
	counter, err := NewTokenCounter()
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	short := "a short line"
	if got := counter.TruncateToTokenLimit(short, 100); got != short {
		t.Errorf("short text changed: %q", got)
	}

	long := strings.Repeat("word ", 500)
	got := counter.TruncateToTokenLimit(long, 50)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated text should end with ellipsis")
	}
	if len(got) >= len(long) {
		t.Errorf("text not truncated: %d >= %d", len(got), len(long))
	}
}
