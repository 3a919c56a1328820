package pagination

import (
	"errors"
	"testing"
)

func TestNewCursor(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "fresh start", token: ""},
		{name: "resume", token: "Y3Vyc29yOjEwMA=="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(tt.token)

			if c.After() != tt.token {
				t.Errorf("After() = %q, want %q", c.After(), tt.token)
			}
			if c.Exhausted() {
				t.Error("Exhausted() = true for a new cursor")
			}
			if c.Advances() != 0 {
				t.Errorf("Advances() = %d, want 0", c.Advances())
			}
		})
	}
}

func TestCursor_Advance(t *testing.T) {
	tests := []struct {
		name          string
		endCursor     string
		hasNext       bool
		wantAfter     string
		wantExhausted bool
	}{
		{
			name:          "more pages",
			endCursor:     "abc",
			hasNext:       true,
			wantAfter:     "abc",
			wantExhausted: false,
		},
		{
			name:          "last page",
			endCursor:     "abc",
			hasNext:       false,
			wantAfter:     "",
			wantExhausted: true,
		},
		{
			name:          "has next but no token",
			endCursor:     "",
			hasNext:       true,
			wantAfter:     "",
			wantExhausted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor("")

			if err := c.Advance(tt.endCursor, tt.hasNext); err != nil {
				t.Fatalf("Advance() error = %v", err)
			}
			if c.After() != tt.wantAfter {
				t.Errorf("After() = %q, want %q", c.After(), tt.wantAfter)
			}
			if c.Exhausted() != tt.wantExhausted {
				t.Errorf("Exhausted() = %v, want %v", c.Exhausted(), tt.wantExhausted)
			}
			if c.Advances() != 1 {
				t.Errorf("Advances() = %d, want 1", c.Advances())
			}
		})
	}
}

func TestCursor_AdvanceAfterExhaustion(t *testing.T) {
	c := NewCursor("start")
	if err := c.Advance("", false); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	err := c.Advance("next", true)
	if !errors.Is(err, ErrCursorExhausted) {
		t.Errorf("Advance() on exhausted cursor error = %v, want ErrCursorExhausted", err)
	}
	if c.After() != "start" {
		t.Errorf("After() = %q, exhausted cursor must keep its last token", c.After())
	}
}

func TestCursor_SequenceOnlyMovesForward(t *testing.T) {
	c := NewCursor("")
	pages := []string{"p1", "p2", "p3"}

	for i, token := range pages {
		if err := c.Advance(token, true); err != nil {
			t.Fatalf("Advance(%q) error = %v", token, err)
		}
		if c.After() != token {
			t.Errorf("after page %d: After() = %q, want %q", i+1, c.After(), token)
		}
	}

	if c.Advances() != len(pages) {
		t.Errorf("Advances() = %d, want %d", c.Advances(), len(pages))
	}
}
