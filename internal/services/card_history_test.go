package services

import (
	"context"
	"errors"
	"testing"

	"flashcard-backend/internal/models"
)

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{"What is 2+2?", "what is 2+2?", true},
		{"  What   is\t2+2? ", "What is 2+2?", true},
		{"What is 2+2?", "What is 2+3?", false},
	}

	for _, tc := range tests {
		if got := normalizeQuestion(tc.a) == normalizeQuestion(tc.b); got != tc.same {
			t.Errorf("normalizeQuestion(%q) vs (%q): same=%v, want %v", tc.a, tc.b, got, tc.same)
		}
	}
}

func TestMemoryCardHistory_RejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryCardHistory()

	first := &models.Flashcard{ID: "c1", Question: "What is 2+2?"}
	dup := &models.Flashcard{ID: "c2", Question: "what is  2+2?"}

	added, err := h.Remember(ctx, "s1", first)
	if err != nil || !added {
		t.Fatalf("expected first card to be added, got added=%v err=%v", added, err)
	}

	added, err = h.Remember(ctx, "s1", dup)
	if err != nil || added {
		t.Fatalf("expected duplicate to be rejected, got added=%v err=%v", added, err)
	}
	if _, err := h.Take(ctx, "s1", "c2"); !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("duplicate card must not be stored, got %v", err)
	}

	// other sessions have their own history
	added, _ = h.Remember(ctx, "s2", dup)
	if !added {
		t.Fatalf("expected card to be added in another session")
	}
}

func TestMemoryCardHistory_TakeRestoreReset(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryCardHistory()
	card := &models.Flashcard{ID: "c1", Question: "q", CorrectAnswer: "A"}

	h.Remember(ctx, "s1", card)

	got, err := h.Take(ctx, "s1", "c1")
	if err != nil || got.CorrectAnswer != "A" {
		t.Fatalf("unexpected Take result: %+v, %v", got, err)
	}
	if _, err := h.Take(ctx, "s1", "c1"); !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("expected second Take to fail, got %v", err)
	}
	if added, _ := h.Remember(ctx, "s1", card); added {
		t.Fatalf("answered question must still count as issued")
	}

	if err := h.Restore(ctx, "s1", card); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if _, err := h.Take(ctx, "s1", "c1"); err != nil {
		t.Fatalf("expected restored card to be available, got %v", err)
	}

	if err := h.Reset(ctx, "s1"); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if added, _ := h.Remember(ctx, "s1", card); !added {
		t.Fatalf("question must be accepted again after reset")
	}
}
