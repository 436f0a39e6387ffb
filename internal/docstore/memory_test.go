package docstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

type testSession struct {
	UserID         string     `json:"userId"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime"`
	TotalQuestions int        `json:"totalQuestions"`
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMemoryStore_AddResolvesServerTimestamps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(fixedClock(now))

	id, err := store.Add(ctx, "sessions", Fields{
		"userId":         "user1",
		"startTime":      ServerTimestamp,
		"endTime":        nil,
		"totalQuestions": 0,
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}

	doc, err := store.Get(ctx, DocPath("sessions", id))
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if doc.ID != id {
		t.Fatalf("expected id %q, got %q", id, doc.ID)
	}

	var got testSession
	if err := doc.DataTo(&got); err != nil {
		t.Fatalf("DataTo returned error: %v", err)
	}
	if got.UserID != "user1" {
		t.Fatalf("expected userId user1, got %q", got.UserID)
	}
	if !got.StartTime.Equal(now) {
		t.Fatalf("expected startTime %v, got %v", now, got.StartTime)
	}
	if got.EndTime != nil {
		t.Fatalf("expected nil endTime, got %v", got.EndTime)
	}
}

func TestMemoryStore_UpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	store := NewMemoryStore().WithClock(func() time.Time { return clock })

	id, err := store.Add(ctx, "sessions", Fields{"userId": "u", "startTime": ServerTimestamp, "totalQuestions": 0})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	clock = start.Add(10 * time.Minute)
	if err := store.Update(ctx, DocPath("sessions", id), Fields{"totalQuestions": 7, "endTime": ServerTimestamp}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	doc, _ := store.Get(ctx, DocPath("sessions", id))
	var got testSession
	if err := doc.DataTo(&got); err != nil {
		t.Fatalf("DataTo returned error: %v", err)
	}
	if got.UserID != "u" {
		t.Fatalf("expected untouched userId, got %q", got.UserID)
	}
	if got.TotalQuestions != 7 {
		t.Fatalf("expected totalQuestions 7, got %d", got.TotalQuestions)
	}
	if !got.StartTime.Equal(start) {
		t.Fatalf("startTime changed: %v", got.StartTime)
	}
	if got.EndTime == nil || !got.EndTime.Equal(clock) {
		t.Fatalf("expected endTime %v, got %v", clock, got.EndTime)
	}
}

func TestMemoryStore_UpdateMissingDocument(t *testing.T) {
	store := NewMemoryStore()

	err := store.Update(context.Background(), "sessions/missing", Fields{"x": 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_RejectsOrphanedSubcollectionWrite(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Add(context.Background(), CollectionPath("sessions", "never-created", "interactions"), Fields{"x": 1})
	if !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("expected ErrParentNotFound, got %v", err)
	}
}

func TestMemoryStore_ListScopesToCollection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, _ := store.Add(ctx, "sessions", Fields{"userId": "a"})
	b, _ := store.Add(ctx, "sessions", Fields{"userId": "b"})

	for i := 0; i < 3; i++ {
		if _, err := store.Add(ctx, CollectionPath("sessions", a, "interactions"), Fields{"n": i}); err != nil {
			t.Fatalf("Add interaction returned error: %v", err)
		}
	}
	if _, err := store.Add(ctx, CollectionPath("sessions", b, "interactions"), Fields{"n": 99}); err != nil {
		t.Fatalf("Add interaction returned error: %v", err)
	}

	docs, err := store.List(ctx, CollectionPath("sessions", a, "interactions"))
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 interactions, got %d", len(docs))
	}
	for i, doc := range docs {
		var got struct {
			N int `json:"n"`
		}
		if err := doc.DataTo(&got); err != nil {
			t.Fatalf("DataTo returned error: %v", err)
		}
		if got.N != i {
			t.Errorf("doc %d: expected n=%d, got %d", i, i, got.N)
		}
	}

	sessions, _ := store.List(ctx, "sessions")
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
}

func TestMemoryStore_InvalidPaths(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Add(ctx, "sessions/abc", Fields{}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Add to document path: expected ErrInvalidPath, got %v", err)
	}
	if err := store.Update(ctx, "sessions", Fields{}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Update on collection path: expected ErrInvalidPath, got %v", err)
	}
	if _, err := store.Get(ctx, "sessions//x"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Get with empty segment: expected ErrInvalidPath, got %v", err)
	}
}
