package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"flashcard-backend/internal/catalog"
	"flashcard-backend/internal/docstore"
	"flashcard-backend/internal/models"
)

type stubGenerator struct {
	cards  []*models.Flashcard
	err    error
	topics []string
}

func (g *stubGenerator) Generate(ctx context.Context, topic string) (*models.Flashcard, error) {
	g.topics = append(g.topics, topic)
	if g.err != nil {
		return nil, g.err
	}
	card := g.cards[0]
	if len(g.cards) > 1 {
		g.cards = g.cards[1:]
	}
	return card, nil
}

type stubPublisher struct {
	mu   sync.Mutex
	msgs []models.WSMessage
}

func (p *stubPublisher) PublishUpdate(ctx context.Context, userID string, msg models.WSMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *stubPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Type
	}
	return out
}

const testCatalog = `{"Math": {"domains": [{"name": "Arithmetic", "concentration_areas": ["Addition"]}]}}`

var mathSelection = models.TopicSelection{Exam: "Math", Domain: "Arithmetic", Concentration: "Addition"}

func newTestStudyService(t *testing.T, gen FlashcardGenerator) (*StudyService, *stubPublisher) {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("catalog.Parse returned error: %v", err)
	}
	pub := &stubPublisher{}
	recorder := NewSessionRecorder(docstore.NewMemoryStore())
	return NewStudyService(recorder, gen, NewMemoryCardHistory(), cat, pub), pub
}

func card(id, question, correct string) *models.Flashcard {
	return &models.Flashcard{
		ID:            id,
		Question:      question,
		Choices:       map[string]string{"A": "3", "B": "4", "C": "5", "D": "22"},
		CorrectAnswer: correct,
	}
}

func TestStudyService_FullFlow(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{cards: []*models.Flashcard{card("c1", "What is 2+2?", "B")}}
	svc, pub := newTestStudyService(t, gen)

	session, err := svc.StartSession(ctx, "user1", models.ModeFreeForAll)
	if err != nil {
		t.Fatalf("StartSession returned error: %v", err)
	}

	fc, err := svc.GenerateFlashcard(ctx, "user1", models.GenerateFlashcardRequest{SessionID: session.ID, TopicSelection: mathSelection})
	if err != nil {
		t.Fatalf("GenerateFlashcard returned error: %v", err)
	}
	if gen.topics[0] != "Math - Arithmetic (Addition)" {
		t.Fatalf("unexpected topic %q", gen.topics[0])
	}

	result, err := svc.SubmitAnswer(ctx, "user1", session.ID, models.AnswerRequest{CardID: fc.ID, Answer: "B", ResponseTime: 3})
	if err != nil {
		t.Fatalf("SubmitAnswer returned error: %v", err)
	}
	if !result.IsCorrect || result.CorrectAnswer != "B" || result.InteractionID == "" {
		t.Fatalf("unexpected answer result: %+v", result)
	}

	ended, err := svc.EndSession(ctx, "user1", session.ID, 1, 1)
	if err != nil {
		t.Fatalf("EndSession returned error: %v", err)
	}
	if ended.EndTime == nil || ended.TotalQuestions != 1 || ended.CorrectAnswers != 1 {
		t.Fatalf("unexpected ended session: %+v", ended)
	}

	detail, err := svc.GetSession(ctx, "user1", session.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if len(detail.Interactions) != 1 || detail.Interactions[0].QuestionID != "c1" || detail.Interactions[0].QuestionText != "What is 2+2?" {
		t.Fatalf("unexpected interactions: %+v", detail.Interactions)
	}

	want := []string{"session_started", "interaction_recorded", "session_ended"}
	got := pub.types()
	if len(got) != len(want) {
		t.Fatalf("expected published %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected published %v, got %v", want, got)
		}
	}
}

func TestStudyService_WrongAnswerRecordedAsIncorrect(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestStudyService(t, &stubGenerator{cards: []*models.Flashcard{
		card("c1", "What is 2+2?", "B"),
		card("c2", "What is 2+3?", "B"),
	}})

	session, _ := svc.StartSession(ctx, "user1", models.ModeSetAmount)

	for _, answer := range []string{"A", "b"} {
		fc, err := svc.GenerateFlashcard(ctx, "user1", models.GenerateFlashcardRequest{SessionID: session.ID, TopicSelection: mathSelection})
		if err != nil {
			t.Fatalf("GenerateFlashcard returned error: %v", err)
		}
		result, err := svc.SubmitAnswer(ctx, "user1", session.ID, models.AnswerRequest{CardID: fc.ID, Answer: answer})
		if err != nil {
			t.Fatalf("SubmitAnswer returned error: %v", err)
		}
		if result.IsCorrect {
			t.Fatalf("answer %q must be incorrect", answer)
		}
	}
}

func TestStudyService_CardCanBeAnsweredOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestStudyService(t, &stubGenerator{cards: []*models.Flashcard{card("c1", "What is 2+2?", "B")}})

	session, _ := svc.StartSession(ctx, "user1", models.ModeFreeForAll)
	fc, _ := svc.GenerateFlashcard(ctx, "user1", models.GenerateFlashcardRequest{SessionID: session.ID, TopicSelection: mathSelection})

	if _, err := svc.SubmitAnswer(ctx, "user1", session.ID, models.AnswerRequest{CardID: fc.ID, Answer: "A"}); err != nil {
		t.Fatalf("first SubmitAnswer returned error: %v", err)
	}

	_, err := svc.SubmitAnswer(ctx, "user1", session.ID, models.AnswerRequest{CardID: fc.ID, Answer: "B"})
	var nErr *NotFoundError
	if !errors.As(err, &nErr) {
		t.Fatalf("expected NotFoundError on second answer, got %v", err)
	}

	detail, _ := svc.GetSession(ctx, "user1", session.ID)
	if len(detail.Interactions) != 1 || detail.Interactions[0].IsCorrect {
		t.Fatalf("expected only the first (wrong) answer to be recorded, got %+v", detail.Interactions)
	}
}

func TestStudyService_FailedRecordKeepsCardAnswerable(t *testing.T) {
	ctx := context.Background()
	cat, _ := catalog.Parse([]byte(testCatalog))
	store := &countingStore{Store: docstore.NewMemoryStore()}
	svc := NewStudyService(NewSessionRecorder(store), &stubGenerator{cards: []*models.Flashcard{card("c1", "q", "A")}}, NewMemoryCardHistory(), cat, nil)

	session, _ := svc.StartSession(ctx, "user1", models.ModeFreeForAll)
	fc, _ := svc.GenerateFlashcard(ctx, "user1", models.GenerateFlashcardRequest{SessionID: session.ID, TopicSelection: mathSelection})

	store.err = errors.New("connection reset")
	_, err := svc.SubmitAnswer(ctx, "user1", session.ID, models.AnswerRequest{CardID: fc.ID, Answer: "A"})
	var sErr *StorageWriteError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected StorageWriteError, got %v", err)
	}

	store.err = nil
	result, err := svc.SubmitAnswer(ctx, "user1", session.ID, models.AnswerRequest{CardID: fc.ID, Answer: "A"})
	if err != nil || !result.IsCorrect {
		t.Fatalf("expected retry to succeed, got %+v, %v", result, err)
	}
}

func TestStudyService_DuplicateQuestion(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{cards: []*models.Flashcard{
		card("c1", "What is 2+2?", "B"),
		card("c2", "  what is 2+2? ", "B"),
	}}
	svc, _ := newTestStudyService(t, gen)
	session, _ := svc.StartSession(ctx, "user1", models.ModeFreeForAll)
	req := models.GenerateFlashcardRequest{SessionID: session.ID, TopicSelection: mathSelection}

	if _, err := svc.GenerateFlashcard(ctx, "user1", req); err != nil {
		t.Fatalf("first GenerateFlashcard returned error: %v", err)
	}

	_, err := svc.GenerateFlashcard(ctx, "user1", req)
	var dup *DuplicateQuestionWarning
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateQuestionWarning, got %v", err)
	}

	// the rejected card was never issued, so it cannot be answered
	_, err = svc.SubmitAnswer(ctx, "user1", session.ID, models.AnswerRequest{CardID: "c2", Answer: "B"})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for rejected card, got %v", err)
	}
}

func TestStudyService_HistoryIsPerSession(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{cards: []*models.Flashcard{card("c1", "What is 2+2?", "B")}}
	svc, _ := newTestStudyService(t, gen)

	for i := 0; i < 2; i++ {
		session, _ := svc.StartSession(ctx, "user1", models.ModeFreeForAll)
		if _, err := svc.GenerateFlashcard(ctx, "user1", models.GenerateFlashcardRequest{SessionID: session.ID, TopicSelection: mathSelection}); err != nil {
			t.Fatalf("session %d: GenerateFlashcard returned error: %v", i, err)
		}
	}
}

func TestStudyService_GenerationFailure(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestStudyService(t, &stubGenerator{err: errors.New("dial tcp: refused")})
	session, _ := svc.StartSession(ctx, "user1", models.ModeFreeForAll)

	_, err := svc.GenerateFlashcard(ctx, "user1", models.GenerateFlashcardRequest{SessionID: session.ID, TopicSelection: mathSelection})

	var gErr *GenerationError
	if !errors.As(err, &gErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
}

func TestStudyService_GenerationThrottledPassesThrough(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestStudyService(t, &stubGenerator{err: &RateLimitError{Message: "busy"}})
	session, _ := svc.StartSession(ctx, "user1", models.ModeFreeForAll)

	_, err := svc.GenerateFlashcard(ctx, "user1", models.GenerateFlashcardRequest{SessionID: session.ID, TopicSelection: mathSelection})

	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
}

func TestStudyService_InvalidSelection(t *testing.T) {
	gen := &stubGenerator{cards: []*models.Flashcard{card("c1", "q", "A")}}
	svc, _ := newTestStudyService(t, gen)

	_, err := svc.GenerateFlashcard(context.Background(), "user1", models.GenerateFlashcardRequest{
		TopicSelection: models.TopicSelection{Exam: "History"},
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"exam", "session_id"} {
		if _, ok := vErr.Fields[field]; !ok {
			t.Errorf("expected field %q in %v", field, vErr.Fields)
		}
	}
	if len(gen.topics) != 0 {
		t.Fatalf("generator must not be called for invalid selections")
	}
}

func TestStudyService_OwnershipAndClosedSessions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestStudyService(t, &stubGenerator{cards: []*models.Flashcard{card("c1", "q", "A")}})
	session, _ := svc.StartSession(ctx, "owner", models.ModeFreeForAll)

	_, err := svc.GetSession(ctx, "intruder", session.ID)
	var fErr *ForbiddenError
	if !errors.As(err, &fErr) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}

	if _, err := svc.EndSession(ctx, "intruder", session.ID, 0, 0); !errors.As(err, &fErr) {
		t.Fatalf("expected ForbiddenError on foreign end, got %v", err)
	}

	if _, err := svc.EndSession(ctx, "owner", session.ID, 0, 0); err != nil {
		t.Fatalf("EndSession returned error: %v", err)
	}

	_, err = svc.GenerateFlashcard(ctx, "owner", models.GenerateFlashcardRequest{SessionID: session.ID, TopicSelection: mathSelection})
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected ConflictError on ended session, got %v", err)
	}

	_, err = svc.GetSession(ctx, "owner", "missing")
	var nErr *NotFoundError
	if !errors.As(err, &nErr) {
		t.Fatalf("expected NotFoundError for unknown session, got %v", err)
	}
}

func TestStudyService_EndSessionRejectsBadTotals(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestStudyService(t, &stubGenerator{cards: []*models.Flashcard{card("c1", "q", "A")}})
	session, _ := svc.StartSession(ctx, "user1", models.ModeFreeForAll)

	_, err := svc.EndSession(ctx, "user1", session.ID, 3, 5)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	detail, _ := svc.GetSession(ctx, "user1", session.ID)
	if detail.Session.EndTime != nil {
		t.Fatalf("rejected end must not finalize the session")
	}
}
