package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"flashcard-backend/internal/catalog"
	"flashcard-backend/internal/metrics"
	"flashcard-backend/internal/models"
)

// StudyService drives a study session: topic selection, generation with
// duplicate detection, answer checking and recording.
type StudyService struct {
	recorder  *SessionRecorder
	generator FlashcardGenerator
	history   CardHistory
	catalog   *catalog.Catalog
	publisher Publisher
}

func NewStudyService(recorder *SessionRecorder, generator FlashcardGenerator, history CardHistory, cat *catalog.Catalog, publisher Publisher) *StudyService {
	return &StudyService{
		recorder:  recorder,
		generator: generator,
		history:   history,
		catalog:   cat,
		publisher: publisher,
	}
}

func (s *StudyService) StartSession(ctx context.Context, userID, mode string) (*models.Session, error) {
	id, err := s.recorder.CreateSession(ctx, userID, mode)
	if err != nil {
		return nil, err
	}

	if err := s.history.Reset(ctx, id); err != nil {
		logrus.WithError(err).WithField("session_id", id).Warn("Failed to reset question history")
	}

	session, err := s.recorder.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, userID, "session_started", map[string]interface{}{
		"session_id": id,
		"mode":       mode,
	})
	return session, nil
}

// GenerateFlashcard produces a new card for the selection. A question
// already issued in this session yields DuplicateQuestionWarning.
func (s *StudyService) GenerateFlashcard(ctx context.Context, userID string, req models.GenerateFlashcardRequest) (*models.Flashcard, error) {
	fieldErrors := s.catalog.Validate(req.TopicSelection)
	if strings.TrimSpace(req.SessionID) == "" {
		if fieldErrors == nil {
			fieldErrors = make(map[string]string)
		}
		fieldErrors["session_id"] = "Session ID is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	if _, err := s.openSession(ctx, userID, req.SessionID); err != nil {
		return nil, err
	}

	card, err := s.generator.Generate(ctx, catalog.FormatTopic(req.TopicSelection))
	if err != nil {
		var gErr *GenerationError
		if errors.As(err, &gErr) {
			return nil, gErr
		}
		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			return nil, rlErr
		}
		return nil, &GenerationError{Message: "generator failed", Err: err}
	}

	added, err := s.history.Remember(ctx, req.SessionID, card)
	if err != nil {
		return nil, fmt.Errorf("failed to check question history: %w", err)
	}
	if !added {
		metrics.DuplicateQuestions.Inc()
		logrus.WithField("session_id", req.SessionID).Info("Duplicate question generated")
		return nil, &DuplicateQuestionWarning{Question: card.Question}
	}

	return card, nil
}

// SubmitAnswer checks answer against the issued card and records the
// interaction. Each card can be answered once.
func (s *StudyService) SubmitAnswer(ctx context.Context, userID, sessionID string, req models.AnswerRequest) (*models.AnswerResult, error) {
	fieldErrors := make(map[string]string)
	if strings.TrimSpace(req.CardID) == "" {
		fieldErrors["card_id"] = "Card ID is required"
	}
	if strings.TrimSpace(req.Answer) == "" {
		fieldErrors["answer"] = "Answer is required"
	}
	if req.ResponseTime < 0 {
		fieldErrors["response_time"] = "Response time cannot be negative"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	if _, err := s.openSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	card, err := s.history.Take(ctx, sessionID, req.CardID)
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			return nil, &NotFoundError{Message: "Flashcard not found in this session or already answered"}
		}
		return nil, err
	}

	correct := req.Answer == card.CorrectAnswer
	interactionID, err := s.recorder.AddInteraction(ctx, sessionID, models.InteractionInput{
		QuestionID:     card.ID,
		QuestionText:   card.Question,
		AnswerProvided: req.Answer,
		IsCorrect:      correct,
		ResponseTime:   req.ResponseTime,
	})
	if err != nil {
		if rerr := s.history.Restore(ctx, sessionID, card); rerr != nil {
			logrus.WithError(rerr).WithField("session_id", sessionID).Warn("Failed to restore unanswered card")
		}
		return nil, err
	}

	s.publish(ctx, userID, "interaction_recorded", map[string]interface{}{
		"session_id":     sessionID,
		"interaction_id": interactionID,
		"is_correct":     correct,
	})

	return &models.AnswerResult{
		InteractionID: interactionID,
		IsCorrect:     correct,
		CorrectAnswer: card.CorrectAnswer,
	}, nil
}

// RecordInteraction appends a caller-built interaction to an open session.
func (s *StudyService) RecordInteraction(ctx context.Context, userID, sessionID string, in models.InteractionInput) (string, error) {
	if _, err := s.openSession(ctx, userID, sessionID); err != nil {
		return "", err
	}

	id, err := s.recorder.AddInteraction(ctx, sessionID, in)
	if err != nil {
		return "", err
	}

	s.publish(ctx, userID, "interaction_recorded", map[string]interface{}{
		"session_id":     sessionID,
		"interaction_id": id,
		"is_correct":     in.IsCorrect,
	})
	return id, nil
}

// EndSession finalizes the totals. Ending an already ended session
// overwrites its totals.
func (s *StudyService) EndSession(ctx context.Context, userID, sessionID string, totalQuestions, correctAnswers int) (*models.Session, error) {
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	if err := s.recorder.EndSession(ctx, sessionID, totalQuestions, correctAnswers); err != nil {
		return nil, err
	}

	if err := s.history.Reset(ctx, sessionID); err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Warn("Failed to clear question history")
	}

	s.publish(ctx, userID, "session_ended", map[string]interface{}{
		"session_id":      sessionID,
		"total_questions": totalQuestions,
		"correct_answers": correctAnswers,
	})

	return s.recorder.GetSession(ctx, sessionID)
}

func (s *StudyService) GetSession(ctx context.Context, userID, sessionID string) (*models.SessionDetail, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	interactions, err := s.recorder.ListInteractions(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &models.SessionDetail{Session: session, Interactions: interactions}, nil
}

func (s *StudyService) ownedSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	session, err := s.recorder.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, &ForbiddenError{Message: "You do not have access to this session"}
	}
	return session, nil
}

func (s *StudyService) openSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.EndTime != nil {
		return nil, &ConflictError{Message: "Session has already ended"}
	}
	return session, nil
}

func (s *StudyService) publish(ctx context.Context, userID, msgType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishUpdate(ctx, userID, models.WSMessage{Type: msgType, Payload: payload})
}
