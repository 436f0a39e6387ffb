package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"flashcard-backend/internal/docstore"
	"flashcard-backend/internal/metrics"
	"flashcard-backend/internal/models"
)

const (
	sessionsCollection     = "sessions"
	interactionsCollection = "interactions"
)

// SessionRecorder persists study sessions and their interactions. It holds
// no state besides the store and performs exactly one store call per write.
type SessionRecorder struct {
	store docstore.Store
}

func NewSessionRecorder(store docstore.Store) *SessionRecorder {
	return &SessionRecorder{store: store}
}

// CreateSession opens a session for userID and returns its id.
func (r *SessionRecorder) CreateSession(ctx context.Context, userID, mode string) (string, error) {
	fieldErrors := make(map[string]string)
	if strings.TrimSpace(userID) == "" {
		fieldErrors["userId"] = "User ID is required"
	}
	if !models.ValidMode(mode) {
		fieldErrors["mode"] = fmt.Sprintf("Mode must be %q or %q", models.ModeFreeForAll, models.ModeSetAmount)
	}
	if len(fieldErrors) > 0 {
		metrics.RecorderWrites.WithLabelValues("create_session", "invalid").Inc()
		return "", &ValidationError{Fields: fieldErrors}
	}

	id, err := r.store.Add(ctx, sessionsCollection, docstore.Fields{
		"userId":         userID,
		"mode":           mode,
		"startTime":      docstore.ServerTimestamp,
		"endTime":        nil,
		"totalQuestions": 0,
		"correctAnswers": 0,
		"createdAt":      docstore.ServerTimestamp,
		"updatedAt":      docstore.ServerTimestamp,
	})
	if err != nil {
		return "", r.writeFailed("create_session", sessionsCollection, err)
	}

	metrics.RecorderWrites.WithLabelValues("create_session", "ok").Inc()
	logrus.WithFields(logrus.Fields{"session_id": id, "user_id": userID, "mode": mode}).Info("Session created")
	return id, nil
}

// AddInteraction appends one answered question to the session. The session
// is not looked up first; the store rejects writes under a missing session.
func (r *SessionRecorder) AddInteraction(ctx context.Context, sessionID string, in models.InteractionInput) (string, error) {
	fieldErrors := make(map[string]string)
	if msg := checkSessionID(sessionID); msg != "" {
		fieldErrors["sessionId"] = msg
	}
	if in.ResponseTime < 0 {
		fieldErrors["responseTime"] = "Response time cannot be negative"
	}
	if len(fieldErrors) > 0 {
		metrics.RecorderWrites.WithLabelValues("add_interaction", "invalid").Inc()
		return "", &ValidationError{Fields: fieldErrors}
	}

	path := docstore.CollectionPath(sessionsCollection, sessionID, interactionsCollection)
	id, err := r.store.Add(ctx, path, docstore.Fields{
		"questionId":     in.QuestionID,
		"questionText":   in.QuestionText,
		"answerProvided": in.AnswerProvided,
		"isCorrect":      in.IsCorrect,
		"responseTime":   in.ResponseTime,
		"timestamp":      docstore.ServerTimestamp,
	})
	if err != nil {
		return "", r.writeFailed("add_interaction", path, err)
	}

	metrics.RecorderWrites.WithLabelValues("add_interaction", "ok").Inc()
	logrus.WithFields(logrus.Fields{
		"session_id":     sessionID,
		"interaction_id": id,
		"is_correct":     in.IsCorrect,
	}).Debug("Interaction recorded")
	return id, nil
}

// EndSession writes the final totals and endTime in one update. Calling it
// again overwrites the previous totals.
func (r *SessionRecorder) EndSession(ctx context.Context, sessionID string, totalQuestions, correctAnswers int) error {
	fieldErrors := make(map[string]string)
	if msg := checkSessionID(sessionID); msg != "" {
		fieldErrors["sessionId"] = msg
	}
	if totalQuestions < 0 {
		fieldErrors["totalQuestions"] = "Total questions cannot be negative"
	}
	if correctAnswers < 0 {
		fieldErrors["correctAnswers"] = "Correct answers cannot be negative"
	} else if correctAnswers > totalQuestions {
		fieldErrors["correctAnswers"] = "Correct answers cannot exceed total questions"
	}
	if len(fieldErrors) > 0 {
		metrics.RecorderWrites.WithLabelValues("end_session", "invalid").Inc()
		return &ValidationError{Fields: fieldErrors}
	}

	path := docstore.DocPath(sessionsCollection, sessionID)
	err := r.store.Update(ctx, path, docstore.Fields{
		"totalQuestions": totalQuestions,
		"correctAnswers": correctAnswers,
		"endTime":        docstore.ServerTimestamp,
		"updatedAt":      docstore.ServerTimestamp,
	})
	if err != nil {
		return r.writeFailed("end_session", path, err)
	}

	metrics.RecorderWrites.WithLabelValues("end_session", "ok").Inc()
	logrus.WithFields(logrus.Fields{
		"session_id":      sessionID,
		"total_questions": totalQuestions,
		"correct_answers": correctAnswers,
	}).Info("Session ended")
	return nil
}

func (r *SessionRecorder) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if msg := checkSessionID(sessionID); msg != "" {
		return nil, &ValidationError{Fields: map[string]string{"sessionId": msg}}
	}

	doc, err := r.store.Get(ctx, docstore.DocPath(sessionsCollection, sessionID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidPath) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	session := &models.Session{}
	if err := doc.DataTo(session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", doc.ID, err)
	}
	session.ID = doc.ID
	return session, nil
}

func (r *SessionRecorder) ListInteractions(ctx context.Context, sessionID string) ([]*models.Interaction, error) {
	if msg := checkSessionID(sessionID); msg != "" {
		return nil, &ValidationError{Fields: map[string]string{"sessionId": msg}}
	}

	docs, err := r.store.List(ctx, docstore.CollectionPath(sessionsCollection, sessionID, interactionsCollection))
	if err != nil {
		if errors.Is(err, docstore.ErrInvalidPath) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}

	interactions := make([]*models.Interaction, 0, len(docs))
	for _, doc := range docs {
		in := &models.Interaction{}
		if err := doc.DataTo(in); err != nil {
			return nil, fmt.Errorf("failed to decode interaction %s: %w", doc.ID, err)
		}
		in.ID = doc.ID
		interactions = append(interactions, in)
	}
	return interactions, nil
}

// checkSessionID returns a validation message, or "" when id names exactly
// one document under sessions.
func checkSessionID(id string) string {
	switch {
	case strings.TrimSpace(id) == "":
		return "Session ID is required"
	case strings.Contains(id, "/"):
		return "Session ID must not contain '/'"
	}
	return ""
}

func (r *SessionRecorder) writeFailed(op, path string, err error) error {
	metrics.RecorderWrites.WithLabelValues(op, "error").Inc()
	logrus.WithError(err).WithFields(logrus.Fields{"op": op, "path": path}).Error("Session store write failed")
	return &StorageWriteError{Op: strings.ReplaceAll(op, "_", " "), Path: path, Err: err}
}
