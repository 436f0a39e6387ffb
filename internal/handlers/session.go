package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"flashcard-backend/internal/middleware"
	"flashcard-backend/internal/models"
)

type studyFlow interface {
	StartSession(ctx context.Context, userID, mode string) (*models.Session, error)
	GenerateFlashcard(ctx context.Context, userID string, req models.GenerateFlashcardRequest) (*models.Flashcard, error)
	SubmitAnswer(ctx context.Context, userID, sessionID string, req models.AnswerRequest) (*models.AnswerResult, error)
	RecordInteraction(ctx context.Context, userID, sessionID string, in models.InteractionInput) (string, error)
	EndSession(ctx context.Context, userID, sessionID string, totalQuestions, correctAnswers int) (*models.Session, error)
	GetSession(ctx context.Context, userID, sessionID string) (*models.SessionDetail, error)
}

type SessionHandler struct {
	study studyFlow
}

func NewSessionHandler(study studyFlow) *SessionHandler {
	return &SessionHandler{study: study}
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	session, err := h.study.StartSession(r.Context(), userID.String(), req.Mode)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	detail, err := h.study.GetSession(r.Context(), userID.String(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *SessionHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req models.AnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	result, err := h.study.SubmitAnswer(r.Context(), userID.String(), chi.URLParam(r, "id"), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *SessionHandler) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	var req models.InteractionInput
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	id, err := h.study.RecordInteraction(r.Context(), userID.String(), chi.URLParam(r, "id"), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"interaction_id": id})
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	var req models.EndSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	session, err := h.study.EndSession(r.Context(), userID.String(), chi.URLParam(r, "id"), req.TotalQuestions, req.CorrectAnswers)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}
