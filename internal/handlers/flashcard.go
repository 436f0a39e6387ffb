package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"flashcard-backend/internal/middleware"
	"flashcard-backend/internal/models"
	"flashcard-backend/internal/services"
)

type FlashcardHandler struct {
	study     studyFlow
	generator services.FlashcardGenerator
}

func NewFlashcardHandler(study studyFlow, generator services.FlashcardGenerator) *FlashcardHandler {
	return &FlashcardHandler{study: study, generator: generator}
}

func (h *FlashcardHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateFlashcardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	card, err := h.study.GenerateFlashcard(r.Context(), userID.String(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, card)
}

// GeneratePublic serves the unauthenticated {"topic": ...} contract. Errors
// are returned as {"error": "..."} with status 500. An empty body falls
// back to the default topic.
func (h *FlashcardHandler) GeneratePublic(w http.ResponseWriter, r *http.Request) {
	var req models.TopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.Topic == "" {
		req.Topic = services.DefaultTopic
	}

	card, err := h.generator.Generate(r.Context(), req.Topic)
	if err != nil {
		logrus.WithError(err).WithField("topic", req.Topic).Warn("Public flashcard generation failed")
		msg := "Internal Server Error"
		var gErr *services.GenerationError
		if errors.As(err, &gErr) {
			msg = "Error generating flashcard. Please try again later."
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
		return
	}

	writeJSON(w, http.StatusOK, card)
}
