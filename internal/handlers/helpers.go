package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"flashcard-backend/internal/models"
	"flashcard-backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch e := err.(type) {
	case *services.ValidationError:
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", e.Fields, r))
	case *services.AuthError:
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", e.Message, r))
	case *services.ForbiddenError:
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", e.Message, r))
	case *services.NotFoundError:
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", e.Message, r))
	case *services.ConflictError:
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", e.Message, r))
	case *services.DuplicateQuestionWarning:
		writeJSON(w, http.StatusConflict, errorResp("DUPLICATE_QUESTION", e.Error(), r))
	case *services.RateLimitError:
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", e.Message, r))
	case *services.GenerationError:
		logrus.WithError(e).WithField("request_id", r.Header.Get("X-Request-ID")).Warn("Generation failed")
		writeJSON(w, http.StatusBadGateway, errorResp("GENERATION_FAILED", "Error generating flashcard. Please try again.", r))
	case *services.StorageWriteError:
		logrus.WithError(e).WithField("request_id", r.Header.Get("X-Request-ID")).Error("Storage write failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResp("STORAGE_UNAVAILABLE", "Could not save your progress. Please try again.", r))
	default:
		logrus.WithError(err).WithFields(logrus.Fields{
			"request_id": r.Header.Get("X-Request-ID"),
			"path":       r.URL.Path,
		}).Error("Unhandled service error")
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return false
	}
	return true
}
