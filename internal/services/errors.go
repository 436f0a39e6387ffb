package services

import "fmt"

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// AuthError is returned for rejected credentials or tokens.
type AuthError struct{ Message string }

func (e *AuthError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// GenerationError reports a failed or unusable flashcard generation call.
// StatusCode is the upstream HTTP status when there was one.
type GenerationError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flashcard generation failed: %s: %v", e.Message, e.Err)
	}
	return "flashcard generation failed: " + e.Message
}

func (e *GenerationError) Unwrap() error { return e.Err }

// StorageWriteError wraps a failed document store write. The cause
// (docstore.ErrParentNotFound, docstore.ErrNotFound, a driver error) stays
// reachable through errors.Is.
type StorageWriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("failed to %s at %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// DuplicateQuestionWarning means the generator returned a question already
// asked in the session. The card was not recorded.
type DuplicateQuestionWarning struct {
	Question string
}

func (e *DuplicateQuestionWarning) Error() string {
	return "Duplicate question detected. Please generate again."
}
