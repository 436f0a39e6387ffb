package models

import "time"

const (
	ModeFreeForAll = "free-for-all"
	ModeSetAmount  = "set-amount"
)

// ValidMode reports whether mode is one of the recognised study modes.
func ValidMode(mode string) bool {
	return mode == ModeFreeForAll || mode == ModeSetAmount
}

// Session is one study sitting, stored in the "sessions" collection.
// EndTime is nil while the session is open.
type Session struct {
	ID             string     `json:"id" bson:"-"`
	UserID         string     `json:"userId" bson:"userId"`
	Mode           string     `json:"mode" bson:"mode"`
	StartTime      time.Time  `json:"startTime" bson:"startTime"`
	EndTime        *time.Time `json:"endTime" bson:"endTime"`
	TotalQuestions int        `json:"totalQuestions" bson:"totalQuestions"`
	CorrectAnswers int        `json:"correctAnswers" bson:"correctAnswers"`
	CreatedAt      time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Interaction is one answered question, stored under
// sessions/{sessionId}/interactions.
type Interaction struct {
	ID             string    `json:"id" bson:"-"`
	QuestionID     string    `json:"questionId" bson:"questionId"`
	QuestionText   string    `json:"questionText" bson:"questionText"`
	AnswerProvided string    `json:"answerProvided" bson:"answerProvided"`
	IsCorrect      bool      `json:"isCorrect" bson:"isCorrect"`
	ResponseTime   float64   `json:"responseTime" bson:"responseTime"`
	Timestamp      time.Time `json:"timestamp" bson:"timestamp"`
}

// InteractionInput is the caller-supplied part of an Interaction. The
// timestamp is always assigned by the store.
type InteractionInput struct {
	QuestionID     string  `json:"question_id"`
	QuestionText   string  `json:"question_text"`
	AnswerProvided string  `json:"answer_provided"`
	IsCorrect      bool    `json:"is_correct"`
	ResponseTime   float64 `json:"response_time"`
}

type StartSessionRequest struct {
	Mode string `json:"mode"`
}

type EndSessionRequest struct {
	TotalQuestions int `json:"total_questions"`
	CorrectAnswers int `json:"correct_answers"`
}

type SessionDetail struct {
	Session      *Session       `json:"session"`
	Interactions []*Interaction `json:"interactions"`
}
