package models

// Flashcard is a generated multiple-choice card. CorrectAnswer is a key of
// Choices ("A".."D").
type Flashcard struct {
	ID            string            `json:"id"`
	Topic         string            `json:"topic,omitempty"`
	Question      string            `json:"question"`
	Choices       map[string]string `json:"choices"`
	CorrectAnswer string            `json:"correct_answer"`
}

// TopicSelection is the exam / domain / concentration area a user picked.
type TopicSelection struct {
	Exam          string `json:"exam"`
	Domain        string `json:"domain"`
	Concentration string `json:"concentration"`
}

type GenerateFlashcardRequest struct {
	SessionID string `json:"session_id"`
	TopicSelection
}

// TopicRequest is the body of the public /generate_flashcard endpoint.
type TopicRequest struct {
	Topic string `json:"topic"`
}

type AnswerRequest struct {
	CardID       string  `json:"card_id"`
	Answer       string  `json:"answer"`
	ResponseTime float64 `json:"response_time"`
}

type AnswerResult struct {
	InteractionID string `json:"interaction_id"`
	IsCorrect     bool   `json:"is_correct"`
	CorrectAnswer string `json:"correct_answer"`
}
