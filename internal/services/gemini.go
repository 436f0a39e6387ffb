package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"flashcard-backend/internal/metrics"
	"flashcard-backend/internal/models"
)

// GeminiService generates flashcards in-process through the Gemini API.
type GeminiService struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
}

func NewGeminiService(apiKey, modelName string, concurrentReqs int) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	model.SetTopP(0.95)
	model.ResponseMIMEType = "application/json"

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:   client,
		model:    model,
		rateChan: rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

func (s *GeminiService) Generate(ctx context.Context, topic string) (*models.Flashcard, error) {
	if strings.TrimSpace(topic) == "" {
		topic = DefaultTopic
	}

	card, err := s.generate(ctx, topic)
	if err != nil {
		metrics.Generations.WithLabelValues("gemini", "error").Inc()
		logrus.WithError(err).WithField("topic", topic).Warn("Flashcard generation failed")
		return nil, err
	}
	metrics.Generations.WithLabelValues("gemini", "ok").Inc()
	return card, nil
}

func (s *GeminiService) generate(ctx context.Context, topic string) (*models.Flashcard, error) {
	if err := s.acquireRate(ctx); err != nil {
		return nil, &GenerationError{Message: "no generation slot available", Err: err}
	}
	defer s.releaseRate()

	resp, err := s.model.GenerateContent(ctx, genai.Text(buildFlashcardPrompt(topic)))
	if err != nil {
		return nil, &GenerationError{Message: "Gemini API error", Err: err}
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			logrus.WithFields(logrus.Fields{
				"candidate":     i,
				"finish_reason": cand.FinishReason.String(),
			}).Warn("Gemini stopped early")
		}
	}

	card, err := parseFlashcard(extractText(resp))
	if err != nil {
		return nil, &GenerationError{Message: "invalid flashcard from Gemini", Err: err}
	}
	card.ID = uuid.NewString()
	card.Topic = topic
	return card, nil
}

// extractText returns the text of the first candidate; the prompt asks for
// exactly one JSON object.
func extractText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String()
}

func buildFlashcardPrompt(topic string) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Generate a JSON object containing a multiple-choice flashcard question about %s.\n", topic))
	b.WriteString(`The JSON must be structured as follows:
{
    "question": "Your question text?",
    "choices": {
        "A": "Choice A",
        "B": "Choice B",
        "C": "Choice C",
        "D": "Choice D"
    },
    "correct_answer": "B"
}

Ensure the response is ONLY a valid JSON object without extra text.
`)
	return b.String()
}
