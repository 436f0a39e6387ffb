package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"flashcard-backend/internal/metrics"
	"flashcard-backend/internal/models"
)

// DefaultTopic is used when a generation request names no topic.
const DefaultTopic = "General Knowledge"

const maxGenerationBody = 1 << 20

// FlashcardGenerator produces one multiple-choice flashcard for a topic.
type FlashcardGenerator interface {
	Generate(ctx context.Context, topic string) (*models.Flashcard, error)
}

// GenerationClient calls a remote generation endpoint that accepts
// {"topic": "..."} and answers with a flashcard JSON object.
type GenerationClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewGenerationClient(endpoint string, timeout time.Duration) *GenerationClient {
	return &GenerationClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *GenerationClient) Generate(ctx context.Context, topic string) (*models.Flashcard, error) {
	if strings.TrimSpace(topic) == "" {
		topic = DefaultTopic
	}

	card, err := c.generate(ctx, topic)
	if err != nil {
		metrics.Generations.WithLabelValues("remote", "error").Inc()
		logrus.WithError(err).WithField("topic", topic).Warn("Flashcard generation failed")
		return nil, err
	}
	metrics.Generations.WithLabelValues("remote", "ok").Inc()
	return card, nil
}

func (c *GenerationClient) generate(ctx context.Context, topic string) (*models.Flashcard, error) {
	body, err := json.Marshal(models.TopicRequest{Topic: topic})
	if err != nil {
		return nil, &GenerationError{Message: "failed to encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &GenerationError{Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GenerationError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxGenerationBody))
	if err != nil {
		return nil, &GenerationError{StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Message: "Flashcard generation is busy. Please try again shortly."}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var upstream struct {
			Error string `json:"error"`
		}
		msg := fmt.Sprintf("generation service returned status %d", resp.StatusCode)
		if json.Unmarshal(raw, &upstream) == nil && upstream.Error != "" {
			msg = upstream.Error
		}
		return nil, &GenerationError{StatusCode: resp.StatusCode, Message: msg}
	}

	card, err := parseFlashcard(string(raw))
	if err != nil {
		return nil, &GenerationError{StatusCode: resp.StatusCode, Message: "invalid flashcard in response", Err: err}
	}
	card.ID = uuid.NewString()
	card.Topic = topic
	return card, nil
}

// parseFlashcard decodes a model response into a flashcard, tolerating
// markdown code fences and text around the JSON object.
func parseFlashcard(raw string) (*models.Flashcard, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var card models.Flashcard
	if err := json.Unmarshal([]byte(text), &card); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("response is not a JSON object: %w", err)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &card); err != nil {
			return nil, fmt.Errorf("response is not a JSON object: %w", err)
		}
	}

	card.CorrectAnswer = strings.TrimSpace(card.CorrectAnswer)
	if err := validateFlashcard(&card); err != nil {
		return nil, err
	}
	return &card, nil
}

func validateFlashcard(card *models.Flashcard) error {
	if strings.TrimSpace(card.Question) == "" {
		return fmt.Errorf("flashcard has no question")
	}
	if len(card.Choices) < 2 {
		return fmt.Errorf("flashcard needs at least two choices, got %d", len(card.Choices))
	}
	if _, ok := card.Choices[card.CorrectAnswer]; !ok {
		return fmt.Errorf("correct answer %q is not one of the choices", card.CorrectAnswer)
	}
	return nil
}
