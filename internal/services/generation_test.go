package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"

	"flashcard-backend/internal/models"
)

const validCardJSON = `{"question":"What is 2+2?","choices":{"A":"3","B":"4","C":"5","D":"22"},"correct_answer":"B"}`

func TestGenerationClient_Success(t *testing.T) {
	var gotTopic string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.TopicRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotTopic = req.Topic
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(validCardJSON))
	}))
	defer srv.Close()

	client := NewGenerationClient(srv.URL, 5*time.Second)
	card, err := client.Generate(context.Background(), "Math - Arithmetic (Addition)")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if gotTopic != "Math - Arithmetic (Addition)" {
		t.Fatalf("unexpected topic sent: %q", gotTopic)
	}
	if card.Question != "What is 2+2?" || card.CorrectAnswer != "B" || len(card.Choices) != 4 {
		t.Fatalf("unexpected card: %+v", card)
	}
	if card.ID == "" {
		t.Fatalf("expected card id to be assigned")
	}
	if card.Topic != "Math - Arithmetic (Addition)" {
		t.Fatalf("expected topic on card, got %q", card.Topic)
	}
}

func TestGenerationClient_DefaultTopic(t *testing.T) {
	var gotTopic string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.TopicRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotTopic = req.Topic
		w.Write([]byte(validCardJSON))
	}))
	defer srv.Close()

	if _, err := NewGenerationClient(srv.URL, time.Second).Generate(context.Background(), "  "); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if gotTopic != DefaultTopic {
		t.Fatalf("expected default topic, got %q", gotTopic)
	}
}

func TestGenerationClient_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"upstream error body", http.StatusInternalServerError, `{"error":"OpenAI API error. Please try again later."}`, 500, "OpenAI API error"},
		{"upstream plain error", http.StatusBadGateway, `oops`, 502, "status 502"},
		{"malformed json", http.StatusOK, `not json at all`, 200, "invalid flashcard"},
		{"missing question", http.StatusOK, `{"choices":{"A":"x","B":"y"},"correct_answer":"A"}`, 200, "invalid flashcard"},
		{"answer not a choice", http.StatusOK, `{"question":"q","choices":{"A":"x","B":"y"},"correct_answer":"E"}`, 200, "invalid flashcard"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewGenerationClient(srv.URL, time.Second).Generate(context.Background(), "t")

			var gErr *GenerationError
			if !errors.As(err, &gErr) {
				t.Fatalf("expected GenerationError, got %v", err)
			}
			if gErr.StatusCode != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, gErr.StatusCode)
			}
			if !strings.Contains(gErr.Error(), tc.wantMsg) {
				t.Fatalf("expected %q in %q", tc.wantMsg, gErr.Error())
			}
		})
	}
}

func TestGenerationClient_UpstreamThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"quota exceeded"}`))
	}))
	defer srv.Close()

	_, err := NewGenerationClient(srv.URL, time.Second).Generate(context.Background(), "t")

	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
}

func TestGenerationClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewGenerationClient(srv.URL, 50*time.Millisecond).Generate(context.Background(), "t")

	var gErr *GenerationError
	if !errors.As(err, &gErr) {
		t.Fatalf("expected GenerationError on timeout, got %v", err)
	}
}

func TestParseFlashcard_TrimsFencesAndProse(t *testing.T) {
	inputs := []string{
		validCardJSON,
		"```json\n" + validCardJSON + "\n```",
		"Here you go:\n" + validCardJSON + "\nGood luck!",
		`{"question":"What is 2+2?","choices":{"A":"3","B":"4"},"correct_answer":" B "}`,
	}

	for _, in := range inputs {
		card, err := parseFlashcard(in)
		if err != nil {
			t.Fatalf("parseFlashcard(%q) returned error: %v", in, err)
		}
		if card.CorrectAnswer != "B" {
			t.Fatalf("unexpected correct answer %q", card.CorrectAnswer)
		}
	}
}

func TestValidateFlashcard(t *testing.T) {
	tests := []struct {
		name  string
		card  models.Flashcard
		valid bool
	}{
		{"valid", models.Flashcard{Question: "q", Choices: map[string]string{"A": "a", "B": "b"}, CorrectAnswer: "A"}, true},
		{"blank question", models.Flashcard{Question: "  ", Choices: map[string]string{"A": "a", "B": "b"}, CorrectAnswer: "A"}, false},
		{"one choice", models.Flashcard{Question: "q", Choices: map[string]string{"A": "a"}, CorrectAnswer: "A"}, false},
		{"unknown answer", models.Flashcard{Question: "q", Choices: map[string]string{"A": "a", "B": "b"}, CorrectAnswer: "C"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateFlashcard(&tc.card)
			if tc.valid && err != nil {
				t.Fatalf("expected valid card, got %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestBuildFlashcardPrompt(t *testing.T) {
	prompt := buildFlashcardPrompt("PMP - People (Team leadership)")

	for _, want := range []string{"PMP - People (Team leadership)", `"correct_answer"`, `"choices"`, "ONLY a valid JSON object"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{
			"joins parts of first candidate",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"question":`), genai.Text(`"q"}`)}}},
			}},
			`{"question":"q"}`,
		},
		{
			"ignores later candidates",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"question":"first"}`)}}},
				{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"question":"second"}`)}}},
			}},
			`{"question":"first"}`,
		},
		{"no candidates", &genai.GenerateContentResponse{}, ""},
		{"empty first candidate", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: nil}}}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractText(tc.resp); got != tc.want {
				t.Fatalf("extractText = %q, want %q", got, tc.want)
			}
		})
	}
}
