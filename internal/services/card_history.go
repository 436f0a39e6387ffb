package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"flashcard-backend/internal/models"
)

var ErrCardNotFound = errors.New("card not found in session history")

// CardHistory remembers the flashcards issued in each session, for
// duplicate detection and for checking answers against the issued card.
type CardHistory interface {
	// Remember records card for the session. added is false when a card with
	// the same normalized question was already issued; the card is then not
	// stored.
	Remember(ctx context.Context, sessionID string, card *models.Flashcard) (added bool, err error)
	// Take removes and returns an issued card so it can be answered once.
	// The question stays in the session's history.
	Take(ctx context.Context, sessionID, cardID string) (*models.Flashcard, error)
	// Restore puts back a card returned by Take when its answer could not
	// be recorded.
	Restore(ctx context.Context, sessionID string, card *models.Flashcard) error
	Reset(ctx context.Context, sessionID string) error
}

// normalizeQuestion folds case and collapses whitespace so trivially
// reformatted questions count as the same question.
func normalizeQuestion(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

type sessionCards struct {
	questions map[string]struct{}
	cards     map[string]*models.Flashcard
}

type MemoryCardHistory struct {
	mu       sync.Mutex
	sessions map[string]*sessionCards
}

func NewMemoryCardHistory() *MemoryCardHistory {
	return &MemoryCardHistory{sessions: make(map[string]*sessionCards)}
}

func (h *MemoryCardHistory) Remember(ctx context.Context, sessionID string, card *models.Flashcard) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		s = &sessionCards{
			questions: make(map[string]struct{}),
			cards:     make(map[string]*models.Flashcard),
		}
		h.sessions[sessionID] = s
	}

	key := normalizeQuestion(card.Question)
	if _, seen := s.questions[key]; seen {
		return false, nil
	}
	s.questions[key] = struct{}{}
	s.cards[card.ID] = card
	return true, nil
}

func (h *MemoryCardHistory) Take(ctx context.Context, sessionID, cardID string) (*models.Flashcard, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[sessionID]; ok {
		if card, ok := s.cards[cardID]; ok {
			delete(s.cards, cardID)
			return card, nil
		}
	}
	return nil, ErrCardNotFound
}

func (h *MemoryCardHistory) Restore(ctx context.Context, sessionID string, card *models.Flashcard) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[sessionID]; ok {
		s.cards[card.ID] = card
	}
	return nil
}

func (h *MemoryCardHistory) Reset(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
	return nil
}

// RedisCardHistory keeps the history in redis so it survives restarts and
// is shared between instances. Keys expire after ttl.
type RedisCardHistory struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCardHistory(client *redis.Client, ttl time.Duration) *RedisCardHistory {
	return &RedisCardHistory{redis: client, ttl: ttl}
}

func questionsKey(sessionID string) string { return fmt.Sprintf("session:%s:questions", sessionID) }
func cardsKey(sessionID string) string     { return fmt.Sprintf("session:%s:cards", sessionID) }

// Remember claims the question and stores the card in two transactions. A
// failed second transaction releases the question again so a later identical
// card is not reported as a duplicate of one the user never saw.
func (h *RedisCardHistory) Remember(ctx context.Context, sessionID string, card *models.Flashcard) (bool, error) {
	data, err := json.Marshal(card)
	if err != nil {
		return false, fmt.Errorf("failed to encode card: %w", err)
	}
	question := normalizeQuestion(card.Question)

	var added *redis.IntCmd
	_, err = h.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, questionsKey(sessionID), question)
		pipe.Expire(ctx, questionsKey(sessionID), h.ttl)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record question: %w", err)
	}
	if added.Val() == 0 {
		return false, nil
	}

	_, err = h.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, cardsKey(sessionID), card.ID, data)
		pipe.Expire(ctx, cardsKey(sessionID), h.ttl)
		return nil
	})
	if err != nil {
		if rerr := h.redis.SRem(ctx, questionsKey(sessionID), question).Err(); rerr != nil {
			logrus.WithError(rerr).WithField("session_id", sessionID).Warn("Failed to release question after store failure")
		}
		return false, fmt.Errorf("failed to store card: %w", err)
	}
	return true, nil
}

// Take reads and deletes the card in one transaction, so concurrent answers
// to the same card see it at most once.
func (h *RedisCardHistory) Take(ctx context.Context, sessionID, cardID string) (*models.Flashcard, error) {
	var get *redis.StringCmd
	_, err := h.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, cardsKey(sessionID), cardID)
		pipe.HDel(ctx, cardsKey(sessionID), cardID)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load card: %w", err)
	}

	data, err := get.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to load card: %w", err)
	}

	var card models.Flashcard
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("failed to decode card: %w", err)
	}
	return &card, nil
}

func (h *RedisCardHistory) Restore(ctx context.Context, sessionID string, card *models.Flashcard) error {
	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to encode card: %w", err)
	}
	_, err = h.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, cardsKey(sessionID), card.ID, data)
		pipe.Expire(ctx, cardsKey(sessionID), h.ttl)
		return nil
	})
	return err
}

func (h *RedisCardHistory) Reset(ctx context.Context, sessionID string) error {
	return h.redis.Del(ctx, questionsKey(sessionID), cardsKey(sessionID)).Err()
}
