package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"flashcard-backend/internal/models"
)

// AuthStateChange is emitted on every sign-in and sign-out. User is nil
// when the user signed out.
type AuthStateChange struct {
	UserID uuid.UUID
	User   *models.User
	At     time.Time
}

// AuthEvents fans auth state changes out to subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type AuthEvents struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewAuthEvents() *AuthEvents {
	return &AuthEvents{subs: make(map[*Subscription]struct{})}
}

type Subscription struct {
	C <-chan AuthStateChange

	ch     chan AuthStateChange
	events *AuthEvents
	once   sync.Once
}

func (e *AuthEvents) Subscribe(buffer int) *Subscription {
	ch := make(chan AuthStateChange, buffer)
	sub := &Subscription{C: ch, ch: ch, events: e}

	e.mu.Lock()
	e.subs[sub] = struct{}{}
	e.mu.Unlock()
	return sub
}

// Unsubscribe stops delivery and closes C. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.events.mu.Lock()
		delete(s.events.subs, s)
		close(s.ch)
		s.events.mu.Unlock()
	})
}

func (e *AuthEvents) Publish(change AuthStateChange) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for sub := range e.subs {
		select {
		case sub.ch <- change:
		default:
			logrus.WithField("user_id", change.UserID).Warn("Auth event dropped for slow subscriber")
		}
	}
}
