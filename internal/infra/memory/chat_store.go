package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tutor-live-service/internal/domain"
)

// ChatStore is an in-memory implementation of app.ChatStore. Messages of a
// doubt are kept in append order.
type ChatStore struct {
	clock func() time.Time

	mu       sync.RWMutex
	messages map[string][]domain.ChatMessage
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		clock:    time.Now,
		messages: make(map[string][]domain.ChatMessage),
	}
}

func (s *ChatStore) Append(_ context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.clock().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.DoubtID] = append(s.messages[msg.DoubtID], msg)
	return msg, nil
}

func (s *ChatStore) History(_ context.Context, doubtID string, limit int) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[doubtID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.ChatMessage, len(all))
	copy(out, all)
	return out, nil
}
