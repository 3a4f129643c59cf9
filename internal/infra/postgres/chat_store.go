package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"tutor-live-service/internal/domain"
)

type chatMessageModel struct {
	bun.BaseModel `bun:"table:chat_messages,alias:cm"`

	ID         string    `bun:"id,pk"`
	DoubtID    string    `bun:"doubt_id,notnull"`
	Sender     string    `bun:"sender,notnull"`
	SenderRole string    `bun:"sender_role,notnull"`
	Message    string    `bun:"message,notnull"`
	SentAt     time.Time `bun:"sent_at,notnull"`
}

func (m chatMessageModel) message() domain.ChatMessage {
	return domain.ChatMessage{
		ID:         m.ID,
		DoubtID:    m.DoubtID,
		Sender:     m.Sender,
		SenderRole: domain.Role(m.SenderRole),
		Message:    m.Message,
		Timestamp:  m.SentAt.UTC(),
	}
}

// ChatStore keeps doubt chat messages in chat_messages.
type ChatStore struct {
	db *bun.DB
}

func NewChatStore(db *bun.DB) *ChatStore {
	return &ChatStore{db: db}
}

func (s *ChatStore) Append(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	model := &chatMessageModel{
		ID:         msg.ID,
		DoubtID:    msg.DoubtID,
		Sender:     msg.Sender,
		SenderRole: string(msg.SenderRole),
		Message:    msg.Message,
		SentAt:     msg.Timestamp,
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if model.SentAt.IsZero() {
		model.SentAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(model).Exec(ctx); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	return model.message(), nil
}

// History returns the latest limit messages of doubtID, oldest first.
func (s *ChatStore) History(ctx context.Context, doubtID string, limit int) ([]domain.ChatMessage, error) {
	var models []chatMessageModel
	q := s.db.NewSelect().
		Model(&models).
		Where("doubt_id = ?", doubtID).
		Order("sent_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	slices.Reverse(models)
	out := make([]domain.ChatMessage, len(models))
	for i, m := range models {
		out[i] = m.message()
	}
	return out, nil
}
