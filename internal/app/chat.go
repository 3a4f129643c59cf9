package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/metrics"
)

const defaultHistoryLimit = 50

// ChatStore persists the messages of doubt chats.
type ChatStore interface {
	Append(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
	// History returns the latest limit messages of a doubt, oldest first.
	// A limit of zero or less returns all of them.
	History(ctx context.Context, doubtID string, limit int) ([]domain.ChatMessage, error)
}

// ChatChannels is the channel side of the connection hub.
type ChatChannels interface {
	ChannelPublisher
	Send(handle string, event domain.Outbound)
	Subscribe(channel, handle string) bool
	Unsubscribe(channel, handle string) bool
	// Leave drops handle from every channel and returns the channels it was in.
	Leave(handle string) []string
}

// DoubtDirectory is what a chat needs from the doubt workflow.
type DoubtDirectory interface {
	Get(ctx context.Context, doubtID string) (domain.Doubt, error)
	Resolve(ctx context.Context, doubtID, userID string, role domain.Role) (domain.Doubt, error)
}

// ChatService runs the one-to-one chat between a student and the teacher
// assigned to their doubt.
type ChatService struct {
	doubts   DoubtDirectory
	store    ChatStore
	channels ChatChannels
	log      zerolog.Logger
	now      func() time.Time
	history  int
}

// ChatOption configures a ChatService.
type ChatOption func(*ChatService)

func WithChatLogger(l zerolog.Logger) ChatOption {
	return func(s *ChatService) { s.log = l }
}

func WithChatClock(now func() time.Time) ChatOption {
	return func(s *ChatService) { s.now = now }
}

// WithHistoryLimit bounds how many past messages a joining user receives.
func WithHistoryLimit(n int) ChatOption {
	return func(s *ChatService) {
		if n > 0 {
			s.history = n
		}
	}
}

func NewChatService(doubts DoubtDirectory, store ChatStore, channels ChatChannels, opts ...ChatOption) *ChatService {
	s := &ChatService{
		doubts:   doubts,
		store:    store,
		channels: channels,
		log:      zerolog.Nop(),
		now:      time.Now,
		history:  defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle dispatches one inbound chat event.
func (s *ChatService) Handle(ctx context.Context, sess Session, event domain.Inbound) error {
	switch ev := event.(type) {
	case domain.JoinChat:
		return s.Join(ctx, sess, ev)
	case domain.SendMessage:
		return s.Send(ctx, sess, ev)
	case domain.LeaveChat:
		return s.Leave(sess, ev)
	case domain.DoubtStatusUpdate:
		return s.UpdateStatus(ctx, sess, ev)
	default:
		return fmt.Errorf("%w: unsupported chat event %T", domain.ErrInvalidRequest, event)
	}
}

// participant loads the doubt and checks that the session may take part in
// its chat.
func (s *ChatService) participant(ctx context.Context, sess Session, doubtID string) (domain.Doubt, error) {
	doubt, err := s.doubts.Get(ctx, doubtID)
	if err != nil {
		return domain.Doubt{}, err
	}
	if !doubt.HasParticipant(sess.UserID, sess.Role) {
		return domain.Doubt{}, fmt.Errorf("%w: not a participant of this doubt", domain.ErrUnauthorized)
	}
	return doubt, nil
}

// Join subscribes the session's connection to the doubt chat and sends it
// the recent history.
func (s *ChatService) Join(ctx context.Context, sess Session, ev domain.JoinChat) error {
	if sess.UserID != ev.UserID || sess.Role != ev.Role {
		return domain.ErrUnauthorized
	}
	if _, err := s.participant(ctx, sess, ev.DoubtID); err != nil {
		return err
	}
	history, err := s.store.History(ctx, ev.DoubtID, s.history)
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}
	s.channels.Subscribe(DoubtChannel(ev.DoubtID), sess.Handle)
	s.channels.Send(sess.Handle, domain.ChatJoined{DoubtID: ev.DoubtID, History: history})
	s.log.Debug().Str("doubt_id", ev.DoubtID).Str("user_id", sess.UserID).Str("role", string(sess.Role)).Msg("joined chat")
	return nil
}

// Send stores a message and relays it to everyone in the chat.
func (s *ChatService) Send(ctx context.Context, sess Session, ev domain.SendMessage) error {
	if sess.UserID != ev.Sender {
		return domain.ErrUnauthorized
	}
	text := strings.TrimSpace(ev.Message)
	if text == "" {
		return fmt.Errorf("%w: message must not be empty", domain.ErrInvalidRequest)
	}
	if _, err := s.participant(ctx, sess, ev.DoubtID); err != nil {
		return err
	}
	msg, err := s.store.Append(ctx, domain.ChatMessage{
		ID:         uuid.NewString(),
		DoubtID:    ev.DoubtID,
		Sender:     sess.UserID,
		SenderRole: sess.Role,
		Message:    text,
		Timestamp:  s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("store chat message: %w", err)
	}
	metrics.RecordChatMessage()
	s.channels.Publish(DoubtChannel(ev.DoubtID), msg)
	return nil
}

// Leave unsubscribes the connection and tells the rest of the chat.
func (s *ChatService) Leave(sess Session, ev domain.LeaveChat) error {
	if sess.UserID != ev.UserID {
		return domain.ErrUnauthorized
	}
	if s.channels.Unsubscribe(DoubtChannel(ev.DoubtID), sess.Handle) {
		s.channels.Publish(DoubtChannel(ev.DoubtID), domain.UserLeft{DoubtID: ev.DoubtID, UserID: sess.UserID})
	}
	return nil
}

// UpdateStatus resolves the doubt from inside its chat.
func (s *ChatService) UpdateStatus(ctx context.Context, sess Session, ev domain.DoubtStatusUpdate) error {
	if ev.Status != domain.DoubtResolved {
		return fmt.Errorf("%w: status %q cannot be set from a chat", domain.ErrInvalidRequest, ev.Status)
	}
	_, err := s.doubts.Resolve(ctx, ev.DoubtID, sess.UserID, sess.Role)
	return err
}

// History returns a doubt's recent messages to one of its participants.
func (s *ChatService) History(ctx context.Context, sess Session, doubtID string) ([]domain.ChatMessage, error) {
	if _, err := s.participant(ctx, sess, doubtID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, doubtID, s.history)
}

// Disconnect drops a closed connection from its chats and tells each of them.
func (s *ChatService) Disconnect(sess Session) {
	for _, channel := range s.channels.Leave(sess.Handle) {
		doubtID, ok := strings.CutPrefix(channel, DoubtChannel(""))
		if !ok {
			continue
		}
		s.channels.Publish(channel, domain.UserLeft{DoubtID: doubtID, UserID: sess.UserID})
	}
}
