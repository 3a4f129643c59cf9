package app

import (
	"context"

	"tutor-live-service/internal/domain"
)

// Mux routes the events of one connection to the room coordinator or to
// the doubt chat. Chat may be nil.
type Mux struct {
	rooms *Coordinator
	chat  *ChatService
}

func NewMux(rooms *Coordinator, chat *ChatService) *Mux {
	return &Mux{rooms: rooms, chat: chat}
}

func (m *Mux) Handle(ctx context.Context, sess Session, event domain.Inbound) error {
	switch event.(type) {
	case domain.JoinChat, domain.SendMessage, domain.LeaveChat, domain.DoubtStatusUpdate:
		if m.chat == nil {
			return m.rooms.Handle(ctx, sess, event)
		}
		return m.chat.Handle(ctx, sess, event)
	case domain.Disconnect:
		m.rooms.Disconnect(sess.Handle)
		if m.chat != nil {
			m.chat.Disconnect(sess)
		}
		return nil
	default:
		return m.rooms.Handle(ctx, sess, event)
	}
}
