package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tutor-live-service/internal/app"
	"tutor-live-service/internal/auth"
	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/metrics"
)

const writeWait = 10 * time.Second

// Dispatcher handles one inbound room or chat event for a session.
type Dispatcher interface {
	Handle(ctx context.Context, sess app.Session, event domain.Inbound) error
}

type WSHandler struct {
	hub      *Hub
	rooms    Dispatcher
	auth     auth.Authenticator
	validate *validator.Validate
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *Hub, rooms Dispatcher, authn auth.Authenticator, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:      hub,
		rooms:    rooms,
		auth:     authn,
		validate: validator.New(),
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS authenticates and upgrades the request, then feeds every inbound
// envelope to the room dispatcher until the connection goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	handle := uuid.NewString()
	sess := app.Session{Handle: handle, UserID: identity.UserID, Role: identity.Role, Name: identity.Name}
	log := h.log.With().Str("handle", handle).Str("user_id", identity.UserID).Logger()

	outbound := h.hub.Register(handle, identity.UserID)
	metrics.IncWSConnections()
	defer metrics.DecWSConnections()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				_ = conn.Close()
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		event, err := h.decode(raw)
		if err == nil {
			err = h.rooms.Handle(ctx, sess, event)
		}
		if err != nil {
			log.Debug().Err(err).Msg("inbound event rejected")
			h.hub.Send(handle, domain.ErrorEvent{Message: err.Error()})
		}
	}

	if err := h.rooms.Handle(context.WithoutCancel(ctx), sess, domain.Disconnect{}); err != nil {
		log.Warn().Err(err).Msg("disconnect cleanup failed")
	}
	h.hub.Unregister(handle)
	<-writerDone
}

// decode turns one envelope into a validated inbound event.
func (h *WSHandler) decode(raw []byte) (domain.Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope", domain.ErrInvalidRequest)
	}
	event, err := DecodeInbound(env.Type, env.Payload)
	if err != nil {
		return nil, err
	}
	if err := h.validate.Struct(event); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: %s failed on %s", domain.ErrInvalidRequest, verrs[0].Field(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return event, nil
}

// DecodeInbound maps an event name and its JSON payload onto the matching
// inbound variant.
func DecodeInbound(eventType string, payload json.RawMessage) (domain.Inbound, error) {
	switch eventType {
	case domain.EventJoinRoom:
		return decodePayload[domain.JoinRoom](payload)
	case domain.EventStartQuiz:
		return decodePayload[domain.StartQuiz](payload)
	case domain.EventSubmitAnswer:
		return decodePayload[domain.SubmitAnswer](payload)
	case domain.EventEndQuiz:
		return decodePayload[domain.EndQuiz](payload)
	case domain.EventPublishResults:
		return decodePayload[domain.PublishResults](payload)
	case domain.EventVerifyRoom:
		return decodePayload[domain.VerifyRoom](payload)
	case domain.EventStoreQuiz:
		return decodePayload[domain.StoreQuiz](payload)
	case domain.EventJoinChat:
		return decodePayload[domain.JoinChat](payload)
	case domain.EventSendMessage:
		return decodePayload[domain.SendMessage](payload)
	case domain.EventLeaveChat:
		return decodePayload[domain.LeaveChat](payload)
	case domain.EventDoubtStatusUpdate:
		return decodePayload[domain.DoubtStatusUpdate](payload)
	case domain.EventDisconnect:
		return domain.Disconnect{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported message type %q", domain.ErrInvalidRequest, eventType)
	}
}

func decodePayload[T domain.Inbound](payload json.RawMessage) (domain.Inbound, error) {
	var event T
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: missing payload", domain.ErrInvalidRequest)
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", domain.ErrInvalidRequest, event.EventName(), err)
	}
	return event, nil
}
