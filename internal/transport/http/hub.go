package http

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/metrics"
)

// sendBuffer bounds each connection's outbound queue.
const sendBuffer = 64

// Envelope is the wire format of every websocket message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type client struct {
	handle string
	userID string
	// channels is guarded by Hub.mu.
	channels map[string]struct{}

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// enqueue never blocks. When the queue is full the oldest message is dropped
// so a slow client only loses stale updates.
func (c *client) enqueue(msg []byte) (delivered, dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, false
	}
	select {
	case c.send <- msg:
		return true, false
	default:
	}
	select {
	case <-c.send:
		dropped = true
	default:
	}
	select {
	case c.send <- msg:
		return true, dropped
	default:
		return false, true
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub tracks open connections by handle, by user and by named channel. It
// implements the coordinator's Notifier, the matcher's UserNotifier and the
// chat's ChatChannels.
type Hub struct {
	log zerolog.Logger

	mu       sync.RWMutex
	clients  map[string]*client
	byUser   map[string]map[string]*client
	channels map[string]map[string]*client
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:      log,
		clients:  make(map[string]*client),
		byUser:   make(map[string]map[string]*client),
		channels: make(map[string]map[string]*client),
	}
}

// Register opens a queue for handle and returns it for the writer goroutine.
func (h *Hub) Register(handle, userID string) <-chan []byte {
	c := &client{
		handle:   handle,
		userID:   userID,
		channels: make(map[string]struct{}),
		send:     make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[handle] = c
	if userID != "" {
		if h.byUser[userID] == nil {
			h.byUser[userID] = make(map[string]*client)
		}
		h.byUser[userID][handle] = c
	}
	return c.send
}

// Unregister closes the queue of handle; the writer drains and exits.
func (h *Hub) Unregister(handle string) {
	h.mu.Lock()
	c, ok := h.clients[handle]
	if ok {
		delete(h.clients, handle)
		if conns := h.byUser[c.userID]; conns != nil {
			delete(conns, handle)
			if len(conns) == 0 {
				delete(h.byUser, c.userID)
			}
		}
		h.leaveLocked(c)
	}
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// Connections reports how many handles are registered.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Send(handle string, event domain.Outbound) {
	h.mu.RLock()
	c := h.clients[handle]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	h.deliver([]*client{c}, event)
}

func (h *Hub) Broadcast(handles []string, event domain.Outbound) {
	targets := make([]*client, 0, len(handles))
	h.mu.RLock()
	for _, handle := range handles {
		if c := h.clients[handle]; c != nil {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, event)
}

// NotifyUser pushes event to every connection of userID.
func (h *Hub) NotifyUser(userID string, event domain.Outbound) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.byUser[userID]))
	for _, c := range h.byUser[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		h.log.Debug().Str("user_id", userID).Str("event", event.EventName()).Msg("user has no open connection")
		return
	}
	h.deliver(targets, event)
}

// Subscribe adds handle to channel. It reports false for unknown handles.
func (h *Hub) Subscribe(channel, handle string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.clients[handle]
	if c == nil {
		return false
	}
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[string]*client)
	}
	h.channels[channel][handle] = c
	c.channels[channel] = struct{}{}
	return true
}

// Unsubscribe removes handle from channel and reports whether it was there.
func (h *Hub) Unsubscribe(channel, handle string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.channels[channel]
	c, ok := members[handle]
	if !ok {
		return false
	}
	delete(members, handle)
	if len(members) == 0 {
		delete(h.channels, channel)
	}
	delete(c.channels, channel)
	return true
}

// Leave removes handle from all its channels and returns them.
func (h *Hub) Leave(handle string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.clients[handle]
	if c == nil {
		return nil
	}
	return h.leaveLocked(c)
}

func (h *Hub) leaveLocked(c *client) []string {
	left := make([]string, 0, len(c.channels))
	for channel := range c.channels {
		if members := h.channels[channel]; members != nil {
			delete(members, c.handle)
			if len(members) == 0 {
				delete(h.channels, channel)
			}
		}
		left = append(left, channel)
	}
	clear(c.channels)
	return left
}

// Publish pushes event to every connection subscribed to channel.
func (h *Hub) Publish(channel string, event domain.Outbound) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.channels[channel]))
	for _, c := range h.channels[channel] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, event)
}

func (h *Hub) deliver(targets []*client, event domain.Outbound) {
	if len(targets) == 0 {
		return
	}
	msg, err := encode(event)
	if err != nil {
		h.log.Error().Err(err).Str("event", event.EventName()).Msg("failed to encode event")
		return
	}
	for _, c := range targets {
		delivered, dropped := c.enqueue(msg)
		if delivered {
			metrics.RecordEventDelivered(event.EventName())
		}
		if dropped {
			metrics.RecordEventDropped(event.EventName())
			h.log.Warn().Str("handle", c.handle).Str("event", event.EventName()).Msg("slow client, dropped oldest message")
		}
	}
}

func encode(event domain.Outbound) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: event.EventName(), Payload: payload})
}
