package http

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// envelope is the outbound wire format: the type field carries the per-PIN
// topic (question, timer, result, scoreboard, end) or transport-level kinds
// (joined, error).
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans broadcast payloads out to every connection subscribed to a PIN.
// Publish is fire-and-forget: a subscriber whose send buffer is full gets its
// oldest queued frame dropped so a slow client never blocks a round.
type Hub struct {
	log zerolog.Logger

	mu   sync.RWMutex
	subs map[string]map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan envelope
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[string]map[*client]struct{}),
	}
}

// Publish implements app.Broadcaster for currently subscribed listeners of pin.
func (h *Hub) Publish(pin, topic string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subs[pin] {
		c.offer(envelope{Type: topic, Payload: payload})
	}
}

func (h *Hub) subscribe(pin string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[pin] == nil {
		h.subs[pin] = make(map[*client]struct{})
	}
	h.subs[pin][c] = struct{}{}
}

func (h *Hub) unsubscribe(pin string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[pin]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, pin)
		}
	}
}

// offer enqueues without blocking, shedding the oldest frame under pressure.
func (c *client) offer(msg envelope) {
	select {
	case c.send <- msg:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

// writeLoop drains the send channel onto the socket until the channel closes
// or a write fails.
func (c *client) writeLoop(log zerolog.Logger) {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Msg("ws write failed")
			return
		}
	}
}
