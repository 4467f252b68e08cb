package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pool-quiz-service/internal/app"
	"pool-quiz-service/internal/domain"
)

// WSHandler is the broadcast gateway's inbound path: one socket per
// participant, subscribed to a single PIN's topics.
type WSHandler struct {
	engine   *app.GameService
	hub      *Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.GameService, hub *Hub, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		engine: engine,
		hub:    hub,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	Nickname string `json:"nickname"`
}

type answerPayload struct {
	Nickname       string `json:"nickname"`
	QuestionID     string `json:"questionId"`
	SelectedOption string `json:"selectedOption"`
}

type hostPayload struct {
	HostToken string `json:"hostToken"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and pumps inbound player/host actions into the
// engine. `?pin=` selects which game's topics the connection subscribes to.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	if pin == "" {
		http.Error(w, "missing pin", http.StatusBadRequest)
		return
	}
	if _, err := h.engine.Players(pin); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	c := &client{conn: conn, send: make(chan envelope, 16)}
	h.hub.subscribe(pin, c)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(h.log)
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, pin, c, inbound)
	}

	// Unsubscribe first: its write lock waits out any Publish holding the
	// read lock, so nothing can offer to the channel once it closes.
	h.hub.unsubscribe(pin, c)
	close(c.send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, pin string, c *client, inbound inboundMessage) {
	switch inbound.Type {
	case "join":
		var payload joinPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Nickname == "" {
			c.offer(envelope{Type: "error", Payload: errorPayload{Message: "invalid join payload"}})
			return
		}
		player, err := h.engine.Join(r.Context(), pin, payload.Nickname)
		if err != nil {
			c.offer(envelope{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		c.offer(envelope{Type: "joined", Payload: player})
		// Lobby roster update for everyone already watching.
		if board, err := h.engine.Scoreboard(pin); err == nil {
			h.hub.Publish(pin, app.TopicScoreboard, board)
		}

	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.offer(envelope{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
			return
		}
		allAnswered, err := h.engine.SubmitAnswer(r.Context(), pin, payload.Nickname, payload.QuestionID, payload.SelectedOption)
		if err != nil {
			c.offer(envelope{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		if board, err := h.engine.Scoreboard(pin); err == nil {
			h.hub.Publish(pin, app.TopicScoreboard, board)
		}
		if allAnswered {
			h.engine.CompleteRound(pin)
		}

	case "next":
		if !h.authorizeHost(pin, c, inbound.Payload) {
			return
		}
		if err := h.engine.NextRound(r.Context(), pin); err != nil {
			c.offer(envelope{Type: "error", Payload: errorPayload{Message: err.Error()}})
		}

	case "end":
		if !h.authorizeHost(pin, c, inbound.Payload) {
			return
		}
		if err := h.engine.FinishGame(pin); err != nil {
			c.offer(envelope{Type: "error", Payload: errorPayload{Message: err.Error()}})
		}

	default:
		c.offer(envelope{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
	}
}

func (h *WSHandler) authorizeHost(pin string, c *client, raw json.RawMessage) bool {
	var payload hostPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.offer(envelope{Type: "error", Payload: errorPayload{Message: "invalid host payload"}})
		return false
	}
	token, err := h.engine.HostToken(pin)
	if err != nil || payload.HostToken != token {
		c.offer(envelope{Type: "error", Payload: errorPayload{Message: domain.ErrUnauthorized.Error()}})
		return false
	}
	return true
}
