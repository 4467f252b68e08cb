package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"pool-quiz-service/internal/app"
	"pool-quiz-service/internal/domain"
)

// APIHandler is the host-facing REST surface: starting a game and reading a
// lobby roster. Gameplay itself flows over the websocket gateway.
type APIHandler struct {
	engine *app.GameService
	log    zerolog.Logger
}

func NewAPIHandler(engine *app.GameService, log zerolog.Logger) *APIHandler {
	return &APIHandler{engine: engine, log: log}
}

// Register mounts the REST routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/pool/start", h.startGame)
	mux.HandleFunc("GET /api/pool/{pin}/players", h.listPlayers)
	mux.HandleFunc("GET /api/pool/{pin}/scoreboard", h.scoreboard)
}

type startGameRequest struct {
	QuizID string `json:"quizId"`
}

type startGameResponse struct {
	Session   domain.GameSession `json:"session"`
	HostToken string             `json:"hostToken"`
}

func (h *APIHandler) startGame(w http.ResponseWriter, r *http.Request) {
	var req startGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}

	session, hostToken, err := h.engine.StartGame(r.Context(), req.QuizID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, startGameResponse{Session: session, HostToken: hostToken})
}

func (h *APIHandler) listPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.engine.Players(r.PathValue("pin"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, players)
}

func (h *APIHandler) scoreboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.engine.Scoreboard(r.PathValue("pin"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, board)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Debug().Err(err).Msg("write response failed")
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidPin), errors.Is(err, domain.ErrQuizNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrGameAlreadyStarted), errors.Is(err, domain.ErrDuplicateNickname):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrQuizMisconfigured):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	}
	http.Error(w, err.Error(), status)
}
