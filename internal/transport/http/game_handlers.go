package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
)

// GameHandler exposes the game use cases over REST.
type GameHandler struct {
	service *app.GameService
}

func NewGameHandler(service *app.GameService) *GameHandler {
	return &GameHandler{service: service}
}

type createGameRequest struct {
	GameID        string            `json:"gameId"`
	HostID        string            `json:"hostId"`
	Password      string            `json:"password"`
	Questions     []domain.Question `json:"questions"`
	QuestionSetID string            `json:"questionSetId"`
	MaxPlayers    int               `json:"maxPlayers"`
}

type joinGameRequest struct {
	GameID     string `json:"gameId"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Password   string `json:"password"`
}

type submitAnswerRequest struct {
	GameID        string `json:"gameId"`
	PlayerID      string `json:"playerId"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        int    `json:"answer"`
	TimeTaken     int64  `json:"timeTaken"`
}

func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.service.CreateSession(r.Context(), app.CreateSessionInput{
		GameID:        req.GameID,
		HostID:        req.HostID,
		Password:      req.Password,
		Questions:     req.Questions,
		QuestionSetID: req.QuestionSetID,
		MaxPlayers:    req.MaxPlayers,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, "Game created successfully", session.Snapshot())
}

func (h *GameHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinGameRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.service.JoinSession(r.Context(), req.GameID, req.PlayerID, req.PlayerName, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Joined game successfully", session.Snapshot())
}

func (h *GameHandler) Start(w http.ResponseWriter, r *http.Request) {
	gameID, hostID := hostParams(r)
	ev, err := h.service.StartSession(r.Context(), gameID, hostID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Game started", ev)
}

func (h *GameHandler) StartQuestion(w http.ResponseWriter, r *http.Request) {
	gameID, hostID := hostParams(r)
	ev, err := h.service.StartQuestion(r.Context(), gameID, hostID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	message := "Question started"
	if ev.Type == domain.EventGameEnded {
		message = "Game ended"
	}
	respondOK(w, http.StatusOK, message, ev)
}

func (h *GameHandler) EndQuestion(w http.ResponseWriter, r *http.Request) {
	gameID, hostID := hostParams(r)
	ev, err := h.service.EndQuestion(r.Context(), gameID, hostID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	message := "Question ended"
	if ev.Type == domain.EventGameEnded {
		message = "Game ended"
	}
	respondOK(w, http.StatusOK, message, ev)
}

func (h *GameHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if !decode(w, r, &req) {
		return
	}
	answer, err := h.service.SubmitAnswer(r.Context(), app.SubmitAnswerInput{
		GameID:        req.GameID,
		PlayerID:      req.PlayerID,
		QuestionIndex: req.QuestionIndex,
		Option:        req.Answer,
		TimeTakenMs:   req.TimeTaken,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Answer submitted", answer)
}

func (h *GameHandler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Results(chi.URLParam(r, "gameId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Game results", results)
}

func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(chi.URLParam(r, "gameId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Game found", snap)
}

// Delete removes a game. Only its host may do so; deleting an unknown game succeeds.
func (h *GameHandler) Delete(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameId")
	if session, ok := h.service.GetSession(gameID); ok {
		if session.HostID() != r.URL.Query().Get("hostId") {
			respondError(w, r, domain.ErrUnauthorized)
			return
		}
		h.service.DeleteSession(gameID)
	}
	respondOK(w, http.StatusOK, "Game deleted", nil)
}

func hostParams(r *http.Request) (gameID, hostID string) {
	q := r.URL.Query()
	return q.Get("gameId"), q.Get("hostId")
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, r, domain.ErrInvalidRequest.Withf("invalid JSON body: %v", err))
		return false
	}
	return true
}
