package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/broadcast"
	"trivia-live-service/internal/domain"
)

const (
	sendQueueSize = 64
	writeWait     = 10 * time.Second
)

type WSHandler struct {
	service  *app.GameService
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger.With().Str("component", "ws").Logger(),
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

type answerPayload struct {
	QuestionIndex int   `json:"questionIndex"`
	Answer        int   `json:"answer"`
	TimeTaken     int64 `json:"timeTaken"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ServeWS upgrades the request and streams every event of the game to the caller.
// Clients may submit answers over the same socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameId")
	playerID := r.URL.Query().Get("playerId")
	if gameID == "" || playerID == "" {
		respondError(w, r, domain.ErrInvalidRequest.Withf("missing gameId or playerId"))
		return
	}
	session, ok := h.service.GetSession(gameID)
	if !ok {
		respondError(w, r, domain.ErrSessionNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("game_id", gameID).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	logger := h.logger.With().Str("game_id", gameID).Str("player_id", playerID).Logger()
	sink := broadcast.NewQueueSink(sendQueueSize)
	cancel, err := h.service.Subscribe(gameID, playerID, sink)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: toErrorPayload(err)})
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range sink.C() {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug().Err(err).Msg("ws write failed")
				// Unblocks the read loop below.
				_ = conn.Close()
				for range sink.C() {
				}
				return
			}
		}
	}()

	ctx := context.WithoutCancel(r.Context())
	h.reply(ctx, sink, "connected", session.Snapshot())
	logger.Info().Msg("ws connected")

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.reply(ctx, sink, "error", errorPayload{Code: domain.ErrInvalidRequest.Code, Message: "invalid answer payload"})
				continue
			}
			answer, err := h.service.SubmitAnswer(ctx, app.SubmitAnswerInput{
				GameID:        gameID,
				PlayerID:      playerID,
				QuestionIndex: payload.QuestionIndex,
				Option:        payload.Answer,
				TimeTakenMs:   payload.TimeTaken,
			})
			if err != nil {
				h.reply(ctx, sink, "error", toErrorPayload(err))
				continue
			}
			h.reply(ctx, sink, "answerResult", answer)
		case "snapshot":
			if snap, err := h.service.Snapshot(gameID); err == nil {
				h.reply(ctx, sink, "snapshot", snap)
			} else {
				h.reply(ctx, sink, "error", toErrorPayload(err))
			}
		default:
			h.reply(ctx, sink, "error", errorPayload{Code: domain.ErrInvalidRequest.Code, Message: "unsupported message type"})
		}
	}

	cancel()
	sink.Close()
	<-writerDone
	logger.Info().Msg("ws disconnected")
}

func (h *WSHandler) reply(ctx context.Context, sink *broadcast.QueueSink, typ string, payload any) {
	data, err := json.Marshal(outboundMessage[any]{Type: typ, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Msg("encode ws reply")
		return
	}
	if err := sink.Send(ctx, data); err != nil {
		h.logger.Debug().Err(err).Str("type", typ).Msg("ws reply dropped")
	}
}

func toErrorPayload(err error) errorPayload {
	return errorPayload{Code: domain.CodeOf(err), Message: err.Error()}
}
