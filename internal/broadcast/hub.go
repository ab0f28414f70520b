package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trivia-live-service/internal/metrics"
)

// DefaultSendTimeout bounds a single subscriber delivery.
const DefaultSendTimeout = 2 * time.Second

// Sink is a subscriber's outbound channel. Send must respect ctx and must not retain payload.
type Sink interface {
	Send(ctx context.Context, payload []byte) error
}

// Report counts the outcome of one fan-out.
type Report struct {
	Delivered int
	Failed    int
}

type subscription struct {
	playerID string
	sink     Sink
}

// Hub fans events out to the subscribers of each session.
type Hub struct {
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	sendTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]map[string]*subscription
}

// NewHub creates an empty hub. A non-positive sendTimeout uses DefaultSendTimeout.
func NewHub(logger zerolog.Logger, m *metrics.Metrics, sendTimeout time.Duration) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Hub{
		logger:      logger.With().Str("component", "hub").Logger(),
		metrics:     m,
		sendTimeout: sendTimeout,
		sessions:    make(map[string]map[string]*subscription),
	}
}

// Subscribe registers sink for playerID, replacing any previous sink of that player.
// The returned cancel removes the entry only while it still holds this subscription.
func (h *Hub) Subscribe(gameID, playerID string, sink Sink) func() {
	sub := &subscription{playerID: playerID, sink: sink}

	h.mu.Lock()
	subs, ok := h.sessions[gameID]
	if !ok {
		subs = make(map[string]*subscription)
		h.sessions[gameID] = subs
	}
	subs[playerID] = sub
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.sessions[gameID]
		if !ok {
			return
		}
		if current, ok := subs[playerID]; ok && current == sub {
			delete(subs, playerID)
			if len(subs) == 0 {
				delete(h.sessions, gameID)
			}
		}
	}
}

// Unsubscribe removes playerID's sink; a no-op when absent.
func (h *Hub) Unsubscribe(gameID, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.sessions[gameID]
	if !ok {
		return
	}
	delete(subs, playerID)
	if len(subs) == 0 {
		delete(h.sessions, gameID)
	}
}

// Drop forgets every subscriber of gameID.
func (h *Hub) Drop(gameID string) {
	h.mu.Lock()
	delete(h.sessions, gameID)
	h.mu.Unlock()
}

// Subscribers returns the player ids currently subscribed to gameID.
func (h *Hub) Subscribers(gameID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions[gameID]))
	for id := range h.sessions[gameID] {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast delivers event to every subscriber of gameID. Failures are logged and counted, never returned.
func (h *Hub) Broadcast(ctx context.Context, gameID string, event any) Report {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("game_id", gameID).Msg("encode event")
		return Report{}
	}

	h.mu.RLock()
	targets := make([]*subscription, 0, len(h.sessions[gameID]))
	for _, sub := range h.sessions[gameID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var report Report
	for _, sub := range targets {
		if h.deliver(ctx, gameID, sub, payload) {
			report.Delivered++
		} else {
			report.Failed++
		}
	}
	return report
}

// SendToOne delivers event to a single subscriber. It reports false when the player is
// not subscribed or the delivery failed.
func (h *Hub) SendToOne(ctx context.Context, gameID, playerID string, event any) bool {
	h.mu.RLock()
	sub, ok := h.sessions[gameID][playerID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("game_id", gameID).Msg("encode event")
		return false
	}
	return h.deliver(ctx, gameID, sub, payload)
}

func (h *Hub) deliver(ctx context.Context, gameID string, sub *subscription, payload []byte) bool {
	sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()
	if err := sub.sink.Send(sendCtx, payload); err != nil {
		h.metrics.DeliveryFailed()
		h.logger.Warn().Err(err).
			Str("game_id", gameID).
			Str("player_id", sub.playerID).
			Msg("event delivery failed")
		return false
	}
	return true
}
