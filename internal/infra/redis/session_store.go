package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions live in a local map; Redis only carries a liveness marker per game
// so operators and other instances can see which games this process hosts.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	logger   zerolog.Logger
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		logger:   logger.With().Str("component", "redis_session_store").Logger(),
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Insert(session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID()]; ok {
		return domain.ErrDuplicateKey.Withf("game %s already exists", session.ID())
	}
	s.sessions[session.ID()] = session
	s.mark(session)
	return nil
}

func (s *SessionStore) Get(gameID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[gameID]
	return session, ok
}

func (s *SessionStore) Delete(gameID string) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[gameID]
	if !ok {
		return nil, false
	}
	delete(s.sessions, gameID)
	if err := s.client.Del(context.Background(), Key(gameID)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("game_id", gameID).Msg("clear liveness marker")
	}
	return session, true
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// mark writes a best-effort liveness marker.
func (s *SessionStore) mark(session *app.Session) {
	ctx := context.Background()
	key := Key(session.ID())
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "host", session.HostID(), "createdAt", time.Now().UTC().Format(time.RFC3339))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Str("game_id", session.ID()).Msg("set liveness marker")
	}
}

// Key is the Redis key of a game's liveness marker.
func Key(gameID string) string {
	return "trivia:game:" + gameID
}
