package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trivia-live-service/internal/broadcast"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/metrics"
	"trivia-live-service/internal/scoring"
)

// SessionRepository abstracts how live sessions are held (in-memory, Redis-marked, etc).
type SessionRepository interface {
	// Insert stores session, failing with domain.ErrDuplicateKey if its id is taken.
	Insert(session *Session) error
	Get(gameID string) (*Session, bool)
	// Delete removes and returns the session; ok is false when it was absent.
	Delete(gameID string) (*Session, bool)
	List() []*Session
}

// QuestionSetRepository loads catalog question sets (from cache/backing store).
type QuestionSetRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// Broadcaster fans events out to the live observers of a session.
type Broadcaster interface {
	Subscribe(gameID, playerID string, sink broadcast.Sink) func()
	Unsubscribe(gameID, playerID string)
	Drop(gameID string)
	Broadcast(ctx context.Context, gameID string, event any) broadcast.Report
	SendToOne(ctx context.Context, gameID, playerID string, event any) bool
}

// Options tunes a GameService. Zero values fall back to defaults.
type Options struct {
	MaxPlayers       int
	TimeBudget       time.Duration
	WatchdogInterval time.Duration
	Retention        time.Duration
	Scoring          scoring.Config
	Clock            func() time.Time
	Logger           zerolog.Logger
	Metrics          *metrics.Metrics
}

// GameService owns session lifetime and exposes the game use cases.
type GameService struct {
	sessions     SessionRepository
	questionSets QuestionSetRepository
	hub          Broadcaster
	scorer       *scoring.Engine
	opts         Options
	logger       zerolog.Logger
}

// NewGameService wires a service. questionSets may be nil when only inline questions are used.
func NewGameService(store SessionRepository, questionSets QuestionSetRepository, hub Broadcaster, opts Options) *GameService {
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = domain.DefaultMaxPlayers
	}
	if opts.TimeBudget <= 0 {
		opts.TimeBudget = domain.DefaultTimeBudget
	}
	if opts.WatchdogInterval <= 0 {
		opts.WatchdogInterval = DefaultWatchdogInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = 30 * time.Minute
	}
	if opts.Scoring == (scoring.Config{}) {
		opts.Scoring = scoring.DefaultConfig()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &GameService{
		sessions:     store,
		questionSets: questionSets,
		hub:          hub,
		scorer:       scoring.NewEngine(opts.Scoring),
		opts:         opts,
		logger:       opts.Logger.With().Str("component", "game").Logger(),
	}
}

// CreateSessionInput describes a new session. Questions take precedence over QuestionSetID.
type CreateSessionInput struct {
	GameID        string
	HostID        string
	Password      string
	Questions     []domain.Question
	QuestionSetID string
	MaxPlayers    int
}

// CreateSession registers a new session in WAITING.
func (g *GameService) CreateSession(ctx context.Context, in CreateSessionInput) (*Session, error) {
	if in.HostID == "" {
		return nil, domain.ErrInvalidRequest.Withf("hostId is required")
	}
	if in.GameID == "" {
		in.GameID = uuid.NewString()
	}

	questions := in.Questions
	if len(questions) == 0 && in.QuestionSetID != "" {
		if g.questionSets == nil {
			return nil, domain.ErrQuestionSetNotFound
		}
		set, err := g.questionSets.GetQuestionSet(ctx, in.QuestionSetID)
		if err != nil {
			return nil, err
		}
		questions = set.Questions
	}
	if len(questions) != domain.QuestionsPerGame {
		return nil, domain.ErrInvalidQuestionCount.Withf("game requires exactly %d questions, got %d", domain.QuestionsPerGame, len(questions))
	}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}

	maxPlayers := in.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = g.opts.MaxPlayers
	}

	session := newSession(sessionParams{
		id:         in.GameID,
		hostID:     in.HostID,
		password:   in.Password,
		questions:  questions,
		maxPlayers: maxPlayers,
		timeBudget: g.opts.TimeBudget,
		now:        g.opts.Clock,
		scorer:     g.scorer,
		arm:        g.armWatchdog,
	})
	if err := g.sessions.Insert(session); err != nil {
		return nil, err
	}
	g.opts.Metrics.SessionCreated()
	g.logger.Info().Str("game_id", session.ID()).Str("host_id", in.HostID).Int("max_players", maxPlayers).Msg("game created")
	return session, nil
}

// GetSession returns the session under gameID.
func (g *GameService) GetSession(gameID string) (*Session, bool) {
	return g.sessions.Get(gameID)
}

// JoinSession adds a player to a waiting session.
func (g *GameService) JoinSession(ctx context.Context, gameID, playerID, name, password string) (*Session, error) {
	if playerID == "" || name == "" {
		return nil, domain.ErrInvalidRequest.Withf("playerId and playerName are required")
	}
	session, ok := g.sessions.Get(gameID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	ev, err := session.join(playerID, name, password)
	if err != nil {
		return nil, err
	}
	g.publish(ctx, ev)
	return session, nil
}

// StartSession moves a waiting session to IN_PROGRESS and arms its watchdog.
func (g *GameService) StartSession(ctx context.Context, gameID, hostID string) (domain.Event, error) {
	return g.apply(ctx, gameID, func(s *Session) (domain.Event, error) { return s.start(hostID) })
}

// StartQuestion advances to the next question, or ends the game when time or questions run out.
func (g *GameService) StartQuestion(ctx context.Context, gameID, hostID string) (domain.Event, error) {
	return g.apply(ctx, gameID, func(s *Session) (domain.Event, error) { return s.startQuestion(hostID) })
}

// EndQuestion closes the active question.
func (g *GameService) EndQuestion(ctx context.Context, gameID, hostID string) (domain.Event, error) {
	return g.apply(ctx, gameID, func(s *Session) (domain.Event, error) { return s.endQuestion(hostID) })
}

// SubmitAnswerInput is one player's answer to the active question.
type SubmitAnswerInput struct {
	GameID        string
	PlayerID      string
	QuestionIndex int
	Option        int
	TimeTakenMs   int64
}

// SubmitAnswer scores and records an answer for the active question.
func (g *GameService) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (domain.Answer, error) {
	session, ok := g.sessions.Get(in.GameID)
	if !ok {
		return domain.Answer{}, domain.ErrSessionNotFound
	}
	answer, ev, err := session.submitAnswer(in.PlayerID, in.QuestionIndex, in.Option, in.TimeTakenMs)
	if err != nil {
		return domain.Answer{}, err
	}
	g.opts.Metrics.AnswerSubmitted(answer.Correct)
	g.publish(ctx, ev)
	return answer, nil
}

// Snapshot returns the current public view of a session.
func (g *GameService) Snapshot(gameID string) (domain.SessionSnapshot, error) {
	session, ok := g.sessions.Get(gameID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return session.Snapshot(), nil
}

// Results returns the final standings of a finished session.
func (g *GameService) Results(gameID string) (domain.Results, error) {
	session, ok := g.sessions.Get(gameID)
	if !ok {
		return domain.Results{}, domain.ErrSessionNotFound
	}
	return session.results()
}

// DeleteSession removes a session, stops its watchdog and drops its observers. Idempotent.
func (g *GameService) DeleteSession(gameID string) {
	session, ok := g.sessions.Delete(gameID)
	if !ok {
		return
	}
	session.shutdown()
	g.hub.Drop(gameID)
	g.opts.Metrics.SessionDeleted()
	g.logger.Info().Str("game_id", gameID).Msg("game deleted")
}

// Subscribe attaches a live observer to an existing session. The caller must invoke cancel.
func (g *GameService) Subscribe(gameID, playerID string, sink broadcast.Sink) (cancel func(), err error) {
	if _, ok := g.sessions.Get(gameID); !ok {
		return nil, domain.ErrSessionNotFound
	}
	return g.hub.Subscribe(gameID, playerID, sink), nil
}

// Unsubscribe detaches playerID's observer; game state is unaffected.
func (g *GameService) Unsubscribe(gameID, playerID string) {
	g.hub.Unsubscribe(gameID, playerID)
}

// SendToOne delivers event to a single observer, best effort.
func (g *GameService) SendToOne(ctx context.Context, gameID, playerID string, event any) bool {
	return g.hub.SendToOne(ctx, gameID, playerID, event)
}

func (g *GameService) apply(ctx context.Context, gameID string, transition func(*Session) (domain.Event, error)) (domain.Event, error) {
	session, ok := g.sessions.Get(gameID)
	if !ok {
		return domain.Event{}, domain.ErrSessionNotFound
	}
	ev, err := transition(session)
	if err != nil {
		return domain.Event{}, err
	}
	g.publish(ctx, ev)
	return ev, nil
}

// publish runs after the session lock is released; Seq orders events that race here.
func (g *GameService) publish(ctx context.Context, ev domain.Event) {
	g.opts.Metrics.EventPublished(string(ev.Type))
	report := g.hub.Broadcast(context.WithoutCancel(ctx), ev.GameID, ev)
	g.logger.Debug().
		Str("game_id", ev.GameID).
		Str("event", string(ev.Type)).
		Uint64("seq", ev.Seq).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Msg("event published")
	if ev.Type == domain.EventGameEnded {
		g.logger.Info().Str("game_id", ev.GameID).Str("reason", ev.Message).Msg("game ended")
	}
}

func (g *GameService) armWatchdog(session *Session) *Watchdog {
	return StartWatchdog(g.opts.WatchdogInterval, func() bool {
		return g.onWatchdogTick(session)
	})
}

func (g *GameService) onWatchdogTick(session *Session) bool {
	if current, ok := g.sessions.Get(session.ID()); !ok || current != session {
		return false
	}
	ev, expired, keepRunning := session.checkExpiry()
	if expired {
		g.opts.Metrics.SessionExpired()
	}
	if ev != nil {
		g.publish(context.Background(), *ev)
	}
	return keepRunning
}
