package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/broadcast"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
	"trivia-live-service/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventRecorder struct {
	mu     sync.Mutex
	raw    [][]byte
	events []domain.Event
}

func (r *eventRecorder) Send(_ context.Context, payload []byte) error {
	var ev domain.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raw = append(r.raw, payload)
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) ofType(typ domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	service *app.GameService
	store   *memory.SessionStore
	clock   *fakeClock
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, opts app.Options) *fixture {
	t.Helper()
	clock := newFakeClock()
	m := metrics.New(prometheus.NewRegistry())
	store := memory.NewSessionStore()
	opts.Clock = clock.Now
	opts.Metrics = m
	opts.Logger = zerolog.Nop()
	hub := broadcast.NewHub(zerolog.Nop(), m, time.Second)
	repo := memory.NewQuestionSetRepository(memory.NewStaticQuestionSetLoader(memory.SampleQuestionSets()), time.Minute)
	service := app.NewGameService(store, repo, hub, opts)
	t.Cleanup(func() {
		for _, s := range store.List() {
			service.DeleteSession(s.ID())
		}
	})
	return &fixture{service: service, store: store, clock: clock, metrics: m}
}

func (f *fixture) create(t *testing.T, gameID string, maxPlayers int) *app.Session {
	t.Helper()
	session, err := f.service.CreateSession(context.Background(), app.CreateSessionInput{
		GameID:     gameID,
		HostID:     "host",
		Password:   "secret",
		Questions:  memory.SampleQuestionSet().Questions,
		MaxPlayers: maxPlayers,
	})
	require.NoError(t, err)
	return session
}

func (f *fixture) join(t *testing.T, gameID string, players ...string) {
	t.Helper()
	for _, p := range players {
		_, err := f.service.JoinSession(context.Background(), gameID, p, "Player "+p, "secret")
		require.NoError(t, err)
	}
}

func (f *fixture) subscribe(t *testing.T, gameID, playerID string) *eventRecorder {
	t.Helper()
	rec := &eventRecorder{}
	cancel, err := f.service.Subscribe(gameID, playerID, rec)
	require.NoError(t, err)
	t.Cleanup(cancel)
	return rec
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t, app.Options{})
	ctx := context.Background()
	questions := memory.SampleQuestionSet().Questions

	_, err := f.service.CreateSession(ctx, app.CreateSessionInput{GameID: "g", HostID: "host", Questions: questions[:9]})
	assert.ErrorIs(t, err, domain.ErrInvalidQuestionCount)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = f.service.CreateSession(ctx, app.CreateSessionInput{GameID: "g", Questions: questions})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	broken := append([]domain.Question(nil), questions...)
	broken[3] = domain.Question{Prompt: "?", Options: []string{"a", "b"}, CorrectAnswer: 5}
	_, err = f.service.CreateSession(ctx, app.CreateSessionInput{GameID: "g", HostID: "host", Questions: broken})
	assert.ErrorIs(t, err, domain.ErrInvalidQuestion)

	f.create(t, "g", 0)
	_, err = f.service.CreateSession(ctx, app.CreateSessionInput{GameID: "g", HostID: "host", Questions: questions})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	snap, err := f.service.Snapshot("g")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, snap.Status)
	assert.Equal(t, -1, snap.CurrentQuestionIndex)
	assert.Equal(t, domain.DefaultMaxPlayers, snap.MaxPlayers)
	assert.Equal(t, domain.DefaultTimeBudget.Milliseconds(), snap.RemainingTimeMs)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SessionsCreated))
}

func TestCreateSessionFromQuestionSet(t *testing.T) {
	f := newFixture(t, app.Options{})

	session, err := f.service.CreateSession(context.Background(), app.CreateSessionInput{
		HostID:        "host",
		QuestionSetID: memory.SampleSetID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID())
	assert.Equal(t, domain.QuestionsPerGame, session.Snapshot().TotalQuestions)

	_, err = f.service.CreateSession(context.Background(), app.CreateSessionInput{HostID: "host", QuestionSetID: "nope"})
	assert.ErrorIs(t, err, domain.ErrQuestionSetNotFound)
}

func TestJoinRules(t *testing.T) {
	f := newFixture(t, app.Options{})
	ctx := context.Background()
	f.create(t, "g", 2)
	rec := f.subscribe(t, "g", "host")

	_, err := f.service.JoinSession(ctx, "missing", "p1", "Ann", "secret")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.service.JoinSession(ctx, "g", "p1", "Ann", "wrong")
	assert.ErrorIs(t, err, domain.ErrWrongPassword)

	f.join(t, "g", "p1")
	_, err = f.service.JoinSession(ctx, "g", "p1", "Ann again", "secret")
	assert.ErrorIs(t, err, domain.ErrDuplicatePlayer)

	f.join(t, "g", "p2")
	_, err = f.service.JoinSession(ctx, "g", "p3", "Cid", "secret")
	assert.ErrorIs(t, err, domain.ErrSessionFull)

	_, err = f.service.StartSession(ctx, "g", "host")
	require.NoError(t, err)
	_, err = f.service.JoinSession(ctx, "g", "p3", "Cid", "secret")
	assert.ErrorIs(t, err, domain.ErrAlreadyStarted)

	joined := rec.ofType(domain.EventPlayerJoined)
	require.Len(t, joined, 2)
	assert.Equal(t, "Player p1 joined the game", joined[0].Message)
	assert.Len(t, joined[1].Players, 2)
}

func TestStartSession(t *testing.T) {
	f := newFixture(t, app.Options{TimeBudget: 10 * time.Minute, WatchdogInterval: time.Hour})
	ctx := context.Background()
	f.create(t, "g", 0)
	rec := f.subscribe(t, "g", "host")

	_, err := f.service.StartSession(ctx, "g", "host")
	assert.ErrorIs(t, err, domain.ErrNoParticipants)

	f.join(t, "g", "p1")
	_, err = f.service.StartSession(ctx, "g", "p1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))

	ev, err := f.service.StartSession(ctx, "g", "host")
	require.NoError(t, err)
	assert.Equal(t, domain.EventGameStarted, ev.Type)
	assert.Equal(t, domain.StatusInProgress, ev.Status)
	assert.Equal(t, "Game started! You have 10 minutes to complete all questions.", ev.Message)
	require.NotNil(t, ev.RemainingTimeMs)
	assert.Equal(t, int64(600000), *ev.RemainingTimeMs)

	_, err = f.service.StartSession(ctx, "g", "host")
	assert.ErrorIs(t, err, domain.ErrAlreadyStarted)

	_, err = f.service.StartSession(ctx, "missing", "host")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.Len(t, rec.ofType(domain.EventGameStarted), 1)
}

func TestStartQuestionRequiresActiveGame(t *testing.T) {
	f := newFixture(t, app.Options{WatchdogInterval: time.Hour})
	ctx := context.Background()
	f.create(t, "g", 0)
	f.join(t, "g", "p1")

	_, err := f.service.StartQuestion(ctx, "g", "host")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.service.StartSession(ctx, "g", "host")
	require.NoError(t, err)
	_, err = f.service.StartQuestion(ctx, "g", "p1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.service.StartQuestion(ctx, "g", "host")
	require.NoError(t, err)
	_, err = f.service.StartQuestion(ctx, "g", "host")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.service.EndQuestion(ctx, "g", "p1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.service.EndQuestion(ctx, "g", "host")
	require.NoError(t, err)
	_, err = f.service.EndQuestion(ctx, "g", "host")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestQuestionStartedDoesNotLeakAnswer(t *testing.T) {
	f := newFixture(t, app.Options{WatchdogInterval: time.Hour})
	ctx := context.Background()
	f.create(t, "g", 0)
	f.join(t, "g", "p1")
	rec := f.subscribe(t, "g", "p1")

	_, err := f.service.StartSession(ctx, "g", "host")
	require.NoError(t, err)
	ev, err := f.service.StartQuestion(ctx, "g", "host")
	require.NoError(t, err)
	require.NotNil(t, ev.Question)
	assert.Equal(t, "What is the capital of France?", ev.Question.Prompt)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var found bool
	for i, e := range rec.events {
		if e.Type != domain.EventQuestionStarted {
			continue
		}
		found = true
		var wire struct {
			Question map[string]json.RawMessage `json:"question"`
		}
		require.NoError(t, json.Unmarshal(rec.raw[i], &wire))
		assert.Contains(t, wire.Question, "options")
		assert.NotContains(t, wire.Question, "correctAnswer")
		require.NotNil(t, e.CurrentQuestionIndex)
		assert.Equal(t, 0, *e.CurrentQuestionIndex)
	}
	assert.True(t, found)
}

func TestSubmitAnswerScoringAndRules(t *testing.T) {
	f := newFixture(t, app.Options{WatchdogInterval: time.Hour})
	ctx := context.Background()
	f.create(t, "g", 0)
	f.join(t, "g", "p1", "p2")
	rec := f.subscribe(t, "g", "p1")

	_, err := f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "g", PlayerID: "p1", QuestionIndex: 0, Option: 2})
	assert.ErrorIs(t, err, domain.ErrNoActiveQuestion)

	_, err = f.service.StartSession(ctx, "g", "host")
	require.NoError(t, err)
	_, err = f.service.StartQuestion(ctx, "g", "host")
	require.NoError(t, err)

	f.clock.Advance(2*time.Second + 400*time.Millisecond)
	answer, err := f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "g", PlayerID: "p1", QuestionIndex: 0, Option: 2, TimeTakenMs: 2400})
	require.NoError(t, err)
	assert.True(t, answer.Correct)
	assert.Equal(t, 148, answer.Points)

	_, err = f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "g", PlayerID: "p1", QuestionIndex: 0, Option: 0})
	assert.ErrorIs(t, err, domain.ErrDuplicateAnswer)

	wrong, err := f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "g", PlayerID: "p2", QuestionIndex: 0, Option: 0, TimeTakenMs: 1000})
	require.NoError(t, err)
	assert.False(t, wrong.Correct)
	assert.Zero(t, wrong.Points)

	_, err = f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "g", PlayerID: "p1", QuestionIndex: 1, Option: 1})
	assert.ErrorIs(t, err, domain.ErrStaleQuestionIndex)
	_, err = f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "g", PlayerID: "ghost", QuestionIndex: 0, Option: 1})
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
	_, err = f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "missing", PlayerID: "p1"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	snap, err := f.service.Snapshot("g")
	require.NoError(t, err)
	require.Len(t, snap.Players, 2)
	assert.Equal(t, domain.ParticipantScore{ID: "p1", Name: "Player p1", Score: 148, CorrectAnswers: 1, AnsweredQuestions: 1, TotalTimeMs: 2400}, snap.Players[0])
	assert.Equal(t, domain.ParticipantScore{ID: "p2", Name: "Player p2", Score: 0, CorrectAnswers: 0, AnsweredQuestions: 1, TotalTimeMs: 1000}, snap.Players[1])

	_, err = f.service.EndQuestion(ctx, "g", "host")
	require.NoError(t, err)
	_, err = f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "g", PlayerID: "p2", QuestionIndex: 0, Option: 2})
	assert.ErrorIs(t, err, domain.ErrNoActiveQuestion)

	assert.Len(t, rec.ofType(domain.EventAnswerSubmitted), 2)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AnswersSubmitted.WithLabelValues("true")))
}

func TestFullGameThenResults(t *testing.T) {
	f := newFixture(t, app.Options{WatchdogInterval: time.Hour})
	ctx := context.Background()
	f.create(t, "g", 0)
	f.join(t, "g", "p1", "p2", "p3")
	rec := f.subscribe(t, "g", "host")
	questions := memory.SampleQuestionSet().Questions

	_, err := f.service.StartSession(ctx, "g", "host")
	require.NoError(t, err)
	_, err = f.service.Results("g")
	assert.ErrorIs(t, err, domain.ErrNotFinished)

	lastIndex := -1
	for i := 0; i < domain.QuestionsPerGame; i++ {
		ev, err := f.service.StartQuestion(ctx, "g", "host")
		require.NoError(t, err)
		require.Equal(t, domain.EventQuestionStarted, ev.Type)
		require.Greater(t, *ev.CurrentQuestionIndex, lastIndex)
		lastIndex = *ev.CurrentQuestionIndex

		f.clock.Advance(time.Second)
		// p1 and p2 always answer correctly, p2 slower; p3 always wrong.
		_, err = f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "g", PlayerID: "p1", QuestionIndex: i, Option: questions[i].CorrectAnswer, TimeTakenMs: 1000})
		require.NoError(t, err)
		_, err = f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "g", PlayerID: "p2", QuestionIndex: i, Option: questions[i].CorrectAnswer, TimeTakenMs: 3000})
		require.NoError(t, err)
		_, err = f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "g", PlayerID: "p3", QuestionIndex: i, Option: (questions[i].CorrectAnswer + 1) % len(questions[i].Options), TimeTakenMs: 500})
		require.NoError(t, err)

		_, err = f.service.EndQuestion(ctx, "g", "host")
		require.NoError(t, err)
	}

	ev, err := f.service.StartQuestion(ctx, "g", "host")
	require.NoError(t, err)
	assert.Equal(t, domain.EventGameEnded, ev.Type)
	assert.Equal(t, domain.StatusFinished, ev.Status)
	assert.Equal(t, "All questions completed!", ev.Message)

	_, err = f.service.StartQuestion(ctx, "g", "host")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	results, err := f.service.Results("g")
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionsPerGame, results.TotalQuestions)
	require.Len(t, results.Rankings, 3)
	for i, r := range results.Rankings {
		assert.Equal(t, i+1, r.Rank)
	}
	// Same score for p1 and p2: the lower cumulative time wins.
	assert.Equal(t, "p1", results.Rankings[0].Player.ID)
	assert.Equal(t, "p2", results.Rankings[1].Player.ID)
	assert.Equal(t, "p3", results.Rankings[2].Player.ID)
	assert.Equal(t, 1490, results.Rankings[0].Player.Score)
	assert.Equal(t, float64(100), results.Rankings[0].Accuracy)
	assert.Equal(t, float64(1000), results.Rankings[0].AverageTimeMs)
	assert.Equal(t, float64(0), results.Rankings[2].Accuracy)
	assert.Equal(t, 3, results.Stats.TotalPlayers)
	assert.Equal(t, int64(10000), results.Stats.GameDurationMs)

	events := rec.ofType(domain.EventGameEnded)
	require.Len(t, events, 1)
}

func TestStartQuestionAfterBudgetEndsGame(t *testing.T) {
	f := newFixture(t, app.Options{TimeBudget: time.Minute, WatchdogInterval: time.Hour})
	ctx := context.Background()
	f.create(t, "g", 0)
	f.join(t, "g", "p1")

	_, err := f.service.StartSession(ctx, "g", "host")
	require.NoError(t, err)
	_, err = f.service.StartQuestion(ctx, "g", "host")
	require.NoError(t, err)

	f.clock.Advance(61 * time.Second)
	_, err = f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "g", PlayerID: "p1", QuestionIndex: 0, Option: 2})
	assert.ErrorIs(t, err, domain.ErrTimeExpired)
	assert.Equal(t, domain.KindTimeExpired, domain.KindOf(err))

	ev, err := f.service.EndQuestion(ctx, "g", "host")
	require.NoError(t, err)
	assert.Equal(t, domain.EventGameEnded, ev.Type)
	assert.Equal(t, "Time's up! Game ended.", ev.Message)
	require.NotNil(t, ev.RemainingTimeMs)
	assert.Zero(t, *ev.RemainingTimeMs)

	_, err = f.service.Results("g")
	assert.NoError(t, err)
}

func TestWatchdogExpiresSessionOnce(t *testing.T) {
	f := newFixture(t, app.Options{TimeBudget: time.Minute, WatchdogInterval: 10 * time.Millisecond})
	ctx := context.Background()
	f.create(t, "g", 0)
	f.join(t, "g", "p1")
	rec := f.subscribe(t, "g", "p1")

	_, err := f.service.StartSession(ctx, "g", "host")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.ofType(domain.EventTimeUpdate)) > 0
	}, 2*time.Second, 5*time.Millisecond)
	update := rec.ofType(domain.EventTimeUpdate)[0]
	require.NotNil(t, update.RemainingTimeMs)
	assert.Equal(t, int64(60000), *update.RemainingTimeMs)

	f.clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool {
		snap, err := f.service.Snapshot("g")
		return err == nil && snap.Status == domain.StatusFinished
	}, 2*time.Second, 5*time.Millisecond)

	// Give a stopped watchdog time to misbehave.
	time.Sleep(50 * time.Millisecond)
	ended := rec.ofType(domain.EventGameEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "Time's up! Game ended.", ended[0].Message)
	assert.Zero(t, *ended[0].RemainingTimeMs)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.WatchdogExpirations))

	updates := len(rec.ofType(domain.EventTimeUpdate))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, updates, len(rec.ofType(domain.EventTimeUpdate)))
}

func TestDeleteSessionIsIdempotent(t *testing.T) {
	f := newFixture(t, app.Options{WatchdogInterval: 10 * time.Millisecond})
	ctx := context.Background()
	f.create(t, "g", 0)
	f.join(t, "g", "p1")
	rec := f.subscribe(t, "g", "p1")
	_, err := f.service.StartSession(ctx, "g", "host")
	require.NoError(t, err)

	f.service.DeleteSession("g")
	f.service.DeleteSession("g")

	_, ok := f.service.GetSession("g")
	assert.False(t, ok)
	_, err = f.service.Subscribe("g", "p1", rec)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, float64(0), testutil.ToFloat64(f.metrics.SessionsActive))

	time.Sleep(30 * time.Millisecond)
	before := len(rec.ofType(domain.EventTimeUpdate))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, len(rec.ofType(domain.EventTimeUpdate)))
}

func TestReapFinished(t *testing.T) {
	f := newFixture(t, app.Options{Retention: 10 * time.Minute, WatchdogInterval: time.Hour})
	ctx := context.Background()
	f.create(t, "done", 0)
	f.create(t, "waiting", 0)
	f.join(t, "done", "p1")
	_, err := f.service.StartSession(ctx, "done", "host")
	require.NoError(t, err)
	for i := 0; i <= domain.QuestionsPerGame; i++ {
		_, err = f.service.StartQuestion(ctx, "done", "host")
		require.NoError(t, err)
		if i < domain.QuestionsPerGame {
			_, err = f.service.EndQuestion(ctx, "done", "host")
			require.NoError(t, err)
		}
	}

	assert.Zero(t, f.service.ReapFinished(f.clock.Now().Add(5*time.Minute)))
	assert.Equal(t, 1, f.service.ReapFinished(f.clock.Now().Add(11*time.Minute)))

	_, ok := f.service.GetSession("done")
	assert.False(t, ok)
	_, ok = f.service.GetSession("waiting")
	assert.True(t, ok)
}

func TestConcurrentSubmissionsAreSerialized(t *testing.T) {
	f := newFixture(t, app.Options{WatchdogInterval: time.Hour})
	ctx := context.Background()
	const players = 20
	f.create(t, "g", players)
	ids := make([]string, players)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%02d", i)
	}
	f.join(t, "g", ids...)
	_, err := f.service.StartSession(ctx, "g", "host")
	require.NoError(t, err)
	_, err = f.service.StartQuestion(ctx, "g", "host")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for _, id := range ids {
		for attempt := 0; attempt < 3; attempt++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := f.service.SubmitAnswer(ctx, app.SubmitAnswerInput{GameID: "g", PlayerID: id, QuestionIndex: 0, Option: 2, TimeTakenMs: 100})
				if err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}(id)
		}
	}
	wg.Wait()

	assert.Equal(t, players, accepted)
	snap, err := f.service.Snapshot("g")
	require.NoError(t, err)
	for _, p := range snap.Players {
		assert.Equal(t, 1, p.AnsweredQuestions)
		assert.Equal(t, 150, p.Score)
	}
}
