package app

import (
	"fmt"
	"sync"
	"time"

	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/scoring"
)

const (
	msgTimeUp    = "Time's up! Game ended."
	msgCompleted = "All questions completed!"
)

type sessionParams struct {
	id         string
	hostID     string
	password   string
	questions  []domain.Question
	maxPlayers int
	timeBudget time.Duration
	now        func() time.Time
	scorer     *scoring.Engine
	// arm starts the expiry watchdog; called with the session lock held.
	arm func(*Session) *Watchdog
}

// Session is one live game. Every mutation and snapshot goes through mu.
type Session struct {
	id         string
	hostID     string
	password   string
	questions  []domain.Question
	maxPlayers int
	timeBudget time.Duration
	now        func() time.Time
	scorer     *scoring.Engine
	arm        func(*Session) *Watchdog

	mu                sync.Mutex
	status            domain.Status
	currentIndex      int
	participants      map[string]*domain.Participant
	createdAt         time.Time
	startedAt         time.Time
	questionStartedAt time.Time
	finishedAt        time.Time
	seq               uint64
	watchdog          *Watchdog
}

func newSession(p sessionParams) *Session {
	questions := make([]domain.Question, len(p.questions))
	copy(questions, p.questions)
	return &Session{
		id:           p.id,
		hostID:       p.hostID,
		password:     p.password,
		questions:    questions,
		maxPlayers:   p.maxPlayers,
		timeBudget:   p.timeBudget,
		now:          p.now,
		scorer:       p.scorer,
		arm:          p.arm,
		status:       domain.StatusWaiting,
		currentIndex: -1,
		participants: make(map[string]*domain.Participant),
		createdAt:    p.now(),
	}
}

// ID returns the session key.
func (s *Session) ID() string {
	return s.id
}

// HostID returns the id of the player allowed to drive the session.
func (s *Session) HostID() string {
	return s.hostID
}

// Snapshot returns a consistent public view of the session.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.SessionSnapshot{
		GameID:               s.id,
		HostID:               s.hostID,
		Status:               s.status,
		CurrentQuestionIndex: s.currentIndex,
		TotalQuestions:       len(s.questions),
		MaxPlayers:           s.maxPlayers,
		CreatedAt:            s.createdAt,
		RemainingTimeMs:      s.remainingLocked(s.now()).Milliseconds(),
		Players:              s.rankedLocked(),
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		snap.StartedAt = &started
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		snap.FinishedAt = &finished
	}
	return snap
}

func (s *Session) join(playerID, name, password string) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.password != password {
		return domain.Event{}, domain.ErrWrongPassword
	}
	if s.status != domain.StatusWaiting {
		return domain.Event{}, domain.ErrAlreadyStarted
	}
	if _, ok := s.participants[playerID]; ok {
		return domain.Event{}, domain.ErrDuplicatePlayer.Withf("player %s already in game", playerID)
	}
	if len(s.participants) >= s.maxPlayers {
		return domain.Event{}, domain.ErrSessionFull
	}

	now := s.now()
	s.participants[playerID] = &domain.Participant{
		ID:       playerID,
		Name:     name,
		JoinedAt: now,
		Answers:  make(map[int]domain.Answer),
	}

	ev := s.eventLocked(domain.EventPlayerJoined, now)
	ev.Message = fmt.Sprintf("%s joined the game", name)
	return ev, nil
}

func (s *Session) start(hostID string) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hostID != s.hostID {
		return domain.Event{}, domain.ErrUnauthorized
	}
	if s.status != domain.StatusWaiting {
		return domain.Event{}, domain.ErrAlreadyStarted
	}
	if len(s.participants) == 0 {
		return domain.Event{}, domain.ErrNoParticipants
	}

	now := s.now()
	s.status = domain.StatusInProgress
	s.startedAt = now
	if s.arm != nil {
		s.watchdog = s.arm(s)
	}

	ev := s.eventLocked(domain.EventGameStarted, now)
	ev.RemainingTimeMs = msPtr(s.timeBudget)
	ev.Message = fmt.Sprintf("Game started! You have %s to complete all questions.", budgetText(s.timeBudget))
	return ev, nil
}

func (s *Session) startQuestion(hostID string) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hostID != s.hostID {
		return domain.Event{}, domain.ErrUnauthorized
	}
	now := s.now()
	if s.timeUpLocked(now) {
		return s.endGameLocked(msgTimeUp, now), nil
	}
	if s.status != domain.StatusInProgress && s.status != domain.StatusQuestionEnded {
		return domain.Event{}, domain.ErrInvalidState.Withf("cannot start a question while %s", s.status)
	}

	s.currentIndex++
	if s.currentIndex >= len(s.questions) {
		s.currentIndex = len(s.questions)
		return s.endGameLocked(msgCompleted, now), nil
	}

	s.status = domain.StatusQuestionActive
	s.questionStartedAt = now

	view := s.questions[s.currentIndex].View()
	ev := s.eventLocked(domain.EventQuestionStarted, now)
	ev.Question = &view
	ev.RemainingTimeMs = msPtr(s.remainingLocked(now))
	return ev, nil
}

func (s *Session) endQuestion(hostID string) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hostID != s.hostID {
		return domain.Event{}, domain.ErrUnauthorized
	}
	if s.status != domain.StatusQuestionActive {
		return domain.Event{}, domain.ErrInvalidState.Withf("cannot end a question while %s", s.status)
	}
	now := s.now()
	if s.timeUpLocked(now) {
		return s.endGameLocked(msgTimeUp, now), nil
	}

	s.status = domain.StatusQuestionEnded
	ev := s.eventLocked(domain.EventQuestionEnded, now)
	ev.RemainingTimeMs = msPtr(s.remainingLocked(now))
	return ev, nil
}

func (s *Session) submitAnswer(playerID string, questionIndex, option int, reportedMs int64) (domain.Answer, domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.timeUpLocked(now) {
		return domain.Answer{}, domain.Event{}, domain.ErrTimeExpired
	}
	if s.status != domain.StatusQuestionActive {
		return domain.Answer{}, domain.Event{}, domain.ErrNoActiveQuestion
	}
	if questionIndex != s.currentIndex {
		return domain.Answer{}, domain.Event{}, domain.ErrStaleQuestionIndex.Withf(
			"answer is for question %d, current question is %d", questionIndex, s.currentIndex)
	}
	participant, ok := s.participants[playerID]
	if !ok {
		return domain.Answer{}, domain.Event{}, domain.ErrPlayerNotFound
	}
	if _, answered := participant.Answers[questionIndex]; answered {
		return domain.Answer{}, domain.Event{}, domain.ErrDuplicateAnswer
	}
	if reportedMs < 0 {
		reportedMs = 0
	}

	outcome := s.scorer.Score(s.questions[questionIndex], option, now.Sub(s.questionStartedAt))
	answer := domain.Answer{
		QuestionIndex:  questionIndex,
		SelectedOption: option,
		Correct:        outcome.Correct,
		TimeTakenMs:    reportedMs,
		Points:         outcome.Points,
	}
	participant.Answers[questionIndex] = answer
	participant.AnsweredQuestions++
	participant.TotalTimeMs += reportedMs
	if outcome.Correct {
		participant.CorrectAnswers++
		participant.Score += outcome.Points
	}

	return answer, s.eventLocked(domain.EventAnswerSubmitted, now), nil
}

// checkExpiry is the watchdog entry point. It returns the event to publish, whether the
// budget ran out on this call, and whether the watchdog should keep running.
func (s *Session) checkExpiry() (ev *domain.Event, expired, keepRunning bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.ConsumesBudget() {
		return nil, false, false
	}
	now := s.now()
	remaining := s.remainingLocked(now)
	if remaining <= 0 {
		ended := s.endGameLocked(msgTimeUp, now)
		return &ended, true, false
	}

	update := s.eventLocked(domain.EventTimeUpdate, now)
	update.RemainingTimeMs = msPtr(remaining)
	return &update, false, true
}

func (s *Session) results() (domain.Results, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusFinished {
		return domain.Results{}, domain.ErrNotFinished
	}
	return buildResults(s.id, s.participantsLocked(), len(s.questions), s.startedAt, s.finishedAt), nil
}

// shutdown disarms the watchdog without changing game state.
func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchdog.Stop()
}

func (s *Session) finishedBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == domain.StatusFinished && s.finishedAt.Before(cutoff)
}

func (s *Session) endGameLocked(message string, now time.Time) domain.Event {
	s.status = domain.StatusFinished
	s.finishedAt = now
	s.watchdog.Stop()

	ev := s.eventLocked(domain.EventGameEnded, now)
	ev.Message = message
	ev.RemainingTimeMs = msPtr(s.remainingLocked(now))
	return ev
}

func (s *Session) eventLocked(typ domain.EventType, now time.Time) domain.Event {
	s.seq++
	ev := domain.Event{
		Type:      typ,
		GameID:    s.id,
		Seq:       s.seq,
		Status:    s.status,
		Players:   s.rankedLocked(),
		Timestamp: now,
	}
	if s.currentIndex >= 0 && s.currentIndex < len(s.questions) {
		idx := s.currentIndex
		ev.CurrentQuestionIndex = &idx
	}
	return ev
}

func (s *Session) timeUpLocked(now time.Time) bool {
	return s.status.ConsumesBudget() && s.remainingLocked(now) <= 0
}

func (s *Session) remainingLocked(now time.Time) time.Duration {
	if s.startedAt.IsZero() {
		return s.timeBudget
	}
	end := now
	if !s.finishedAt.IsZero() {
		end = s.finishedAt
	}
	remaining := s.timeBudget - end.Sub(s.startedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *Session) participantsLocked() []*domain.Participant {
	out := make([]*domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	return out
}

func (s *Session) rankedLocked() []domain.ParticipantScore {
	ranked := rankParticipants(s.participantsLocked())
	scores := make([]domain.ParticipantScore, len(ranked))
	for i, p := range ranked {
		scores[i] = p.Public()
	}
	return scores
}

func msPtr(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

func budgetText(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
