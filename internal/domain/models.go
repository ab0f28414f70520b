package domain

import "time"

// QuestionsPerGame is the fixed length of every session's question list.
const QuestionsPerGame = 10

const (
	DefaultMaxPlayers = 4
	DefaultTimeBudget = 10 * time.Minute
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusWaiting        Status = "WAITING"
	StatusInProgress     Status = "IN_PROGRESS"
	StatusQuestionActive Status = "QUESTION_ACTIVE"
	StatusQuestionEnded  Status = "QUESTION_ENDED"
	StatusFinished       Status = "FINISHED"
)

// ConsumesBudget reports whether the session clock is running in this status.
func (s Status) ConsumesBudget() bool {
	switch s {
	case StatusInProgress, StatusQuestionActive, StatusQuestionEnded:
		return true
	default:
		return false
	}
}

// EventType tags a StateUpdateEvent.
type EventType string

const (
	EventPlayerJoined    EventType = "PLAYER_JOINED"
	EventGameStarted     EventType = "GAME_STARTED"
	EventQuestionStarted EventType = "QUESTION_STARTED"
	EventAnswerSubmitted EventType = "ANSWER_SUBMITTED"
	EventQuestionEnded   EventType = "QUESTION_ENDED"
	EventGameEnded       EventType = "GAME_ENDED"
	EventTimeUpdate      EventType = "TIME_UPDATE"
)

// Question is an immutable multiple-choice item.
type Question struct {
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// Validate checks option count and the correct index.
func (q Question) Validate() error {
	if q.Prompt == "" {
		return ErrInvalidQuestion.Withf("question text is empty")
	}
	if len(q.Options) < 2 {
		return ErrInvalidQuestion.Withf("question %q needs at least 2 options", q.Prompt)
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
		return ErrInvalidQuestion.Withf("question %q has correct answer %d out of range", q.Prompt, q.CorrectAnswer)
	}
	return nil
}

// View strips the correct answer.
func (q Question) View() QuestionView {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return QuestionView{Prompt: q.Prompt, Options: options}
}

// QuestionView is the shape of a question sent to players.
type QuestionView struct {
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
}

// QuestionSet is a named catalog entry of questions.
type QuestionSet struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Answer is a scored submission.
type Answer struct {
	QuestionIndex  int   `json:"questionIndex"`
	SelectedOption int   `json:"selectedOption"`
	Correct        bool  `json:"isCorrect"`
	TimeTakenMs    int64 `json:"timeTaken"`
	Points         int   `json:"points"`
}

// Participant is a player's mutable record inside a session. Owned by the session lock.
type Participant struct {
	ID                string
	Name              string
	Score             int
	AnsweredQuestions int
	CorrectAnswers    int
	TotalTimeMs       int64
	JoinedAt          time.Time
	Answers           map[int]Answer
}

// Public returns the broadcast-safe projection of p.
func (p *Participant) Public() ParticipantScore {
	return ParticipantScore{
		ID:                p.ID,
		Name:              p.Name,
		Score:             p.Score,
		CorrectAnswers:    p.CorrectAnswers,
		AnsweredQuestions: p.AnsweredQuestions,
		TotalTimeMs:       p.TotalTimeMs,
	}
}

// ParticipantScore is the broadcast-safe view of a participant.
type ParticipantScore struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Score             int    `json:"score"`
	CorrectAnswers    int    `json:"correctAnswers"`
	AnsweredQuestions int    `json:"answeredQuestions"`
	TotalTimeMs       int64  `json:"totalTime"`
}

// Event is a state update fanned out to every subscriber of a session.
type Event struct {
	Type                 EventType          `json:"type"`
	GameID               string             `json:"gameId"`
	Seq                  uint64             `json:"seq"`
	Status               Status             `json:"status"`
	CurrentQuestionIndex *int               `json:"currentQuestionIndex,omitempty"`
	Question             *QuestionView      `json:"question,omitempty"`
	Players              []ParticipantScore `json:"players,omitempty"`
	Message              string             `json:"message,omitempty"`
	RemainingTimeMs      *int64             `json:"remainingTime,omitempty"`
	Timestamp            time.Time          `json:"timestamp"`
}

// SessionSnapshot is a point-in-time public view of a session.
type SessionSnapshot struct {
	GameID               string             `json:"gameId"`
	HostID               string             `json:"hostId"`
	Status               Status             `json:"status"`
	CurrentQuestionIndex int                `json:"currentQuestionIndex"`
	TotalQuestions       int                `json:"totalQuestions"`
	MaxPlayers           int                `json:"maxPlayers"`
	CreatedAt            time.Time          `json:"createdAt"`
	StartedAt            *time.Time         `json:"startedAt,omitempty"`
	FinishedAt           *time.Time         `json:"finishedAt,omitempty"`
	RemainingTimeMs      int64              `json:"remainingTime"`
	Players              []ParticipantScore `json:"players"`
}

// PlayerRank is one row of the final standings.
type PlayerRank struct {
	Rank          int              `json:"rank"`
	Player        ParticipantScore `json:"player"`
	Accuracy      float64          `json:"accuracy"`
	AverageTimeMs float64          `json:"averageTime"`
}

// GameStats summarizes a finished session.
type GameStats struct {
	TotalPlayers    int       `json:"totalPlayers"`
	GameCompletedAt time.Time `json:"gameCompletedAt"`
	GameDurationMs  int64     `json:"gameDuration"`
}

// Results are the final standings of a finished session.
type Results struct {
	GameID         string       `json:"gameId"`
	Rankings       []PlayerRank `json:"rankings"`
	TotalQuestions int          `json:"totalQuestions"`
	Stats          GameStats    `json:"gameStats"`
}
