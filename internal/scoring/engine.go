package scoring

import (
	"time"

	"trivia-live-service/internal/domain"
)

// Config holds the scoring constants.
type Config struct {
	BaseScore     int           // default: 100
	MaxSpeedBonus int           // default: 50
	BonusStep     time.Duration // one bonus point lost per step, default 1s
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseScore:     100,
		MaxSpeedBonus: 50,
		BonusStep:     time.Second,
	}
}

// Outcome is the result of scoring a single selection.
type Outcome struct {
	Correct bool
	Points  int
}

// Engine computes server-side scores. It holds no state and is safe for concurrent use.
type Engine struct {
	config Config
}

// NewEngine creates a scoring engine with the provided config.
func NewEngine(config Config) *Engine {
	if config.BonusStep <= 0 {
		config.BonusStep = time.Second
	}
	return &Engine{config: config}
}

// Score grades option against q.
// Formula: base + max(0, maxBonus - floor(elapsed / step)) when correct, 0 otherwise.
// Out-of-range options are simply incorrect; negative elapsed counts as zero.
func (e *Engine) Score(q domain.Question, option int, elapsed time.Duration) Outcome {
	if option != q.CorrectAnswer {
		return Outcome{}
	}
	return Outcome{Correct: true, Points: e.config.BaseScore + e.SpeedBonus(elapsed)}
}

// SpeedBonus returns the time bonus for a correct answer given after elapsed.
func (e *Engine) SpeedBonus(elapsed time.Duration) int {
	if elapsed < 0 {
		elapsed = 0
	}
	steps := int64(elapsed / e.config.BonusStep)
	bonus := int64(e.config.MaxSpeedBonus) - steps
	if bonus < 0 {
		return 0
	}
	return int(bonus)
}
