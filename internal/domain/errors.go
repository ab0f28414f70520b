package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures so transports can map them without string matching.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindStateConflict Kind = "state_conflict"
	KindTimeExpired   Kind = "time_expired"
	KindInternal      Kind = "internal"
)

// Error is a typed domain failure. Sentinel values below are compared with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Code so wrapped copies created with Withf still compare equal.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Withf returns a copy of e carrying a more specific message.
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	// ErrSessionNotFound is returned when no session exists under a key.
	ErrSessionNotFound = newError(KindNotFound, "GAME_NOT_FOUND", "game not found")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = newError(KindNotFound, "PLAYER_NOT_FOUND", "player not found in game")
	// ErrQuestionSetNotFound indicates the question catalog has no such set.
	ErrQuestionSetNotFound = newError(KindNotFound, "QUESTION_SET_NOT_FOUND", "question set not found")

	ErrDuplicateKey         = newError(KindValidation, "DUPLICATE_GAME", "game already exists")
	ErrInvalidQuestionCount = newError(KindValidation, "INVALID_QUESTION_COUNT", "game requires exactly 10 questions")
	ErrInvalidQuestion      = newError(KindValidation, "INVALID_QUESTION", "invalid question")
	ErrInvalidRequest       = newError(KindValidation, "INVALID_REQUEST", "invalid request")
	ErrWrongPassword        = newError(KindValidation, "WRONG_PASSWORD", "incorrect password")
	ErrSessionFull          = newError(KindValidation, "GAME_FULL", "game is full")
	ErrDuplicatePlayer      = newError(KindValidation, "DUPLICATE_PLAYER", "player already in game")

	ErrUnauthorized = newError(KindAuthorization, "UNAUTHORIZED", "only the host can perform this action")

	ErrAlreadyStarted     = newError(KindStateConflict, "ALREADY_STARTED", "game has already started")
	ErrNoParticipants     = newError(KindStateConflict, "NO_PARTICIPANTS", "game needs at least one player")
	ErrInvalidState       = newError(KindStateConflict, "INVALID_STATE", "action not allowed in current game state")
	ErrNoActiveQuestion   = newError(KindStateConflict, "NO_ACTIVE_QUESTION", "no active question")
	ErrStaleQuestionIndex = newError(KindStateConflict, "STALE_QUESTION", "answer is for a different question")
	ErrDuplicateAnswer    = newError(KindStateConflict, "DUPLICATE_ANSWER", "question already answered")
	ErrNotFinished        = newError(KindStateConflict, "NOT_FINISHED", "game is not finished")

	ErrTimeExpired = newError(KindTimeExpired, "TIME_EXPIRED", "game time has expired")
)

// KindOf extracts the Kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf extracts the stable error code of err.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL"
}
