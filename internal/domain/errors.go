package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no active session exists for a user.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrStaleSession indicates an interaction with a superseded batch or question.
	ErrStaleSession = errors.New("stale quiz session")
	// ErrTimeExceeded indicates an answer arrived after the grace window.
	ErrTimeExceeded = errors.New("answer time exceeded")
	// ErrDailyLimitReached is returned when the daily question quota is used up.
	ErrDailyLimitReached = errors.New("daily question limit reached")
	// ErrNoQuestions indicates neither the requested nor the default pool had questions.
	ErrNoQuestions = errors.New("no questions available")
	// ErrBusy is returned when another submission for the same user is in flight.
	ErrBusy = errors.New("submission already in progress")
	// ErrUserNotFound indicates the persistence store has no record for the user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidOption indicates the selected option is outside the question's options.
	ErrInvalidOption = errors.New("option not found")
	// ErrInvalidSession indicates a persisted session failed validation.
	ErrInvalidSession = errors.New("invalid quiz session")
)
