package domain

import "errors"

var (
	// ErrValidation marks malformed or missing input. Callers wrap it with detail.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTier is returned for an unknown fitness level.
	ErrInvalidTier = errors.New("invalid fitness level")
	// ErrAnswerRequired is returned when a trivia pop-up is completed without an answer.
	ErrAnswerRequired = errors.New("answer is required for trivia challenges")

	// ErrExerciseNotFound is returned when an exercise id is not in the catalog.
	ErrExerciseNotFound = errors.New("exercise not found")
	// ErrQuestionNotFound is returned when no trivia question matches.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrPopupNotFound is returned for unknown pop-ups and pop-ups owned by another user.
	ErrPopupNotFound = errors.New("popup not found")

	// ErrAlreadyCompletedToday rejects a second completion of the same exercise on one day.
	ErrAlreadyCompletedToday = errors.New("exercise already completed today")
	// ErrPopupAlreadyCompleted rejects completing a pop-up twice.
	ErrPopupAlreadyCompleted = errors.New("popup already completed")
	// ErrScheduleConflict reports that another request scheduled the day first.
	ErrScheduleConflict = errors.New("popups already scheduled")
	// ErrPopupNotOpened rejects completing a pop-up that was never served as active.
	ErrPopupNotOpened = errors.New("popup has not been opened")
)

// IsValidation reports whether err is a caller input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidTier) || errors.Is(err, ErrAnswerRequired)
}

// IsNotFound reports whether err refers to a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrExerciseNotFound) || errors.Is(err, ErrQuestionNotFound) || errors.Is(err, ErrPopupNotFound)
}

// IsConflict reports whether err is an already-done rejection.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyCompletedToday) || errors.Is(err, ErrPopupAlreadyCompleted) ||
		errors.Is(err, ErrPopupNotOpened) || errors.Is(err, ErrScheduleConflict)
}
