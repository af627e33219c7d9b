package domain

import (
	"context"
	"time"

	"github.com/mudmantim/switchline-backend-sub000/internal/catalog"
)

// Repository captures persistence operations. Ledger totals are only moved through
// relative credits; no method accepts an absolute total.
type Repository interface {
	// FitnessTier returns the user's tier, creating the default profile on first access.
	FitnessTier(ctx context.Context, userID string) (catalog.Tier, error)
	SetFitnessTier(ctx context.Context, userID string, tier catalog.Tier) error

	// Ledger returns the user's totals, creating an empty ledger on first access.
	Ledger(ctx context.Context, userID string) (Ledger, error)
	// AdvanceStreak applies adv if the streak has not been advanced today and credits
	// its bonus in the same unit of work.
	AdvanceStreak(ctx context.Context, adv StreakAdvance) (Ledger, bool, error)

	// RecordCompletion appends a workout completion and credits its reward. It returns
	// ErrAlreadyCompletedToday when the exercise was already completed that day.
	RecordCompletion(ctx context.Context, completion Completion) error
	// CompletedExerciseIDs lists the exercises completed on the given local day from
	// either the workout or a pop-up.
	CompletedExerciseIDs(ctx context.Context, userID string, day time.Time) ([]string, error)

	AnsweredQuestionIDs(ctx context.Context, userID string) ([]string, error)
	// SaveTriviaAnswer upserts the answer (last write wins) and credits its gems.
	SaveTriviaAnswer(ctx context.Context, answer TriviaAnswer) error

	ListPopupsSince(ctx context.Context, userID string, since time.Time) ([]Popup, error)
	// InsertPopups stores a batch for one user atomically. It fails with
	// ErrScheduleConflict when the user would end up with more than PopupsPerDay
	// pop-ups scheduled at or after since.
	InsertPopups(ctx context.Context, userID string, since time.Time, popups []Popup) error
	// OpenNextDue opens the earliest unopened pop-up scheduled at or before now.
	// Concurrent callers never open the same pop-up. It returns nil when none is due.
	OpenNextDue(ctx context.Context, userID string, now time.Time) (*Popup, error)
	GetPopup(ctx context.Context, popupID string) (*Popup, error)
	// CompletePopup persists a completion; ErrPopupAlreadyCompleted when the pop-up is
	// no longer in the opened state.
	CompletePopup(ctx context.Context, completion PopupCompletion) error
	ListPopups(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Popup, *Cursor, error)
}
