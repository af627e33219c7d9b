// Package memory provides an in-process repository for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mudmantim/switchline-backend-sub000/internal/catalog"
	"github.com/mudmantim/switchline-backend-sub000/internal/domain"
)

type completionKey struct {
	userID     string
	exerciseID string
	day        string
}

type answerKey struct {
	userID     string
	questionID string
}

// Repository stores engagement state in memory. Every method holds the lock for its
// whole duration, so conditional updates are atomic.
type Repository struct {
	mu          sync.Mutex
	tiers       map[string]catalog.Tier
	ledgers     map[string]domain.Ledger
	completions []domain.Completion
	workoutDays map[completionKey]struct{}
	answers     map[answerKey]domain.TriviaAnswer
	popups      map[string]domain.Popup
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		tiers:       make(map[string]catalog.Tier),
		ledgers:     make(map[string]domain.Ledger),
		workoutDays: make(map[completionKey]struct{}),
		answers:     make(map[answerKey]domain.TriviaAnswer),
		popups:      make(map[string]domain.Popup),
	}
}

// FitnessTier implements domain.Repository.
func (r *Repository) FitnessTier(ctx context.Context, userID string) (catalog.Tier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tier, ok := r.tiers[userID]
	if !ok {
		tier = catalog.DefaultTier
		r.tiers[userID] = tier
	}
	return tier, nil
}

// SetFitnessTier implements domain.Repository.
func (r *Repository) SetFitnessTier(ctx context.Context, userID string, tier catalog.Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tiers[userID] = tier
	return nil
}

// Ledger implements domain.Repository.
func (r *Repository) Ledger(ctx context.Context, userID string) (domain.Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ledgerLocked(userID), nil
}

func (r *Repository) ledgerLocked(userID string) domain.Ledger {
	l, ok := r.ledgers[userID]
	if !ok {
		l = domain.Ledger{UserID: userID}
		r.ledgers[userID] = l
	}
	return l
}

func (r *Repository) creditLocked(userID string, reward domain.Reward) {
	r.ledgers[userID] = r.ledgerLocked(userID).Credit(reward)
}

// AdvanceStreak implements domain.Repository.
func (r *Repository) AdvanceStreak(ctx context.Context, adv domain.StreakAdvance) (domain.Ledger, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, advanced := adv.Apply(r.ledgerLocked(adv.UserID))
	if advanced {
		r.ledgers[adv.UserID] = next
	}
	return next, advanced, nil
}

// RecordCompletion implements domain.Repository.
func (r *Repository) RecordCompletion(ctx context.Context, c domain.Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.appendCompletionLocked(c) {
		return domain.ErrAlreadyCompletedToday
	}
	r.creditLocked(c.UserID, c.Reward())
	return nil
}

// appendCompletionLocked stores c unless the user already completed the exercise that day.
func (r *Repository) appendCompletionLocked(c domain.Completion) bool {
	key := completionKey{userID: c.UserID, exerciseID: c.ExerciseID, day: c.CompletedOn.Format(time.DateOnly)}
	if _, exists := r.workoutDays[key]; exists {
		return false
	}
	r.workoutDays[key] = struct{}{}
	r.completions = append(r.completions, c)
	return true
}

// CompletedExerciseIDs implements domain.Repository.
func (r *Repository) CompletedExerciseIDs(ctx context.Context, userID string, day time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := day.Format(time.DateOnly)
	ids := make([]string, 0)
	for _, c := range r.completions {
		if c.UserID == userID && c.CompletedOn.Format(time.DateOnly) == want {
			ids = append(ids, c.ExerciseID)
		}
	}
	return ids, nil
}

// Completions returns a copy of every recorded completion for the user.
func (r *Repository) Completions(userID string) []domain.Completion {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Completion, 0)
	for _, c := range r.completions {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// AnsweredQuestionIDs implements domain.Repository.
func (r *Repository) AnsweredQuestionIDs(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0)
	for key := range r.answers {
		if key.userID == userID {
			ids = append(ids, key.questionID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// TriviaAnswer returns the stored answer for a pair, if any.
func (r *Repository) TriviaAnswer(userID, questionID string) (domain.TriviaAnswer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.answers[answerKey{userID: userID, questionID: questionID}]
	return a, ok
}

// SaveTriviaAnswer implements domain.Repository.
func (r *Repository) SaveTriviaAnswer(ctx context.Context, a domain.TriviaAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.answers[answerKey{userID: a.UserID, questionID: a.QuestionID}] = a
	r.creditLocked(a.UserID, domain.Reward{Gems: a.Gems})
	return nil
}

// ListPopupsSince implements domain.Repository.
func (r *Repository) ListPopupsSince(ctx context.Context, userID string, since time.Time) ([]domain.Popup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Popup, 0, domain.PopupsPerDay)
	for _, p := range r.popups {
		if p.UserID == userID && !p.ScheduledAt.Before(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

// InsertPopups implements domain.Repository.
func (r *Repository) InsertPopups(ctx context.Context, userID string, since time.Time, popups []domain.Popup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := 0
	for _, p := range r.popups {
		if p.UserID == userID && !p.ScheduledAt.Before(since) {
			existing++
		}
	}
	if existing+len(popups) > domain.PopupsPerDay {
		return domain.ErrScheduleConflict
	}
	for _, p := range popups {
		r.popups[p.ID] = p
	}
	return nil
}

// OpenNextDue implements domain.Repository.
func (r *Repository) OpenNextDue(ctx context.Context, userID string, now time.Time) (*domain.Popup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next *domain.Popup
	for _, p := range r.popups {
		if p.UserID != userID || p.State != domain.PopupStateScheduled || p.ScheduledAt.After(now) {
			continue
		}
		if next == nil || p.ScheduledAt.Before(next.ScheduledAt) {
			candidate := p
			next = &candidate
		}
	}
	if next == nil {
		return nil, nil
	}

	opened, err := next.Open(now)
	if err != nil {
		return nil, err
	}
	r.popups[opened.ID] = opened
	return &opened, nil
}

// GetPopup implements domain.Repository.
func (r *Repository) GetPopup(ctx context.Context, popupID string) (*domain.Popup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.popups[popupID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// CompletePopup implements domain.Repository.
func (r *Repository) CompletePopup(ctx context.Context, c domain.PopupCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.popups[c.Popup.ID]
	if !ok {
		return domain.ErrPopupNotFound
	}
	if current.State != domain.PopupStateOpened {
		return domain.ErrPopupAlreadyCompleted
	}

	r.popups[c.Popup.ID] = c.Popup
	if c.TriviaAnswer != nil {
		key := answerKey{userID: c.TriviaAnswer.UserID, questionID: c.TriviaAnswer.QuestionID}
		if _, exists := r.answers[key]; !exists {
			r.answers[key] = *c.TriviaAnswer
		}
	}
	if c.Completion != nil {
		r.appendCompletionLocked(*c.Completion)
	}
	r.creditLocked(c.Popup.UserID, c.Credit)
	return nil
}

// ListPopups implements domain.Repository.
func (r *Repository) ListPopups(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Popup, *domain.Cursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]domain.Popup, 0)
	for _, p := range r.popups {
		if p.UserID == userID {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ScheduledAt.Equal(all[j].ScheduledAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].ScheduledAt.After(all[j].ScheduledAt)
	})

	results := make([]domain.Popup, 0, limit)
	for _, p := range all {
		if cursor != nil && !before(p, *cursor) {
			continue
		}
		results = append(results, p)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{ScheduledAt: last.ScheduledAt, ID: last.ID}
	}
	return results, next, nil
}

// before reports whether p sorts strictly after the cursor position in newest-first order.
func before(p domain.Popup, c domain.Cursor) bool {
	if p.ScheduledAt.Equal(c.ScheduledAt) {
		return p.ID < c.ID
	}
	return p.ScheduledAt.Before(c.ScheduledAt)
}
