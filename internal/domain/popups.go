package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mudmantim/switchline-backend-sub000/internal/catalog"
	"github.com/mudmantim/switchline-backend-sub000/internal/observability"
)

const (
	// PopupsPerDay is the number of pop-ups scheduled for each user and day.
	PopupsPerDay = 3
	// exercisePopupsPerDay of the daily pop-ups are exercises; the rest are trivia.
	exercisePopupsPerDay = 2

	// MaxHistory caps a history page.
	MaxHistory = 30
)

// TimeWindow is an hour range [StartHour, EndHour) of the local day.
type TimeWindow struct {
	Name      string
	StartHour int
	EndHour   int
}

// Windows are the fixed pop-up slots; each day gets one pop-up per window.
var Windows = []TimeWindow{
	{Name: "morning", StartHour: 9, EndHour: 12},
	{Name: "afternoon", StartHour: 13, EndHour: 17},
	{Name: "evening", StartHour: 18, EndHour: 21},
}

// windowOf returns the index of the window containing t, or -1.
func windowOf(t time.Time) int {
	for i, w := range Windows {
		if t.Hour() >= w.StartHour && t.Hour() < w.EndHour {
			return i
		}
	}
	return -1
}

// ScheduleResult reports today's pop-ups after scheduling.
type ScheduleResult struct {
	AlreadyScheduled bool
	// Created counts pop-ups inserted by this call.
	Created int
	Popups  []Popup
}

// ScheduleToday creates today's pop-ups. It is idempotent: once a day has its three
// pop-ups further calls report AlreadyScheduled. A day holding fewer than three
// pop-ups is topped up in its empty windows.
func (s *Service) ScheduleToday(ctx context.Context, userID string) (ScheduleResult, error) {
	now, today := s.now()

	existing, err := s.repo.ListPopupsSince(ctx, userID, today)
	if err != nil {
		return ScheduleResult{}, err
	}
	if len(existing) >= PopupsPerDay {
		return ScheduleResult{AlreadyScheduled: true, Popups: existing}, nil
	}

	tier, err := s.repo.FitnessTier(ctx, userID)
	if err != nil {
		return ScheduleResult{}, err
	}

	occupied := make(map[int]bool, len(existing))
	exercises, trivia := 0, 0
	for _, p := range existing {
		occupied[windowOf(p.ScheduledAt.In(s.loc))] = true
		if p.Kind() == PopupKindTrivia {
			trivia++
		} else {
			exercises++
		}
	}

	kinds := make([]PopupKind, 0, PopupsPerDay)
	for i := exercises; i < exercisePopupsPerDay; i++ {
		kinds = append(kinds, PopupKindExercise)
	}
	for i := trivia; i < PopupsPerDay-exercisePopupsPerDay; i++ {
		kinds = append(kinds, PopupKindTrivia)
	}
	s.shuffle(kinds)

	free := make([]TimeWindow, 0, len(Windows))
	for i, w := range Windows {
		if !occupied[i] {
			free = append(free, w)
		}
	}

	var answered []string
	pool := catalog.Pool(tier)
	created := make([]Popup, 0, len(kinds))
	for i, kind := range kinds {
		if i >= len(free) {
			break
		}
		var challenge Challenge
		switch kind {
		case PopupKindExercise:
			challenge = SnapshotExercise(pool[s.sampler.IntN(len(pool))])
		case PopupKindTrivia:
			if answered == nil {
				if answered, err = s.repo.AnsweredQuestionIDs(ctx, userID); err != nil {
					return ScheduleResult{}, err
				}
			}
			q, _, ok := s.pickQuestion(catalog.TriviaFilter{}, answered)
			if !ok {
				return ScheduleResult{}, ErrQuestionNotFound
			}
			challenge = SnapshotQuestion(q)
		}

		created = append(created, Popup{
			ID:          uuid.NewString(),
			UserID:      userID,
			Challenge:   challenge,
			State:       PopupStateScheduled,
			ScheduledAt: s.slotTime(today, free[i]),
			CreatedAt:   now,
		})
	}

	if len(created) > 0 {
		if err := s.repo.InsertPopups(ctx, userID, today, created); err != nil {
			if errors.Is(err, ErrScheduleConflict) {
				current, listErr := s.repo.ListPopupsSince(ctx, userID, today)
				if listErr != nil {
					return ScheduleResult{}, listErr
				}
				return ScheduleResult{AlreadyScheduled: true, Popups: current}, nil
			}
			return ScheduleResult{}, err
		}
		for _, p := range created {
			observability.RecordPopupScheduled(string(p.Kind()))
		}
	}

	all := append(existing, created...)
	sort.Slice(all, func(i, j int) bool { return all[i].ScheduledAt.Before(all[j].ScheduledAt) })
	return ScheduleResult{Created: len(created), Popups: all}, nil
}

// slotTime draws a whole-minute instant inside the window.
func (s *Service) slotTime(day time.Time, w TimeWindow) time.Time {
	minutes := s.sampler.IntN((w.EndHour - w.StartHour) * 60)
	return time.Date(day.Year(), day.Month(), day.Day(), w.StartHour, minutes, 0, 0, s.loc)
}

func (s *Service) shuffle(kinds []PopupKind) {
	for i := len(kinds) - 1; i > 0; i-- {
		j := s.sampler.IntN(i + 1)
		kinds[i], kinds[j] = kinds[j], kinds[i]
	}
}

// ActivePopup opens and returns the earliest due unopened pop-up. Each call consumes
// the pop-up it returns; nil means no pop-up is due.
func (s *Service) ActivePopup(ctx context.Context, userID string) (*Popup, error) {
	now, _ := s.now()
	popup, err := s.repo.OpenNextDue(ctx, userID, now)
	if err != nil || popup == nil {
		return nil, err
	}
	observability.RecordPopupOpened(string(popup.Kind()))
	return popup, nil
}

// PopupResult is returned from CompletePopup.
type PopupResult struct {
	Popup          Popup
	Correct        bool
	CorrectAnswer  *int
	Explanation    string
	GemsEarned     int
	SpeedBonus     int
	TotalGems      int
	TimeToComplete int

	// WorkoutComplete is set when an exercise pop-up finished the daily workout.
	WorkoutComplete bool
}

// CompletePopup grades an opened pop-up and credits its gems. answer is required for
// trivia pop-ups and ignored for exercises.
func (s *Service) CompletePopup(ctx context.Context, userID, popupID string, answer *int) (PopupResult, error) {
	popupID = strings.TrimSpace(popupID)
	if popupID == "" {
		return PopupResult{}, fmt.Errorf("%w: popup id is required", ErrValidation)
	}

	popup, err := s.repo.GetPopup(ctx, popupID)
	if err != nil {
		return PopupResult{}, err
	}
	if popup == nil || popup.UserID != userID {
		return PopupResult{}, ErrPopupNotFound
	}
	if popup.State == PopupStateCompleted {
		return PopupResult{}, ErrPopupAlreadyCompleted
	}
	if popup.State != PopupStateOpened || popup.OpenedAt == nil {
		return PopupResult{}, ErrPopupNotOpened
	}

	now, today := s.now()
	if now.Before(*popup.OpenedAt) {
		now = *popup.OpenedAt
	}
	ttc := int(now.Sub(*popup.OpenedAt) / time.Second)

	completion := PopupCompletion{}
	result := PopupResult{TimeToComplete: ttc}
	var outcome PopupOutcome

	switch challenge := popup.Challenge.(type) {
	case TriviaSnapshot:
		if answer == nil {
			return PopupResult{}, ErrAnswerRequired
		}
		question, ok := catalog.LookupQuestion(challenge.QuestionID)
		if !ok {
			return PopupResult{}, ErrQuestionNotFound
		}
		if err := validateOption(question, *answer); err != nil {
			return PopupResult{}, err
		}
		correct := *answer == question.CorrectOption
		outcome = TriviaOutcome(challenge, correct, ttc)
		completion.TriviaAnswer = &TriviaAnswer{
			UserID:     userID,
			QuestionID: question.ID,
			Answer:     *answer,
			Correct:    correct,
			Gems:       outcome.TotalGems(),
			AnsweredAt: now,
		}
		correctOption := question.CorrectOption
		result.CorrectAnswer = &correctOption
		result.Explanation = question.Explanation
	case ExerciseSnapshot:
		outcome = ExerciseOutcome(challenge, ttc)
		completion.Completion = &Completion{
			ID:          uuid.NewString(),
			UserID:      userID,
			ExerciseID:  challenge.ExerciseID,
			Source:      SourcePopup,
			PopupID:     popup.ID,
			CompletedAt: now,
			CompletedOn: today,
			Gold:        challenge.Gold,
			XP:          challenge.XP,
			Calories:    challenge.Calories,
		}
	default:
		return PopupResult{}, fmt.Errorf("popup %s: unsupported challenge %T", popup.ID, popup.Challenge)
	}

	completed, err := popup.Complete(now, outcome)
	if err != nil {
		return PopupResult{}, err
	}
	completion.Popup = completed
	completion.Credit = Reward{Gems: outcome.TotalGems()}

	if err := s.repo.CompletePopup(ctx, completion); err != nil {
		return PopupResult{}, err
	}

	kind := string(completed.Kind())
	observability.RecordPopupCompleted(kind, outcome.SpeedBonus > 0)
	observability.RecordRewards(0, 0, outcome.TotalGems(), 0)
	observability.RecordEngagement(now)
	if completion.TriviaAnswer != nil {
		observability.RecordTriviaAnswer("popup", outcome.Correct)
	} else {
		observability.RecordExerciseCompleted(string(SourcePopup))
		settled, err := s.settleWorkout(ctx, userID, now, today)
		if err != nil {
			return PopupResult{}, err
		}
		result.WorkoutComplete = settled.advanced
	}

	result.Popup = completed
	result.Correct = outcome.Correct
	result.GemsEarned = outcome.BaseGems
	result.SpeedBonus = outcome.SpeedBonus
	result.TotalGems = outcome.TotalGems()
	return result, nil
}

// PopupHistory pages the user's pop-ups, newest first.
func (s *Service) PopupHistory(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Popup, *Cursor, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	return s.repo.ListPopups(ctx, userID, cursor, limit)
}
