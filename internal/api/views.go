package api

import (
	"encoding/json"
	"time"

	"github.com/mudmantim/switchline-backend-sub000/internal/catalog"
	"github.com/mudmantim/switchline-backend-sub000/internal/domain"
)

// CompleteExerciseRequest is the payload for POST /v1/workouts/complete.
type CompleteExerciseRequest struct {
	ExerciseID string `json:"exercise_id"`
}

// CompletePopupRequest is the payload for POST /v1/popups/{id}/complete.
type CompletePopupRequest struct {
	Answer *int `json:"answer"`
}

// SubmitAnswerRequest is the payload for POST /v1/trivia/answer.
type SubmitAnswerRequest struct {
	QuestionID string `json:"question_id"`
	Answer     *int   `json:"answer"`
}

// FitnessLevelView is both the request and response body of the fitness-level routes.
type FitnessLevelView struct {
	FitnessLevel string `json:"fitness_level"`
}

// ExerciseView is a catalog exercise with its display target.
type ExerciseView struct {
	catalog.Exercise
	Target    string `json:"target"`
	Completed bool   `json:"completed"`
}

// ProgressView mirrors domain.Progress.
type ProgressView struct {
	Completed  int  `json:"completed"`
	Total      int  `json:"total"`
	Percentage int  `json:"percentage"`
	IsComplete bool `json:"is_complete"`
}

// WorkoutView is the body of GET /v1/workouts/daily.
type WorkoutView struct {
	Date         string         `json:"date"`
	FitnessLevel string         `json:"fitness_level"`
	Exercises    []ExerciseView `json:"exercises"`
	Progress     ProgressView   `json:"progress"`
}

// RewardsView itemises the currencies one completion paid.
type RewardsView struct {
	Gold      int `json:"gold"`
	XP        int `json:"xp"`
	Calories  int `json:"calories"`
	BonusGold int `json:"bonus_gold"`
	BonusXP   int `json:"bonus_xp"`
}

// StreakView is the streak pair after a completion.
type StreakView struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// ExerciseResultView is the body of POST /v1/workouts/complete.
type ExerciseResultView struct {
	ExerciseCompleted ExerciseView `json:"exercise_completed"`
	WorkoutComplete   bool         `json:"workout_complete"`
	Rewards           RewardsView  `json:"rewards"`
	Streak            StreakView   `json:"streak"`
	Progress          ProgressView `json:"progress"`
}

// StatsView exposes the ledger.
type StatsView struct {
	CurrentStreak int        `json:"current_streak"`
	LongestStreak int        `json:"longest_streak"`
	TotalCalories int        `json:"total_calories"`
	TotalGold     int        `json:"total_gold"`
	TotalXP       int        `json:"total_xp"`
	TotalGems     int        `json:"total_gems"`
	LastCompleted *time.Time `json:"last_completed,omitempty"`
}

// PopupView exposes a pop-up challenge and its lifecycle metadata.
// Challenge holds the snapshot named by Kind: an exercise or a trivia question without
// its answer.
type PopupView struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	State          string          `json:"state"`
	Challenge      json.RawMessage `json:"challenge"`
	ScheduledAt    time.Time       `json:"scheduled_at"`
	OpenedAt       *time.Time      `json:"opened_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	TimeToComplete *int            `json:"time_to_complete,omitempty"`
	Correct        *bool           `json:"correct,omitempty"`
	GemsEarned     int             `json:"gems_earned"`
	SpeedBonus     int             `json:"speed_bonus"`
}

// ScheduleResponse is the body of POST /v1/popups/generate.
type ScheduleResponse struct {
	AlreadyScheduled bool        `json:"already_scheduled"`
	Created          int         `json:"created"`
	Popups           []PopupView `json:"popups"`
}

// ActivePopupResponse carries the opened pop-up, or null when none is due.
type ActivePopupResponse struct {
	Popup *PopupView `json:"popup"`
}

// PopupResultView is the body of POST /v1/popups/{id}/complete.
type PopupResultView struct {
	Popup           PopupView `json:"popup"`
	Correct         bool      `json:"correct"`
	CorrectAnswer   *int      `json:"correct_answer,omitempty"`
	Explanation     string    `json:"explanation,omitempty"`
	GemsEarned      int       `json:"gems_earned"`
	SpeedBonus      int       `json:"speed_bonus"`
	TotalGems       int       `json:"total_gems"`
	TimeToComplete  int       `json:"time_to_complete"`
	WorkoutComplete bool      `json:"workout_complete"`
}

// PopupHistoryResponse packages a history page.
type PopupHistoryResponse struct {
	Items      []PopupView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// RandomQuestionResponse is the body of GET /v1/trivia/random. The correct option
// is never serialised.
type RandomQuestionResponse struct {
	Question    catalog.TriviaQuestion `json:"question"`
	AllAnswered bool                   `json:"all_answered"`
}

// AnswerView is the body of POST /v1/trivia/answer.
type AnswerView struct {
	Correct       bool   `json:"correct"`
	CorrectAnswer int    `json:"correct_answer"`
	Explanation   string `json:"explanation"`
	GemsEarned    int    `json:"gems_earned"`
}

func toExerciseView(ex catalog.Exercise, completed bool) ExerciseView {
	return ExerciseView{Exercise: ex, Target: ex.Target(), Completed: completed}
}

func toProgressView(p domain.Progress) ProgressView {
	return ProgressView{Completed: p.Completed, Total: p.Total, Percentage: p.Percentage, IsComplete: p.IsComplete}
}

func toWorkoutView(w domain.DailyWorkout) WorkoutView {
	view := WorkoutView{
		Date:         w.Date.Format(time.DateOnly),
		FitnessLevel: string(w.Tier),
		Exercises:    make([]ExerciseView, 0, len(w.Exercises)),
		Progress:     toProgressView(w.Progress),
	}
	for _, item := range w.Exercises {
		view.Exercises = append(view.Exercises, toExerciseView(item.Exercise, item.Completed))
	}
	return view
}

func toExerciseResultView(r domain.ExerciseResult) ExerciseResultView {
	return ExerciseResultView{
		ExerciseCompleted: toExerciseView(r.Exercise, true),
		WorkoutComplete:   r.WorkoutComplete,
		Rewards: RewardsView{
			Gold:      r.Rewards.Gold,
			XP:        r.Rewards.XP,
			Calories:  r.Rewards.Calories,
			BonusGold: r.Rewards.BonusGold,
			BonusXP:   r.Rewards.BonusXP,
		},
		Streak:   StreakView{Current: r.CurrentStreak, Longest: r.LongestStreak},
		Progress: toProgressView(r.Progress),
	}
}

func toStatsView(l domain.Ledger) StatsView {
	return StatsView{
		CurrentStreak: l.CurrentStreak,
		LongestStreak: l.LongestStreak,
		TotalCalories: l.TotalCalories,
		TotalGold:     l.TotalGold,
		TotalXP:       l.TotalXP,
		TotalGems:     l.TotalGems,
		LastCompleted: l.LastCompleted,
	}
}

func toPopupView(p domain.Popup) PopupView {
	return PopupView{
		ID:             p.ID,
		Kind:           string(p.Kind()),
		State:          string(p.State),
		Challenge:      challengeJSON(p.Challenge),
		ScheduledAt:    p.ScheduledAt,
		OpenedAt:       p.OpenedAt,
		CompletedAt:    p.CompletedAt,
		TimeToComplete: p.TimeToComplete,
		Correct:        p.Correct,
		GemsEarned:     p.GemsEarned,
		SpeedBonus:     p.SpeedBonus,
	}
}

// challengeJSON encodes a snapshot. Snapshots are plain structs, so encoding cannot fail.
func challengeJSON(c domain.Challenge) json.RawMessage {
	if c == nil {
		return json.RawMessage("null")
	}
	raw, _ := json.Marshal(c)
	return raw
}

func toPopupViews(popups []domain.Popup) []PopupView {
	out := make([]PopupView, 0, len(popups))
	for _, p := range popups {
		out = append(out, toPopupView(p))
	}
	return out
}

func toPopupResultView(r domain.PopupResult) PopupResultView {
	return PopupResultView{
		Popup:           toPopupView(r.Popup),
		Correct:         r.Correct,
		CorrectAnswer:   r.CorrectAnswer,
		Explanation:     r.Explanation,
		GemsEarned:      r.GemsEarned,
		SpeedBonus:      r.SpeedBonus,
		TotalGems:       r.TotalGems,
		TimeToComplete:  r.TimeToComplete,
		WorkoutComplete: r.WorkoutComplete,
	}
}
