package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mudmantim/switchline-backend-sub000/internal/catalog"
)

// PopupKind identifies the challenge payload carried by a pop-up.
type PopupKind string

const (
	PopupKindExercise PopupKind = "exercise"
	PopupKindTrivia   PopupKind = "trivia"
)

// PopupState is the lifecycle position of a pop-up: scheduled → opened → completed.
type PopupState string

const (
	PopupStateScheduled PopupState = "scheduled"
	PopupStateOpened    PopupState = "opened"
	PopupStateCompleted PopupState = "completed"
)

// Challenge is the snapshotted payload of a pop-up. It is either an ExerciseSnapshot
// or a TriviaSnapshot.
type Challenge interface {
	Kind() PopupKind
	isChallenge()
}

// ExerciseSnapshot copies a catalog exercise at scheduling time.
type ExerciseSnapshot struct {
	ExerciseID      string `json:"exercise_id"`
	Name            string `json:"name"`
	Reps            int    `json:"reps,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Category        string `json:"category"`
	Calories        int    `json:"calories"`
	Gold            int    `json:"gold"`
	XP              int    `json:"xp"`
}

// Kind implements Challenge.
func (ExerciseSnapshot) Kind() PopupKind { return PopupKindExercise }
func (ExerciseSnapshot) isChallenge()    {}

// SnapshotExercise copies a catalog exercise.
func SnapshotExercise(ex catalog.Exercise) ExerciseSnapshot {
	return ExerciseSnapshot{
		ExerciseID:      ex.ID,
		Name:            ex.Name,
		Reps:            ex.Reps,
		DurationSeconds: ex.DurationSeconds,
		Category:        ex.Category,
		Calories:        ex.Calories,
		Gold:            ex.Gold,
		XP:              ex.XP,
	}
}

// TriviaSnapshot is a trivia question projection without its answer.
type TriviaSnapshot struct {
	QuestionID string   `json:"question_id"`
	Prompt     string   `json:"question"`
	Options    []string `json:"options"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
	Gems       int      `json:"gem_reward"`
}

// Kind implements Challenge.
func (TriviaSnapshot) Kind() PopupKind { return PopupKindTrivia }
func (TriviaSnapshot) isChallenge()    {}

// SnapshotQuestion copies a trivia question, leaving out the correct option.
func SnapshotQuestion(q catalog.TriviaQuestion) TriviaSnapshot {
	return TriviaSnapshot{
		QuestionID: q.ID,
		Prompt:     q.Prompt,
		Options:    append([]string(nil), q.Options...),
		Category:   q.Category,
		Difficulty: q.Difficulty,
		Gems:       q.Gems,
	}
}

// EncodeChallenge serialises a payload for storage.
func EncodeChallenge(c Challenge) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("nil challenge")
	}
	return json.Marshal(c)
}

// DecodeChallenge restores a stored payload of the given kind.
func DecodeChallenge(kind PopupKind, data []byte) (Challenge, error) {
	switch kind {
	case PopupKindExercise:
		var ex ExerciseSnapshot
		if err := json.Unmarshal(data, &ex); err != nil {
			return nil, err
		}
		return ex, nil
	case PopupKindTrivia:
		var tq TriviaSnapshot
		if err := json.Unmarshal(data, &tq); err != nil {
			return nil, err
		}
		return tq, nil
	}
	return nil, fmt.Errorf("unknown popup kind %q", kind)
}

// Popup is a time-slotted one-shot challenge.
type Popup struct {
	ID          string
	UserID      string
	Challenge   Challenge
	State       PopupState
	ScheduledAt time.Time
	OpenedAt    *time.Time
	CompletedAt *time.Time
	// TimeToComplete is whole seconds between opening and completion.
	TimeToComplete *int
	Correct        *bool
	GemsEarned     int
	SpeedBonus     int
	CreatedAt      time.Time
}

// Kind returns the payload kind.
func (p Popup) Kind() PopupKind {
	if p.Challenge == nil {
		return ""
	}
	return p.Challenge.Kind()
}

// Open moves a scheduled pop-up to opened.
func (p Popup) Open(now time.Time) (Popup, error) {
	if p.State != PopupStateScheduled {
		return p, fmt.Errorf("popup %s: cannot open from state %s", p.ID, p.State)
	}
	p.State = PopupStateOpened
	p.OpenedAt = &now
	return p, nil
}

// Complete moves an opened pop-up to completed and records the outcome.
// completedAt earlier than the opening time is clamped to it.
func (p Popup) Complete(completedAt time.Time, outcome PopupOutcome) (Popup, error) {
	switch p.State {
	case PopupStateCompleted:
		return p, ErrPopupAlreadyCompleted
	case PopupStateScheduled:
		return p, ErrPopupNotOpened
	}
	if p.OpenedAt == nil {
		return p, ErrPopupNotOpened
	}
	if completedAt.Before(*p.OpenedAt) {
		completedAt = *p.OpenedAt
	}
	ttc := int(completedAt.Sub(*p.OpenedAt) / time.Second)
	correct := outcome.Correct

	p.State = PopupStateCompleted
	p.CompletedAt = &completedAt
	p.TimeToComplete = &ttc
	p.Correct = &correct
	p.GemsEarned = outcome.BaseGems
	p.SpeedBonus = outcome.SpeedBonus
	return p, nil
}

// PopupOutcome is the reward decision for a completed pop-up.
type PopupOutcome struct {
	Correct    bool
	BaseGems   int
	SpeedBonus int
}

// TotalGems is base plus bonus.
func (o PopupOutcome) TotalGems() int { return o.BaseGems + o.SpeedBonus }

const (
	triviaSpeedThreshold   = 10 * time.Second
	exerciseSpeedThreshold = 60 * time.Second
)

// TriviaOutcome scores a trivia pop-up: a correct answer earns the question's gems and,
// under ten seconds, another 50% rounded down.
func TriviaOutcome(snapshot TriviaSnapshot, correct bool, timeToComplete int) PopupOutcome {
	if !correct {
		return PopupOutcome{}
	}
	out := PopupOutcome{Correct: true, BaseGems: snapshot.Gems}
	if time.Duration(timeToComplete)*time.Second < triviaSpeedThreshold {
		out.SpeedBonus = out.BaseGems * 50 / 100
	}
	return out
}

// ExerciseOutcome scores an exercise pop-up: half the exercise's gold as gems and,
// under sixty seconds, another 25% rounded down.
func ExerciseOutcome(snapshot ExerciseSnapshot, timeToComplete int) PopupOutcome {
	out := PopupOutcome{Correct: true, BaseGems: snapshot.Gold / 2}
	if time.Duration(timeToComplete)*time.Second < exerciseSpeedThreshold {
		out.SpeedBonus = out.BaseGems * 25 / 100
	}
	return out
}

// PopupCompletion bundles everything persisted when a pop-up completes. Stores apply
// it atomically and only if the pop-up is still in the opened state.
type PopupCompletion struct {
	Popup  Popup
	Credit Reward
	// TriviaAnswer is inserted only if the user has no answer for the question yet.
	TriviaAnswer *TriviaAnswer
	// Completion is appended for exercise pop-ups unless the user already completed the
	// exercise that day.
	Completion *Completion
}

// TriviaAnswer is the latest answer a user gave to a question.
type TriviaAnswer struct {
	UserID     string
	QuestionID string
	Answer     int
	Correct    bool
	Gems       int
	AnsweredAt time.Time
}
