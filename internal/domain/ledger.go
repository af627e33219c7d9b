package domain

import "time"

// Reward is a set of relative currency deltas. Ledger totals only ever move by a Reward.
type Reward struct {
	Gold     int `json:"gold"`
	XP       int `json:"xp"`
	Gems     int `json:"gems"`
	Calories int `json:"calories"`
}

// Add sums two rewards.
func (r Reward) Add(other Reward) Reward {
	return Reward{
		Gold:     r.Gold + other.Gold,
		XP:       r.XP + other.XP,
		Gems:     r.Gems + other.Gems,
		Calories: r.Calories + other.Calories,
	}
}

// IsZero reports whether no currency moves.
func (r Reward) IsZero() bool {
	return r == Reward{}
}

// WorkoutBonus is credited once per day when the daily workout is finished.
var WorkoutBonus = Reward{Gold: 50, XP: 100}

// Ledger is a user's running totals and streak state.
type Ledger struct {
	UserID        string
	CurrentStreak int
	LongestStreak int
	TotalCalories int
	TotalGold     int
	TotalXP       int
	TotalGems     int
	LastCompleted *time.Time
}

// StreakAdvance asks the store to move a user's streak forward for today.
// The store applies it only if LastCompleted is before TodayStart; the streak
// continues when LastCompleted is on or after YesterdayStart and resets to 1 otherwise.
type StreakAdvance struct {
	UserID         string
	Now            time.Time
	TodayStart     time.Time
	YesterdayStart time.Time
	Bonus          Reward
	Tier           string
	Exercises      int
}

// Apply computes the advanced ledger. The second result is false when the
// streak was already advanced today.
func (a StreakAdvance) Apply(l Ledger) (Ledger, bool) {
	if l.LastCompleted != nil && !l.LastCompleted.Before(a.TodayStart) {
		return l, false
	}
	if l.LastCompleted != nil && !l.LastCompleted.Before(a.YesterdayStart) {
		l.CurrentStreak++
	} else {
		l.CurrentStreak = 1
	}
	if l.CurrentStreak > l.LongestStreak {
		l.LongestStreak = l.CurrentStreak
	}
	now := a.Now
	l.LastCompleted = &now
	l = l.Credit(a.Bonus)
	return l, true
}

// Credit adds a reward to the totals.
func (l Ledger) Credit(r Reward) Ledger {
	l.TotalGold += r.Gold
	l.TotalXP += r.XP
	l.TotalGems += r.Gems
	l.TotalCalories += r.Calories
	return l
}

// CompletionSource tells whether a completion came from the daily workout or a pop-up.
type CompletionSource string

const (
	SourceWorkout CompletionSource = "workout"
	SourcePopup   CompletionSource = "popup"
)

// Completion is an append-only record of a finished exercise.
type Completion struct {
	ID          string
	UserID      string
	ExerciseID  string
	Source      CompletionSource
	PopupID     string
	CompletedAt time.Time
	// CompletedOn is local midnight of CompletedAt; workout completions are unique per
	// user, exercise and CompletedOn.
	CompletedOn time.Time
	Gold        int
	XP          int
	Calories    int
}

// Reward returns the gold, XP and calories the record carries.
func (c Completion) Reward() Reward {
	return Reward{Gold: c.Gold, XP: c.XP, Calories: c.Calories}
}
