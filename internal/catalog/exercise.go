// Package catalog holds the static exercise pools and trivia bank served by the engagement engine.
package catalog

import (
	"fmt"
	"strings"
)

// Tier is a user's fitness level and selects the exercise pool.
type Tier string

const (
	TierBeginner     Tier = "beginner"
	TierIntermediate Tier = "intermediate"
	TierAdvanced     Tier = "advanced"
)

// DefaultTier is assigned to users who never picked a level.
const DefaultTier = TierBeginner

// Tiers lists every supported tier in ascending difficulty.
var Tiers = []Tier{TierBeginner, TierIntermediate, TierAdvanced}

// ParseTier normalises raw input into a Tier.
func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case TierBeginner, TierIntermediate, TierAdvanced:
		return t, nil
	}
	return "", fmt.Errorf("unknown fitness level %q", raw)
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, err := ParseTier(string(t))
	return err == nil
}

// Exercise is an immutable catalog entry. Exactly one of Reps or DurationSeconds is set.
type Exercise struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Reps            int    `json:"reps,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Category        string `json:"category"`
	Calories        int    `json:"calories"`
	Gold            int    `json:"gold"`
	XP              int    `json:"xp"`
}

// Target renders the reps-or-duration goal for display.
func (e Exercise) Target() string {
	if e.DurationSeconds > 0 {
		return fmt.Sprintf("%d sec", e.DurationSeconds)
	}
	return fmt.Sprintf("%d reps", e.Reps)
}

// Pool returns a copy of the ordered exercise pool for the tier.
// Unknown tiers resolve to the default pool.
func Pool(t Tier) []Exercise {
	src, ok := pools[t]
	if !ok {
		src = pools[DefaultTier]
	}
	out := make([]Exercise, len(src))
	copy(out, src)
	return out
}

// LookupExercise finds an exercise by id across all tiers.
func LookupExercise(id string) (Exercise, bool) {
	ex, ok := exerciseIndex[id]
	return ex, ok
}

var exerciseIndex = func() map[string]Exercise {
	idx := make(map[string]Exercise)
	for _, tier := range Tiers {
		for _, ex := range pools[tier] {
			idx[ex.ID] = ex
		}
	}
	return idx
}()

// pools are ordered; the daily workout generator indexes into them, so entries must
// only ever be appended.
var pools = map[Tier][]Exercise{
	TierBeginner: {
		{ID: "beg-jumping-jacks", Name: "Jumping Jacks", Reps: 20, Category: "cardio", Calories: 8, Gold: 10, XP: 15},
		{ID: "beg-wall-pushups", Name: "Wall Push-ups", Reps: 10, Category: "strength", Calories: 4, Gold: 10, XP: 15},
		{ID: "beg-bodyweight-squats", Name: "Bodyweight Squats", Reps: 12, Category: "strength", Calories: 6, Gold: 12, XP: 18},
		{ID: "beg-march-in-place", Name: "March in Place", DurationSeconds: 60, Category: "cardio", Calories: 5, Gold: 8, XP: 12},
		{ID: "beg-knee-plank", Name: "Knee Plank", DurationSeconds: 20, Category: "core", Calories: 3, Gold: 10, XP: 15},
		{ID: "beg-glute-bridges", Name: "Glute Bridges", Reps: 12, Category: "strength", Calories: 4, Gold: 10, XP: 15},
		{ID: "beg-arm-circles", Name: "Arm Circles", DurationSeconds: 30, Category: "mobility", Calories: 2, Gold: 6, XP: 10},
		{ID: "beg-calf-raises", Name: "Calf Raises", Reps: 15, Category: "strength", Calories: 3, Gold: 8, XP: 12},
		{ID: "beg-toe-touches", Name: "Standing Toe Touches", Reps: 10, Category: "flexibility", Calories: 2, Gold: 6, XP: 10},
		{ID: "beg-step-ups", Name: "Step-ups", Reps: 10, Category: "cardio", Calories: 6, Gold: 12, XP: 18},
	},
	TierIntermediate: {
		{ID: "int-pushups", Name: "Push-ups", Reps: 15, Category: "strength", Calories: 8, Gold: 20, XP: 30},
		{ID: "int-jump-squats", Name: "Jump Squats", Reps: 15, Category: "plyometric", Calories: 10, Gold: 22, XP: 32},
		{ID: "int-plank", Name: "Plank", DurationSeconds: 45, Category: "core", Calories: 5, Gold: 18, XP: 26},
		{ID: "int-lunges", Name: "Alternating Lunges", Reps: 20, Category: "strength", Calories: 9, Gold: 20, XP: 30},
		{ID: "int-mountain-climbers", Name: "Mountain Climbers", DurationSeconds: 40, Category: "cardio", Calories: 10, Gold: 22, XP: 32},
		{ID: "int-burpees", Name: "Burpees", Reps: 10, Category: "cardio", Calories: 12, Gold: 25, XP: 36},
		{ID: "int-tricep-dips", Name: "Chair Tricep Dips", Reps: 12, Category: "strength", Calories: 6, Gold: 18, XP: 26},
		{ID: "int-high-knees", Name: "High Knees", DurationSeconds: 45, Category: "cardio", Calories: 9, Gold: 20, XP: 30},
		{ID: "int-side-plank", Name: "Side Plank", DurationSeconds: 30, Category: "core", Calories: 4, Gold: 16, XP: 24},
		{ID: "int-superman", Name: "Superman Holds", Reps: 12, Category: "core", Calories: 4, Gold: 16, XP: 24},
	},
	TierAdvanced: {
		{ID: "adv-clap-pushups", Name: "Clap Push-ups", Reps: 15, Category: "plyometric", Calories: 12, Gold: 35, XP: 50},
		{ID: "adv-pistol-squats", Name: "Pistol Squats", Reps: 8, Category: "strength", Calories: 10, Gold: 35, XP: 50},
		{ID: "adv-burpee-tuck-jumps", Name: "Burpee Tuck Jumps", Reps: 12, Category: "plyometric", Calories: 16, Gold: 40, XP: 56},
		{ID: "adv-plank-1min", Name: "Weighted Plank", DurationSeconds: 90, Category: "core", Calories: 8, Gold: 30, XP: 44},
		{ID: "adv-pike-pushups", Name: "Pike Push-ups", Reps: 12, Category: "strength", Calories: 9, Gold: 32, XP: 46},
		{ID: "adv-jumping-lunges", Name: "Jumping Lunges", Reps: 24, Category: "plyometric", Calories: 14, Gold: 36, XP: 52},
		{ID: "adv-hollow-hold", Name: "Hollow Body Hold", DurationSeconds: 60, Category: "core", Calories: 6, Gold: 30, XP: 44},
		{ID: "adv-sprawls", Name: "Sprawls", Reps: 15, Category: "cardio", Calories: 14, Gold: 36, XP: 52},
		{ID: "adv-archer-pushups", Name: "Archer Push-ups", Reps: 10, Category: "strength", Calories: 9, Gold: 34, XP: 48},
		{ID: "adv-skater-hops", Name: "Skater Hops", DurationSeconds: 60, Category: "cardio", Calories: 13, Gold: 32, XP: 46},
	},
}
