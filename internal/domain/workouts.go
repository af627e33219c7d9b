package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mudmantim/switchline-backend-sub000/internal/catalog"
	"github.com/mudmantim/switchline-backend-sub000/internal/observability"
	"github.com/mudmantim/switchline-backend-sub000/internal/workout"
)

// DailyExercise is one entry of today's workout with its completion flag.
type DailyExercise struct {
	Exercise  catalog.Exercise
	Completed bool
}

// Progress summarises today's workout.
type Progress struct {
	Completed  int
	Total      int
	Percentage int
	IsComplete bool
}

// DailyWorkout is today's generated workout for a user.
type DailyWorkout struct {
	Date      time.Time
	Tier      catalog.Tier
	Exercises []DailyExercise
	Progress  Progress
}

// RewardBreakdown itemises what one exercise completion paid.
type RewardBreakdown struct {
	Gold      int
	XP        int
	Calories  int
	BonusGold int
	BonusXP   int
}

// ExerciseResult is returned from CompleteExercise.
type ExerciseResult struct {
	Exercise        catalog.Exercise
	WorkoutComplete bool
	Rewards         RewardBreakdown
	CurrentStreak   int
	LongestStreak   int
	Progress        Progress
}

// DailyWorkout returns today's exercises for the user's tier with completion flags.
func (s *Service) DailyWorkout(ctx context.Context, userID string) (DailyWorkout, error) {
	_, today := s.now()

	tier, err := s.repo.FitnessTier(ctx, userID)
	if err != nil {
		return DailyWorkout{}, err
	}
	done, err := s.repo.CompletedExerciseIDs(ctx, userID, today)
	if err != nil {
		return DailyWorkout{}, err
	}

	target := workout.Daily(tier, today)
	return DailyWorkout{
		Date:      today,
		Tier:      tier,
		Exercises: markCompleted(target, done),
		Progress:  progressOf(target, done),
	}, nil
}

// CompleteExercise records a workout exercise, credits its reward and, when the day's
// workout is finished, pays the workout bonus and advances the streak.
func (s *Service) CompleteExercise(ctx context.Context, userID, exerciseID string) (ExerciseResult, error) {
	exerciseID = strings.TrimSpace(exerciseID)
	if exerciseID == "" {
		return ExerciseResult{}, fmt.Errorf("%w: exercise_id is required", ErrValidation)
	}
	exercise, ok := catalog.LookupExercise(exerciseID)
	if !ok {
		return ExerciseResult{}, ErrExerciseNotFound
	}

	now, today := s.now()

	completion := Completion{
		ID:          uuid.NewString(),
		UserID:      userID,
		ExerciseID:  exercise.ID,
		Source:      SourceWorkout,
		CompletedAt: now,
		CompletedOn: today,
		Gold:        exercise.Gold,
		XP:          exercise.XP,
		Calories:    exercise.Calories,
	}
	if err := s.repo.RecordCompletion(ctx, completion); err != nil {
		return ExerciseResult{}, err
	}
	observability.RecordExerciseCompleted(string(SourceWorkout))
	observability.RecordRewards(completion.Gold, completion.XP, 0, completion.Calories)
	observability.RecordEngagement(now)

	result := ExerciseResult{
		Exercise: exercise,
		Rewards: RewardBreakdown{
			Gold:     exercise.Gold,
			XP:       exercise.XP,
			Calories: exercise.Calories,
		},
	}

	settled, err := s.settleWorkout(ctx, userID, now, today)
	if err != nil {
		return ExerciseResult{}, err
	}
	result.Progress = settled.progress
	result.CurrentStreak = settled.ledger.CurrentStreak
	result.LongestStreak = settled.ledger.LongestStreak
	if settled.advanced {
		result.WorkoutComplete = true
		result.Rewards.BonusGold = WorkoutBonus.Gold
		result.Rewards.BonusXP = WorkoutBonus.XP
	}
	return result, nil
}

type workoutSettlement struct {
	progress Progress
	ledger   Ledger
	advanced bool
}

// settleWorkout re-derives today's progress after an exercise completion and, once the
// workout is complete, pays the bonus and advances the streak. The store advances at
// most once per day, so later completions on a finished day change nothing.
func (s *Service) settleWorkout(ctx context.Context, userID string, now, today time.Time) (workoutSettlement, error) {
	tier, err := s.repo.FitnessTier(ctx, userID)
	if err != nil {
		return workoutSettlement{}, err
	}
	done, err := s.repo.CompletedExerciseIDs(ctx, userID, today)
	if err != nil {
		return workoutSettlement{}, err
	}
	target := workout.Daily(tier, today)
	out := workoutSettlement{progress: progressOf(target, done)}

	if !out.progress.IsComplete {
		out.ledger, err = s.repo.Ledger(ctx, userID)
		return out, err
	}

	out.ledger, out.advanced, err = s.repo.AdvanceStreak(ctx, StreakAdvance{
		UserID:         userID,
		Now:            now,
		TodayStart:     today,
		YesterdayStart: today.AddDate(0, 0, -1),
		Bonus:          WorkoutBonus,
		Tier:           string(tier),
		Exercises:      len(toSet(done)),
	})
	if err != nil {
		return workoutSettlement{}, err
	}
	if out.advanced {
		observability.RecordWorkoutCompleted()
		observability.RecordRewards(WorkoutBonus.Gold, WorkoutBonus.XP, WorkoutBonus.Gems, WorkoutBonus.Calories)
	}
	return out, nil
}

func markCompleted(target []catalog.Exercise, done []string) []DailyExercise {
	set := toSet(done)
	out := make([]DailyExercise, 0, len(target))
	for _, ex := range target {
		_, ok := set[ex.ID]
		out = append(out, DailyExercise{Exercise: ex, Completed: ok})
	}
	return out
}

// progressOf counts every distinct exercise completed today toward the target length,
// so extra exercises can stand in for listed ones. Completed is capped at Total.
func progressOf(target []catalog.Exercise, done []string) Progress {
	p := Progress{Total: len(target), Completed: len(toSet(done))}
	if p.Completed > p.Total {
		p.Completed = p.Total
	}
	if p.Total > 0 {
		p.Percentage = p.Completed * 100 / p.Total
		p.IsComplete = p.Completed == p.Total
	}
	return p
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
