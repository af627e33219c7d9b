package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	engagementGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "engagement_service",
		Subsystem: "persistence",
		Name:      "last_engagement_timestamp_seconds",
		Help:      "Unix timestamp of the most recent reward-bearing event persisted.",
	})

	rewardCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engagement_service",
		Subsystem: "ledger",
		Name:      "rewards_credited_total",
		Help:      "Currency credited to user ledgers, labeled by currency.",
	}, []string{"currency"})

	exerciseCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engagement_service",
		Subsystem: "workout",
		Name:      "exercise_completions_total",
		Help:      "Exercise completions recorded, labeled by source.",
	}, []string{"source"})

	workoutCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engagement_service",
		Subsystem: "workout",
		Name:      "daily_workouts_completed_total",
		Help:      "Daily workouts finished, each advancing a streak.",
	})

	popupScheduledCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engagement_service",
		Subsystem: "popup",
		Name:      "scheduled_total",
		Help:      "Pop-up challenges scheduled, labeled by kind.",
	}, []string{"kind"})

	popupOpenedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engagement_service",
		Subsystem: "popup",
		Name:      "opened_total",
		Help:      "Pop-up challenges served as active, labeled by kind.",
	}, []string{"kind"})

	popupCompletedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engagement_service",
		Subsystem: "popup",
		Name:      "completed_total",
		Help:      "Pop-up challenges completed, labeled by kind and whether a speed bonus was paid.",
	}, []string{"kind", "speed_bonus"})

	triviaCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engagement_service",
		Subsystem: "trivia",
		Name:      "answers_total",
		Help:      "Trivia answers graded, labeled by path and correctness.",
	}, []string{"path", "correct"})
)

func init() {
	prometheus.MustRegister(engagementGauge, rewardCounter, exerciseCounter, workoutCounter,
		popupScheduledCounter, popupOpenedCounter, popupCompletedCounter, triviaCounter)
}

// RecordEngagement updates the engagement watermark gauge.
func RecordEngagement(ts time.Time) {
	if ts.IsZero() {
		return
	}
	engagementGauge.Set(float64(ts.Unix()))
}

// RecordRewards adds credited amounts per currency. Zero amounts are skipped.
func RecordRewards(gold, xp, gems, calories int) {
	for currency, amount := range map[string]int{"gold": gold, "xp": xp, "gems": gems, "calories": calories} {
		if amount > 0 {
			rewardCounter.WithLabelValues(currency).Add(float64(amount))
		}
	}
}

// RecordExerciseCompleted counts an exercise completion.
func RecordExerciseCompleted(source string) {
	exerciseCounter.WithLabelValues(source).Inc()
}

// RecordWorkoutCompleted counts a finished daily workout.
func RecordWorkoutCompleted() {
	workoutCounter.Inc()
}

// RecordPopupScheduled counts a scheduled pop-up.
func RecordPopupScheduled(kind string) {
	popupScheduledCounter.WithLabelValues(kind).Inc()
}

// RecordPopupOpened counts a pop-up served as active.
func RecordPopupOpened(kind string) {
	popupOpenedCounter.WithLabelValues(kind).Inc()
}

// RecordPopupCompleted counts a completed pop-up.
func RecordPopupCompleted(kind string, speedBonus bool) {
	popupCompletedCounter.WithLabelValues(kind, strconv.FormatBool(speedBonus)).Inc()
}

// RecordTriviaAnswer counts a graded trivia answer.
func RecordTriviaAnswer(path string, correct bool) {
	triviaCounter.WithLabelValues(path, strconv.FormatBool(correct)).Inc()
}
