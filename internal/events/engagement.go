// Package events defines the engagement event payloads published through the outbox.
package events

import "time"

// Event types carried in the outbox event_type column and Kafka headers.
const (
	TypeWorkoutCompleted = "workout.completed"
	TypePopupScheduled   = "popup.scheduled"
	TypePopupCompleted   = "popup.completed"
	TypeTriviaAnswered   = "trivia.answered"
)

// Topics the outbox dispatcher publishes to.
const (
	TopicWorkouts = "engagement.workouts"
	TopicPopups   = "engagement.popups"
	TopicTrivia   = "engagement.trivia"
)

// WorkoutCompleted is emitted when a user finishes the day's workout and the streak advances.
type WorkoutCompleted struct {
	UserID        string    `json:"user_id"`
	Tier          string    `json:"tier"`
	Exercises     int       `json:"exercises"`
	CurrentStreak int       `json:"current_streak"`
	LongestStreak int       `json:"longest_streak"`
	BonusGold     int       `json:"bonus_gold"`
	BonusXP       int       `json:"bonus_xp"`
	CompletedAt   time.Time `json:"completed_at"`
}

// PopupScheduled is emitted for every pop-up created by the scheduler.
type PopupScheduled struct {
	PopupID     string    `json:"popup_id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// PopupCompleted is emitted when a pop-up is graded.
type PopupCompleted struct {
	PopupID        string    `json:"popup_id"`
	UserID         string    `json:"user_id"`
	Kind           string    `json:"kind"`
	Correct        bool      `json:"correct"`
	TimeToComplete int       `json:"time_to_complete"`
	GemsEarned     int       `json:"gems_earned"`
	SpeedBonus     int       `json:"speed_bonus"`
	CompletedAt    time.Time `json:"completed_at"`
}

// TriviaAnswered is emitted for a standalone trivia submission.
type TriviaAnswered struct {
	UserID     string    `json:"user_id"`
	QuestionID string    `json:"question_id"`
	Answer     int       `json:"answer"`
	Correct    bool      `json:"correct"`
	GemsEarned int       `json:"gems_earned"`
	AnsweredAt time.Time `json:"answered_at"`
}
