package outbox

const workoutCompletedSchema = `{
  "type": "object",
  "title": "WorkoutCompleted",
  "properties": {
    "user_id": {"type": "string"},
    "tier": {"type": "string", "enum": ["beginner", "intermediate", "advanced"]},
    "exercises": {"type": "integer"},
    "current_streak": {"type": "integer"},
    "longest_streak": {"type": "integer"},
    "bonus_gold": {"type": "integer"},
    "bonus_xp": {"type": "integer"},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "tier", "exercises", "current_streak", "longest_streak", "completed_at"],
  "additionalProperties": false
}`

const popupScheduledSchema = `{
  "type": "object",
  "title": "PopupScheduled",
  "properties": {
    "popup_id": {"type": "string"},
    "user_id": {"type": "string"},
    "kind": {"type": "string", "enum": ["exercise", "trivia"]},
    "scheduled_at": {"type": "string", "format": "date-time"}
  },
  "required": ["popup_id", "user_id", "kind", "scheduled_at"],
  "additionalProperties": false
}`

const popupCompletedSchema = `{
  "type": "object",
  "title": "PopupCompleted",
  "properties": {
    "popup_id": {"type": "string"},
    "user_id": {"type": "string"},
    "kind": {"type": "string", "enum": ["exercise", "trivia"]},
    "correct": {"type": "boolean"},
    "time_to_complete": {"type": "integer", "minimum": 0},
    "gems_earned": {"type": "integer"},
    "speed_bonus": {"type": "integer"},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["popup_id", "user_id", "kind", "correct", "time_to_complete", "gems_earned", "speed_bonus", "completed_at"],
  "additionalProperties": false
}`

const triviaAnsweredSchema = `{
  "type": "object",
  "title": "TriviaAnswered",
  "properties": {
    "user_id": {"type": "string"},
    "question_id": {"type": "string"},
    "answer": {"type": "integer", "minimum": 0},
    "correct": {"type": "boolean"},
    "gems_earned": {"type": "integer"},
    "answered_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "question_id", "answer", "correct", "gems_earned", "answered_at"],
  "additionalProperties": false
}`
