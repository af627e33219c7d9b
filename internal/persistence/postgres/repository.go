// Package postgres implements the engagement repository on Postgres. Every mutation
// runs in one transaction together with the outbox events it produces.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mudmantim/switchline-backend-sub000/internal/catalog"
	"github.com/mudmantim/switchline-backend-sub000/internal/domain"
	"github.com/mudmantim/switchline-backend-sub000/internal/events"
	"github.com/mudmantim/switchline-backend-sub000/internal/outbox"
)

// Repository provides Postgres-backed persistence for engagement state and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FitnessTier returns the user's tier, creating the default profile on first access.
func (r *Repository) FitnessTier(ctx context.Context, userID string) (catalog.Tier, error) {
	// DO UPDATE locks and returns the existing row, so a concurrent first access
	// never sees an empty result.
	const query = `INSERT INTO fitness_profiles (user_id) VALUES ($1)
        ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
        RETURNING fitness_level`

	var level string
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&level); err != nil {
		return "", err
	}
	return catalog.ParseTier(level)
}

// SetFitnessTier stores the user's tier.
func (r *Repository) SetFitnessTier(ctx context.Context, userID string, tier catalog.Tier) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO fitness_profiles (user_id, fitness_level) VALUES ($1, $2)
         ON CONFLICT (user_id) DO UPDATE SET fitness_level = EXCLUDED.fitness_level, updated_at = NOW()`,
		userID, string(tier),
	)
	return err
}

const ledgerColumns = `user_id, current_streak, longest_streak, total_calories, total_gold, total_xp, total_gems, last_completed`

func scanLedger(row pgx.Row) (domain.Ledger, error) {
	var l domain.Ledger
	err := row.Scan(&l.UserID, &l.CurrentStreak, &l.LongestStreak, &l.TotalCalories, &l.TotalGold, &l.TotalXP, &l.TotalGems, &l.LastCompleted)
	return l, err
}

func ensureLedger(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, `INSERT INTO user_stats (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	return err
}

// Ledger returns the user's totals, creating an empty ledger on first access.
func (r *Repository) Ledger(ctx context.Context, userID string) (domain.Ledger, error) {
	var ledger domain.Ledger
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := ensureLedger(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		ledger, err = scanLedger(tx.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM user_stats WHERE user_id = $1`, userID))
		return err
	})
	return ledger, err
}

// credit moves the totals by a relative reward.
func credit(ctx context.Context, tx pgx.Tx, userID string, reward domain.Reward) error {
	if reward.IsZero() {
		return nil
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO user_stats (user_id, total_gold, total_xp, total_gems, total_calories)
         VALUES ($1,$2,$3,$4,$5)
         ON CONFLICT (user_id) DO UPDATE SET
            total_gold = user_stats.total_gold + EXCLUDED.total_gold,
            total_xp = user_stats.total_xp + EXCLUDED.total_xp,
            total_gems = user_stats.total_gems + EXCLUDED.total_gems,
            total_calories = user_stats.total_calories + EXCLUDED.total_calories,
            updated_at = NOW()`,
		userID, reward.Gold, reward.XP, reward.Gems, reward.Calories,
	)
	return err
}

// AdvanceStreak advances the streak with a single conditional update, so at most one
// request per day can pay the workout bonus.
func (r *Repository) AdvanceStreak(ctx context.Context, adv domain.StreakAdvance) (domain.Ledger, bool, error) {
	const stmt = `UPDATE user_stats SET
            current_streak = CASE WHEN last_completed IS NOT NULL AND last_completed >= $3 THEN current_streak + 1 ELSE 1 END,
            longest_streak = GREATEST(longest_streak, CASE WHEN last_completed IS NOT NULL AND last_completed >= $3 THEN current_streak + 1 ELSE 1 END),
            last_completed = $2,
            total_gold = total_gold + $5,
            total_xp = total_xp + $6,
            total_gems = total_gems + $7,
            total_calories = total_calories + $8,
            updated_at = NOW()
        WHERE user_id = $1 AND (last_completed IS NULL OR last_completed < $4)
        RETURNING ` + ledgerColumns

	var (
		ledger   domain.Ledger
		advanced bool
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := ensureLedger(ctx, tx, adv.UserID); err != nil {
			return err
		}

		var err error
		ledger, err = scanLedger(tx.QueryRow(ctx, stmt,
			adv.UserID, adv.Now, adv.YesterdayStart, adv.TodayStart,
			adv.Bonus.Gold, adv.Bonus.XP, adv.Bonus.Gems, adv.Bonus.Calories,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			ledger, err = scanLedger(tx.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM user_stats WHERE user_id = $1`, adv.UserID))
			return err
		}
		if err != nil {
			return err
		}
		advanced = true

		return outbox.Enqueue(ctx, tx, outbox.Event{
			UserID:        adv.UserID,
			AggregateType: "workout",
			AggregateID:   fmt.Sprintf("%s:%s", adv.UserID, adv.TodayStart.Format(time.DateOnly)),
			EventType:     events.TypeWorkoutCompleted,
			Payload: events.WorkoutCompleted{
				UserID:        adv.UserID,
				Tier:          adv.Tier,
				Exercises:     adv.Exercises,
				CurrentStreak: ledger.CurrentStreak,
				LongestStreak: ledger.LongestStreak,
				BonusGold:     adv.Bonus.Gold,
				BonusXP:       adv.Bonus.XP,
				CompletedAt:   adv.Now,
			},
		})
	})
	if err != nil {
		return domain.Ledger{}, false, err
	}
	return ledger, advanced, nil
}

// RecordCompletion appends a workout completion and credits its reward.
func (r *Repository) RecordCompletion(ctx context.Context, c domain.Completion) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO workout_completions (completion_id, user_id, exercise_id, source, completed_at, completed_on, gold, xp, calories)
             VALUES ($1,$2,$3,$4,$5,$6::date,$7,$8,$9)
             ON CONFLICT (user_id, exercise_id, completed_on) DO NOTHING`,
			c.ID, c.UserID, c.ExerciseID, string(c.Source), c.CompletedAt, c.CompletedOn.Format(time.DateOnly), c.Gold, c.XP, c.Calories,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAlreadyCompletedToday
		}
		return credit(ctx, tx, c.UserID, c.Reward())
	})
}

// CompletedExerciseIDs lists exercises completed on the given local day from any source.
func (r *Repository) CompletedExerciseIDs(ctx context.Context, userID string, day time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exercise_id FROM workout_completions
         WHERE user_id = $1 AND completed_on = $2::date
         ORDER BY completed_at`,
		userID, day.Format(time.DateOnly),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// AnsweredQuestionIDs lists every question the user has an answer for.
func (r *Repository) AnsweredQuestionIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT question_id FROM trivia_answers WHERE user_id = $1 ORDER BY question_id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// SaveTriviaAnswer upserts the answer, credits its gems and publishes trivia.answered.
func (r *Repository) SaveTriviaAnswer(ctx context.Context, a domain.TriviaAnswer) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO trivia_answers (user_id, question_id, answer, correct, gems, answered_at)
             VALUES ($1,$2,$3,$4,$5,$6)
             ON CONFLICT (user_id, question_id) DO UPDATE SET
                answer = EXCLUDED.answer,
                correct = EXCLUDED.correct,
                gems = EXCLUDED.gems,
                answered_at = EXCLUDED.answered_at`,
			a.UserID, a.QuestionID, a.Answer, a.Correct, a.Gems, a.AnsweredAt,
		); err != nil {
			return err
		}
		if err := credit(ctx, tx, a.UserID, domain.Reward{Gems: a.Gems}); err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx, outbox.Event{
			UserID:        a.UserID,
			AggregateType: "trivia_answer",
			AggregateID:   uuid.NewString(),
			EventType:     events.TypeTriviaAnswered,
			Payload: events.TriviaAnswered{
				UserID:     a.UserID,
				QuestionID: a.QuestionID,
				Answer:     a.Answer,
				Correct:    a.Correct,
				GemsEarned: a.Gems,
				AnsweredAt: a.AnsweredAt,
			},
		})
	})
}

const popupColumns = `popup_id, user_id, kind, payload, state, scheduled_at, opened_at, completed_at, time_to_complete, correct, gems_earned, speed_bonus, created_at`

func scanPopup(row pgx.Row) (domain.Popup, error) {
	var (
		p       domain.Popup
		kind    string
		state   string
		payload []byte
	)
	if err := row.Scan(&p.ID, &p.UserID, &kind, &payload, &state, &p.ScheduledAt, &p.OpenedAt, &p.CompletedAt, &p.TimeToComplete, &p.Correct, &p.GemsEarned, &p.SpeedBonus, &p.CreatedAt); err != nil {
		return domain.Popup{}, err
	}
	challenge, err := domain.DecodeChallenge(domain.PopupKind(kind), payload)
	if err != nil {
		return domain.Popup{}, fmt.Errorf("popup %s: %w", p.ID, err)
	}
	p.Challenge = challenge
	p.State = domain.PopupState(state)
	return p, nil
}

func collectPopups(rows pgx.Rows) ([]domain.Popup, error) {
	defer rows.Close()
	out := make([]domain.Popup, 0)
	for rows.Next() {
		p, err := scanPopup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPopupsSince returns the user's pop-ups scheduled at or after since, earliest first.
func (r *Repository) ListPopupsSince(ctx context.Context, userID string, since time.Time) ([]domain.Popup, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+popupColumns+` FROM popup_challenges
         WHERE user_id = $1 AND scheduled_at >= $2
         ORDER BY scheduled_at, popup_id`,
		userID, since,
	)
	if err != nil {
		return nil, err
	}
	return collectPopups(rows)
}

// InsertPopups stores a day's batch under a per-user advisory lock.
func (r *Repository) InsertPopups(ctx context.Context, userID string, since time.Time, popups []domain.Popup) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
			return err
		}
		var existing int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM popup_challenges WHERE user_id = $1 AND scheduled_at >= $2`,
			userID, since,
		).Scan(&existing); err != nil {
			return err
		}
		if existing+len(popups) > domain.PopupsPerDay {
			return domain.ErrScheduleConflict
		}

		for _, p := range popups {
			payload, err := domain.EncodeChallenge(p.Challenge)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO popup_challenges (popup_id, user_id, kind, payload, state, scheduled_at, created_at)
                 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				p.ID, userID, string(p.Kind()), payload, string(p.State), p.ScheduledAt, p.CreatedAt,
			); err != nil {
				return err
			}
			if err := outbox.Enqueue(ctx, tx, outbox.Event{
				UserID:        userID,
				AggregateType: "popup",
				AggregateID:   p.ID,
				EventType:     events.TypePopupScheduled,
				Payload: events.PopupScheduled{
					PopupID:     p.ID,
					UserID:      userID,
					Kind:        string(p.Kind()),
					ScheduledAt: p.ScheduledAt,
				},
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// OpenNextDue opens the earliest due pop-up. The row lock makes concurrent callers
// skip a pop-up that is being opened.
func (r *Repository) OpenNextDue(ctx context.Context, userID string, now time.Time) (*domain.Popup, error) {
	const stmt = `UPDATE popup_challenges SET state = 'opened', opened_at = $2
        WHERE popup_id = (
            SELECT popup_id FROM popup_challenges
            WHERE user_id = $1 AND state = 'scheduled' AND scheduled_at <= $2
            ORDER BY scheduled_at, popup_id
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        ) AND state = 'scheduled'
        RETURNING ` + popupColumns

	p, err := scanPopup(r.pool.QueryRow(ctx, stmt, userID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPopup loads a pop-up by id. It returns nil when none exists.
func (r *Repository) GetPopup(ctx context.Context, popupID string) (*domain.Popup, error) {
	p, err := scanPopup(r.pool.QueryRow(ctx, `SELECT `+popupColumns+` FROM popup_challenges WHERE popup_id = $1`, popupID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CompletePopup transitions an opened pop-up to completed and applies its side effects.
func (r *Repository) CompletePopup(ctx context.Context, c domain.PopupCompletion) error {
	p := c.Popup
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE popup_challenges SET
                state = 'completed',
                completed_at = $2,
                time_to_complete = $3,
                correct = $4,
                gems_earned = $5,
                speed_bonus = $6
             WHERE popup_id = $1 AND state = 'opened'`,
			p.ID, p.CompletedAt, p.TimeToComplete, p.Correct, p.GemsEarned, p.SpeedBonus,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrPopupAlreadyCompleted
		}

		if a := c.TriviaAnswer; a != nil {
			if _, err := tx.Exec(ctx,
				`INSERT INTO trivia_answers (user_id, question_id, answer, correct, gems, answered_at)
                 VALUES ($1,$2,$3,$4,$5,$6)
                 ON CONFLICT (user_id, question_id) DO NOTHING`,
				a.UserID, a.QuestionID, a.Answer, a.Correct, a.Gems, a.AnsweredAt,
			); err != nil {
				return err
			}
		}
		if comp := c.Completion; comp != nil {
			if _, err := tx.Exec(ctx,
				`INSERT INTO workout_completions (completion_id, user_id, exercise_id, source, popup_id, completed_at, completed_on, gold, xp, calories)
                 VALUES ($1,$2,$3,$4,$5,$6,$7::date,$8,$9,$10)
                 ON CONFLICT (user_id, exercise_id, completed_on) DO NOTHING`,
				comp.ID, comp.UserID, comp.ExerciseID, string(comp.Source), comp.PopupID, comp.CompletedAt, comp.CompletedOn.Format(time.DateOnly), comp.Gold, comp.XP, comp.Calories,
			); err != nil {
				return err
			}
		}
		if err := credit(ctx, tx, p.UserID, c.Credit); err != nil {
			return err
		}

		payload := events.PopupCompleted{
			PopupID:    p.ID,
			UserID:     p.UserID,
			Kind:       string(p.Kind()),
			GemsEarned: p.GemsEarned,
			SpeedBonus: p.SpeedBonus,
		}
		if p.Correct != nil {
			payload.Correct = *p.Correct
		}
		if p.TimeToComplete != nil {
			payload.TimeToComplete = *p.TimeToComplete
		}
		if p.CompletedAt != nil {
			payload.CompletedAt = *p.CompletedAt
		}
		return outbox.Enqueue(ctx, tx, outbox.Event{
			UserID:        p.UserID,
			AggregateType: "popup",
			AggregateID:   p.ID,
			EventType:     events.TypePopupCompleted,
			Payload:       payload,
		})
	})
}

// ListPopups returns the user's pop-ups newest first.
func (r *Repository) ListPopups(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Popup, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT ` + popupColumns + ` FROM popup_challenges WHERE user_id = $1`

	if cursor != nil {
		query += ` AND (scheduled_at, popup_id) < ($3, $4)`
		args = append(args, cursor.ScheduledAt, cursor.ID)
	}

	query += ` ORDER BY scheduled_at DESC, popup_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	results, err := collectPopups(rows)
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{ScheduledAt: last.ScheduledAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

var _ domain.Repository = (*Repository)(nil)
