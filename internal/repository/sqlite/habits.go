package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/internal/models"
)

const habitColumns = `id, user_id, title, description, frequency, streak_count, last_completed, created_at, updated_at`

func (s *Store) CreateHabit(ctx context.Context, habit *models.Habit) (*models.Habit, error) {
	if habit.ID.IsZero() {
		habit.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	habit.CreatedAt = now
	habit.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habits (`+habitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		habit.ID.Hex(), habit.UserID.Hex(), habit.Title, habit.Description, string(habit.Frequency),
		habit.StreakCount, formatTime(habit.LastCompleted), formatTime(habit.CreatedAt), formatTime(habit.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert habit: %w", err)
	}
	return habit, nil
}

func (s *Store) GetHabitByID(ctx context.Context, id primitive.ObjectID) (*models.Habit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ?`, id.Hex())
	habit, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrHabitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get habit: %w", apperrors.ErrTransientFetch, err)
	}
	return habit, nil
}

func (s *Store) ListHabitsByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Habit, error) {
	return s.queryHabits(ctx, `SELECT `+habitColumns+` FROM habits WHERE user_id = ? ORDER BY created_at, id`, ownerID.Hex())
}

func (s *Store) ListAllHabits(ctx context.Context, limit int64) ([]models.Habit, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryHabits(ctx, `SELECT `+habitColumns+` FROM habits ORDER BY id LIMIT ?`, limit)
}

func (s *Store) UpdateAggregate(ctx context.Context, id primitive.ObjectID, streakCount int, lastCompleted time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE habits SET streak_count = ?, last_completed = ?, updated_at = ?
		WHERE id = ?`,
		streakCount, formatTime(lastCompleted), formatTime(time.Now()), id.Hex(),
	)
	if err != nil {
		return fmt.Errorf("%w: update habit aggregate: %w", apperrors.ErrTransientFetch, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperrors.ErrHabitNotFound
	}
	return nil
}

func (s *Store) DeleteHabit(ctx context.Context, id primitive.ObjectID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM habits WHERE id = ?`, id.Hex())
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperrors.ErrHabitNotFound
	}
	return nil
}

func (s *Store) queryHabits(ctx context.Context, query string, args ...interface{}) ([]models.Habit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list habits: %w", apperrors.ErrTransientFetch, err)
	}
	defer rows.Close()

	habits := []models.Habit{}
	for rows.Next() {
		habit, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, *habit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list habits: %w", apperrors.ErrTransientFetch, err)
	}
	return habits, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHabit(row scanner) (*models.Habit, error) {
	var (
		h                                   models.Habit
		id, userID, frequency               string
		lastCompleted, createdAt, updatedAt string
	)
	err := row.Scan(&id, &userID, &h.Title, &h.Description, &frequency, &h.StreakCount, &lastCompleted, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if h.ID, err = parseID(id); err != nil {
		return nil, err
	}
	if h.UserID, err = parseID(userID); err != nil {
		return nil, err
	}
	h.Frequency = models.Frequency(frequency)
	if h.LastCompleted, err = parseTime(lastCompleted); err != nil {
		return nil, err
	}
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if h.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}
