package sqlite

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/internal/models"
)

func (s *Store) InsertCompletion(ctx context.Context, completion *models.Completion) (*models.Completion, error) {
	if completion.ID.IsZero() {
		completion.ID = primitive.NewObjectID()
	}
	completion.CompletedAt = completion.CompletedAt.UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO habit_completions (id, user_id, habit_id, completed_at, day)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(habit_id, day) DO NOTHING`,
		completion.ID.Hex(), completion.UserID.Hex(), completion.HabitID.Hex(), formatTime(completion.CompletedAt), completion.Day,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert completion: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to insert completion: %w", err)
	}
	if n == 0 {
		existing, err := s.queryCompletions(ctx,
			`SELECT id, user_id, habit_id, completed_at, day FROM habit_completions WHERE habit_id = ? AND day = ?`,
			completion.HabitID.Hex(), completion.Day)
		if err != nil || len(existing) == 0 {
			return nil, apperrors.ErrDuplicateCompletion
		}
		return &existing[0], apperrors.ErrDuplicateCompletion
	}
	return completion, nil
}

func (s *Store) ListCompletionsByHabit(ctx context.Context, habitID primitive.ObjectID, window models.TimeRange) ([]models.Completion, error) {
	query, args := rangeQuery("habit_id", habitID, window)
	return s.queryCompletions(ctx, query, args...)
}

func (s *Store) ListCompletionsByOwner(ctx context.Context, ownerID primitive.ObjectID, window models.TimeRange) ([]models.Completion, error) {
	query, args := rangeQuery("user_id", ownerID, window)
	return s.queryCompletions(ctx, query, args...)
}

func (s *Store) DeleteCompletionsByHabit(ctx context.Context, habitID primitive.ObjectID) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM habit_completions WHERE habit_id = ?`, habitID.Hex())
	if err != nil {
		return 0, fmt.Errorf("failed to delete completions: %w", err)
	}
	return result.RowsAffected()
}

func rangeQuery(column string, id primitive.ObjectID, window models.TimeRange) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, user_id, habit_id, completed_at, day FROM habit_completions WHERE `)
	sb.WriteString(column)
	sb.WriteString(` = ?`)
	args := []interface{}{id.Hex()}

	if !window.From.IsZero() {
		sb.WriteString(` AND completed_at >= ?`)
		args = append(args, formatTime(window.From))
	}
	if !window.To.IsZero() {
		sb.WriteString(` AND completed_at < ?`)
		args = append(args, formatTime(window.To))
	}
	return sb.String(), args
}

func (s *Store) queryCompletions(ctx context.Context, query string, args ...interface{}) ([]models.Completion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list completions: %w", apperrors.ErrTransientFetch, err)
	}
	defer rows.Close()

	completions := []models.Completion{}
	for rows.Next() {
		var (
			c                                models.Completion
			id, userID, habitID, completedAt string
		)
		if err := rows.Scan(&id, &userID, &habitID, &completedAt, &c.Day); err != nil {
			return nil, err
		}
		if c.ID, err = parseID(id); err != nil {
			return nil, err
		}
		if c.UserID, err = parseID(userID); err != nil {
			return nil, err
		}
		if c.HabitID, err = parseID(habitID); err != nil {
			return nil, err
		}
		if c.CompletedAt, err = parseTime(completedAt); err != nil {
			return nil, err
		}
		completions = append(completions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list completions: %w", apperrors.ErrTransientFetch, err)
	}
	return completions, nil
}
