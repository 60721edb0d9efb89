package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/internal/models"
	"github.com/Dias221467/Habit_Streaks/internal/repository"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, hashed_password, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO NOTHING`,
		user.ID.Hex(), user.Username, user.Email, user.HashedPassword, formatTime(user.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, apperrors.ErrEmailTaken
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `email = ?`, strings.TrimSpace(email))
}

func (s *Store) GetUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.getUser(ctx, `id = ?`, id.Hex())
}

func (s *Store) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, hashed_password, created_at FROM users WHERE `+where, arg)

	var (
		u             models.User
		id, createdAt string
	)
	err := row.Scan(&id, &u.Username, &u.Email, &u.HashedPassword, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u.ID, err = parseID(id); err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}
