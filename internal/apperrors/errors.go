// Package apperrors holds the error taxonomy shared by the stores, the
// services and the HTTP layer.
package apperrors

import (
	"errors"
	"net/http"
)

var (
	// ErrNotOwner rejects a write against a resource the caller does not own.
	// Never retried automatically.
	ErrNotOwner = errors.New("resource is not owned by the caller")

	// ErrDuplicateCompletion reports a second completion for the same habit
	// on the same calendar day. Callers treat it as an idempotent no-op.
	ErrDuplicateCompletion = errors.New("habit already completed for this day")

	// ErrTransientFetch wraps backend failures during list or reconcile.
	// The operation is retried on the next trigger.
	ErrTransientFetch = errors.New("transient fetch failure")

	// ErrSubscriptionLost reports a dropped change-notification subscription.
	ErrSubscriptionLost = errors.New("subscription lost")

	ErrHabitNotFound      = errors.New("habit not found")
	ErrInvalidHabit       = errors.New("invalid habit")
	ErrInvalidCompletion  = errors.New("invalid completion")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidUser        = errors.New("invalid user")
)

// UserMessage returns a short human-readable message for a failed write.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotOwner):
		return "You can only change your own habits"
	case errors.Is(err, ErrDuplicateCompletion):
		return "Habit already completed today"
	case errors.Is(err, ErrHabitNotFound):
		return "Habit not found"
	case errors.Is(err, ErrInvalidHabit), errors.Is(err, ErrInvalidCompletion), errors.Is(err, ErrInvalidUser):
		return err.Error()
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrEmailTaken):
		return "Email already in use"
	case errors.Is(err, ErrTransientFetch):
		return "Service temporarily unavailable, please try again"
	}
	return "Something went wrong, please try again"
}

// HTTPStatus maps an error to the status code the handlers respond with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrHabitNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateCompletion), errors.Is(err, ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidHabit), errors.Is(err, ErrInvalidCompletion), errors.Is(err, ErrInvalidUser):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTransientFetch), errors.Is(err, ErrSubscriptionLost):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
