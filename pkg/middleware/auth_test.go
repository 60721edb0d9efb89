package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	jwtutil "github.com/Dias221467/Habit_Streaks/pkg/jwt"
)

const secret = "test-secret"

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(UserIDFromContext(r.Context()).Hex()))
	})
}

func request(t *testing.T, h http.Handler, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	userID := primitive.NewObjectID()
	token, err := jwtutil.GenerateToken(userID.Hex(), "a@example.com", secret, time.Hour)
	require.NoError(t, err)

	h := AuthMiddleware(secret)(echoUser())

	rec := request(t, h, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID.Hex(), rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, request(t, h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(t, h, "Bearer nope").Code)
	assert.Equal(t, http.StatusUnauthorized, request(t, h, token).Code)
}

func TestOptionalAuthMiddleware(t *testing.T) {
	h := OptionalAuthMiddleware(secret)(echoUser())

	rec := request(t, h, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, primitive.NilObjectID.Hex(), rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, request(t, h, "Bearer nope").Code)
}

func TestLoggingMiddleware_KeepsStatus(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	assert.Equal(t, http.StatusTeapot, request(t, h, "").Code)
}
