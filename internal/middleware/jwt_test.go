package myMiddleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	userID   int
	username string
	err      error
}

func (v *stubValidator) ValidateToken(string) (int, string, error) {
	return v.userID, v.username, v.err
}

func authedEcho(t *testing.T, got *[2]any) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got[0] = r.Context().Value(UserKey)
		got[1] = r.Context().Value(UsernameKey)
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandle_MissingToken(t *testing.T) {
	req := require.New(t)
	mw := NewAuthMiddleware(&stubValidator{})

	rec := httptest.NewRecorder()
	mw.Handle(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))
	req.Equal(http.StatusUnauthorized, rec.Code)
}

func TestHandle_InvalidToken(t *testing.T) {
	req := require.New(t)
	mw := NewAuthMiddleware(&stubValidator{err: errors.New("expired")})

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	mw.Handle(http.NotFoundHandler()).ServeHTTP(rec, r)
	req.Equal(http.StatusUnauthorized, rec.Code)
}

func TestHandle_HeaderToken(t *testing.T) {
	req := require.New(t)
	mw := NewAuthMiddleware(&stubValidator{userID: 7, username: "alice"})

	var got [2]any
	r := httptest.NewRequest("GET", "/api/users", nil)
	r.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	mw.Handle(authedEcho(t, &got)).ServeHTTP(rec, r)

	req.Equal(http.StatusOK, rec.Code)
	req.Equal(7, got[0])
	req.Equal("alice", got[1])
}

func TestHandle_QueryTokenFallback(t *testing.T) {
	req := require.New(t)
	mw := NewAuthMiddleware(&stubValidator{userID: 7, username: "alice"})

	var got [2]any
	r := httptest.NewRequest("GET", "/ws?token=good-token", nil)
	rec := httptest.NewRecorder()
	mw.Handle(authedEcho(t, &got)).ServeHTTP(rec, r)

	req.Equal(http.StatusOK, rec.Code)
	req.Equal(7, got[0])
}
