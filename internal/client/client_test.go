package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
)

func TestLoginThenScan(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asha@example.edu", body["credential"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "tok",
			"expires_at": time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC),
			"student":    attendance.Identity{Name: "Asha", Roll: "R1", Email: "asha@example.edu"},
		})
	})
	mux.HandleFunc("/v1/scans", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "break", body["intent"])
		_ = json.NewEncoder(w).Encode(attendance.Result{
			Status: attendance.StatusEnteredFirst,
			State:  attendance.StatePresent,
			Date:   "01/01/2024",
			Entry:  attendance.AttendanceEntry{StudentRoll: "R1", StudentEntryTime: "09:00:00"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New(srv.URL+"/", "")
	ctx := context.Background()

	login, err := c.Login(ctx, "asha@example.edu")
	require.NoError(t, err)
	assert.Equal(t, "R1", login.Student.Roll)
	assert.Equal(t, "tok", c.Token)

	res, err := c.Scan(ctx, `{"time":"09:00:00"}`, attendance.IntentBreak)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusEnteredFirst, res.Status)
	assert.Equal(t, "09:00:00", res.Entry.StudentEntryTime)
}

func TestErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/me":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid session"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"attendance store unavailable"}`))
		}
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "stale")
	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = c.Scan(context.Background(), "{}", attendance.IntentExit)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "attendance store unavailable", apiErr.Message)
}

func TestSessionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qrattend", SessionFile)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	_, err := LoadSession(path, now)
	assert.ErrorIs(t, err, ErrNoSession)

	saved := Saved{
		Server:    "http://localhost:8081",
		Token:     "tok",
		ExpiresAt: now.Add(time.Hour),
		Student:   attendance.Identity{Name: "Asha", Roll: "R1", Email: "asha@example.edu"},
	}
	require.NoError(t, SaveSession(path, saved))

	got, err := LoadSession(path, now)
	require.NoError(t, err)
	assert.Equal(t, saved.Student, got.Student)
	assert.Equal(t, "tok", got.Token)

	_, err = LoadSession(path, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrNoSession, "expired")

	require.NoError(t, ClearSession(path))
	require.NoError(t, ClearSession(path))
	_, err = LoadSession(path, now)
	assert.ErrorIs(t, err, ErrNoSession)
}
