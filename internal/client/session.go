package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"qrattend/internal/attendance"
)

// SessionFile is the file name of the saved sign-in.
const SessionFile = "student.json"

// ErrNoSession means nobody is signed in on this station.
var ErrNoSession = errors.New("not signed in")

// Saved is the durable sign-in kept between runs.
type Saved struct {
	Server    string              `json:"server"`
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	Student   attendance.Identity `json:"student"`
}

// DefaultSessionPath is <user config dir>/qrattend/student.json.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "qrattend", SessionFile), nil
}

// LoadSession reads the saved sign-in. Expired sessions count as absent.
func LoadSession(path string, now time.Time) (*Saved, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var s Saved
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", path, err)
	}
	if s.Token == "" || (!s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)) {
		return nil, ErrNoSession
	}
	return &s, nil
}

// SaveSession writes s with owner-only permissions.
func SaveSession(path string, s Saved) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ClearSession removes the saved sign-in; a missing file is fine.
func ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
