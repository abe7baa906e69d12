// Package client talks to the attendance API on behalf of the scanning station.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"qrattend/internal/attendance"
)

// ErrUnauthorized means the saved session is no longer accepted.
var ErrUnauthorized = errors.New("session expired or signed out")

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// LoginResult is returned by a successful sign-in.
type LoginResult struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	Student   attendance.Identity `json:"student"`
}

// EntryResult is one student's entry with its derived state.
type EntryResult struct {
	Date  string                      `json:"date"`
	State attendance.State            `json:"state"`
	Entry *attendance.AttendanceEntry `json:"entry"`
}

// Client calls the attendance API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client for baseURL.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login exchanges a provider credential for a session.
func (c *Client) Login(ctx context.Context, credential string) (*LoginResult, error) {
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", map[string]string{"credential": credential}, &out); err != nil {
		return nil, err
	}
	c.Token = out.Token
	return &out, nil
}

// Logout ends the session on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/logout", nil, nil)
}

// Me returns the identity bound to the session.
func (c *Client) Me(ctx context.Context) (*attendance.Identity, error) {
	var out struct {
		Student attendance.Identity `json:"student"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.Student, nil
}

// Scan submits decoded QR text with the chosen intent.
func (c *Client) Scan(ctx context.Context, payload string, intent attendance.Intent) (*attendance.Result, error) {
	body := map[string]string{"payload": payload, "intent": string(intent)}
	var out attendance.Result
	if err := c.do(ctx, http.MethodPost, "/v1/scans", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Today returns the current day's record.
func (c *Client) Today(ctx context.Context) (*attendance.DayRecord, error) {
	var out attendance.DayRecord
	if err := c.do(ctx, http.MethodGet, "/v1/attendance/today", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mine returns the caller's own entry for today.
func (c *Client) Mine(ctx context.Context) (*EntryResult, error) {
	var out EntryResult
	if err := c.do(ctx, http.MethodGet, "/v1/attendance/today/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks the API is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		if resp.StatusCode == http.StatusUnauthorized && path != "/v1/auth/login" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
