// Package api is the HTTP client for the registration and event endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lyfcircle/circle/internal/activity"
	"github.com/lyfcircle/circle/internal/survey"
)

const (
	userPath  = "/api/user"
	eventPath = "/api/event"

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 1 << 20
)

// ErrNoUserID is returned when a registration response names no user.
var ErrNoUserID = errors.New("api: response carried no user id")

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the backend at BaseURL.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a client. A zero timeout means no client-side limit.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// RegisterUser posts the completed survey and returns the assigned user id.
func (c *Client) RegisterUser(ctx context.Context, form survey.FormData) (string, error) {
	body, err := json.Marshal(form)
	if err != nil {
		return "", fmt.Errorf("api: encode form: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, userPath, body)
	if err != nil {
		return "", err
	}
	id, err := parseUserID(data)
	if err != nil {
		return "", err
	}
	c.log.Debug().Str("user_id", id).Msg("user registered")
	return id, nil
}

// Submit implements survey.Submitter.
func (c *Client) Submit(ctx context.Context, form survey.FormData) (string, error) {
	return c.RegisterUser(ctx, form)
}

// Events fetches the activity list. It implements activity.Source.
func (c *Client) Events(ctx context.Context) ([]activity.Activity, error) {
	data, err := c.do(ctx, http.MethodGet, eventPath, nil)
	if err != nil {
		return nil, err
	}
	var list []activity.Activity
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("api: decode events: %w", err)
	}
	return list, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("api: read %s: %w", path, err)
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// parseUserID extracts the user id from a registration response. The id may
// be a bare JSON string or number, or sit under id, userId or user_id.
func parseUserID(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", ErrNoUserID
	}
	if id, ok := scalarID(data); ok {
		return id, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("api: decode registration response: %w", err)
	}
	for _, key := range []string{"id", "userId", "user_id"} {
		if raw, ok := obj[key]; ok {
			if id, ok := scalarID(raw); ok {
				return id, nil
			}
		}
	}
	return "", ErrNoUserID
}

func scalarID(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String(), true
		}
	}
	return "", false
}
