// Package chatapi is the REST client for the chat service's session
// endpoints. It starts chat sessions, inspects them, creates follow-up
// tasks and tears sessions down. It holds no state of its own beyond the
// HTTP client; session bookkeeping belongs to the orchestrator.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/workspace/chat-client/internal/logging"
)

// TokenSource yields the bearer token attached to every request.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource returning a fixed token string.
type StaticToken string

func (s StaticToken) Token() string { return string(s) }

// Session is the result of a successful init call.
type Session struct {
	SessionID string `json:"session_id"`
	TaskID    string `json:"task_id"`
	SocketURL string `json:"websocket_url"`
	AgentName string `json:"agent_name"`
}

// SessionStatus is the snapshot returned by the status endpoint.
type SessionStatus struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	AgentName   string `json:"agent_name,omitempty"`
	ActiveTasks int    `json:"active_tasks,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// Task is the result of creating a follow-up task within a session.
type Task struct {
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
}

// Client talks to the chat service REST API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *slog.Logger
}

// New creates a Client for the given service base URL. A nil httpClient
// falls back to a client with a 30 second timeout.
func New(baseURL string, httpClient *http.Client, tokens TokenSource) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		log:     logging.Component("chatapi"),
	}
}

// InitSession starts a chat session for the given agent. On a non-2xx
// response it returns a *SessionError carrying the server's detail string.
// It never retries; the caller decides how to surface failures.
func (c *Client) InitSession(ctx context.Context, agentID string, metadata map[string]any) (*Session, error) {
	if agentID == "" {
		return nil, fmt.Errorf("chatapi: agent ID is required")
	}

	body := map[string]any{"agent_id": agentID}
	if metadata != nil {
		body["metadata"] = metadata
	}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/init", body, &session); err != nil {
		return nil, err
	}
	if session.SessionID == "" {
		return nil, fmt.Errorf("chatapi: init response missing session_id")
	}

	c.log.Debug("session initialised",
		"agentID", agentID, "sessionID", session.SessionID, "taskID", session.TaskID)
	return &session, nil
}

// SessionStatus fetches the current status snapshot for a session.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("chatapi: session ID is required")
	}
	var status SessionStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/chat/session/"+sessionID+"/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CreateTask requests a new task within an existing session.
func (c *Client) CreateTask(ctx context.Context, sessionID string) (*Task, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("chatapi: session ID is required")
	}
	var task Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/session/"+sessionID+"/task", nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteSession tears down a session on the server. Used best-effort at
// shutdown; a failure only means the server cleans up on its own timeout.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("chatapi: session ID is required")
	}
	return c.do(ctx, http.MethodDelete, "/api/v1/chat/session/"+sessionID, nil, nil)
}

// do performs one JSON request/response round trip. Non-2xx responses are
// converted into *SessionError with best-effort detail extraction.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("chatapi: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("chatapi: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chatapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("chatapi: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SessionError{
			StatusCode: resp.StatusCode,
			Detail:     extractDetail(respBody),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("chatapi: decode response: %w", err)
		}
	}
	return nil
}
