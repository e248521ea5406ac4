package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/workspace/chat-client/internal/chatapi"
	"github.com/workspace/chat-client/internal/logging"
	"github.com/workspace/chat-client/internal/retry"
)

// Loader fetches profiles from the platform API, retrying transient
// failures at startup.
type Loader struct {
	baseURL string
	http    *http.Client
	tokens  chatapi.TokenSource
	retry   retry.Config
	log     *slog.Logger
}

// NewLoader creates a Loader. A nil httpClient falls back to a client
// with a 30 second timeout.
func NewLoader(baseURL string, httpClient *http.Client, tokens chatapi.TokenSource, retryCfg retry.Config) *Loader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loader{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		retry:   retryCfg,
		log:     logging.Component("profile"),
	}
}

// Load fetches one profile by id. Transient failures (network errors,
// 5xx) are retried with backoff; 4xx responses are permanent.
func (l *Loader) Load(ctx context.Context, profileID string) (*Profile, error) {
	if profileID == "" {
		return nil, fmt.Errorf("profile: profile ID is required")
	}

	var prof Profile
	err := retry.Do(ctx, l.retry, "load profile", func(ctx context.Context) error {
		return l.fetch(ctx, profileID, &prof)
	})
	if err != nil {
		return nil, err
	}

	l.log.Debug("profile loaded",
		"profileID", prof.ID, "agents", len(prof.Agents), "widgets", len(prof.Widgets))
	return &prof, nil
}

func (l *Loader) fetch(ctx context.Context, profileID string, out *Profile) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.baseURL+"/api/v1/profiles/"+profileID, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("profile: build request: %w", err))
	}
	if l.tokens != nil {
		if token := l.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("profile: fetch %s: %w", profileID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("profile: read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fallthrough to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Permanent(fmt.Errorf("profile: fetch %s: status %d", profileID, resp.StatusCode))
	default:
		return fmt.Errorf("profile: fetch %s: status %d", profileID, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return retry.Permanent(fmt.Errorf("profile: decode %s: %w", profileID, err))
	}
	return nil
}
