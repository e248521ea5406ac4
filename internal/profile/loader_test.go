package profile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/workspace/chat-client/internal/chatapi"
	"github.com/workspace/chat-client/internal/retry"
)

func fastRetry() retry.Config {
	return retry.Config{
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		MaxAttempts:  3,
	}
}

const profileBody = `{
	"id": "prof-1",
	"username": "maria",
	"display_name": "Maria",
	"agents": [{"id": "agent-1", "name": "Helper"}],
	"widgets": [
		{"id": "w1", "kind": "link", "enabled": true, "data": {"title": "Blog", "url": "https://b.example"}},
		{"id": "w2", "kind": "agent", "enabled": true, "data": {"agent_id": "agent-1"}}
	]
}`

func TestLoaderLoad(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(profileBody))
	}))
	defer srv.Close()

	l := NewLoader(srv.URL, nil, chatapi.StaticToken("tok"), fastRetry())
	prof, err := l.Load(context.Background(), "prof-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if gotPath != "/api/v1/profiles/prof-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth = %q", gotAuth)
	}
	if prof.Username != "maria" || len(prof.Agents) != 1 || len(prof.Widgets) != 2 {
		t.Fatalf("unexpected profile: %+v", prof)
	}
	if prof.Widgets[1].Kind != WidgetAgent {
		t.Fatalf("widget kind = %q, want agent", prof.Widgets[1].Kind)
	}
}

func TestLoaderRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(profileBody))
	}))
	defer srv.Close()

	l := NewLoader(srv.URL, nil, nil, fastRetry())
	prof, err := l.Load(context.Background(), "prof-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d, want 3", atomic.LoadInt32(&calls))
	}
	if prof.ID != "prof-1" {
		t.Fatalf("unexpected profile: %+v", prof)
	}
}

func TestLoaderDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := NewLoader(srv.URL, nil, nil, fastRetry())
	if _, err := l.Load(context.Background(), "prof-404"); err == nil {
		t.Fatal("expected error for 404")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d, 4xx must not be retried", atomic.LoadInt32(&calls))
	}
}
