// Chat client for link-in-bio profiles: loads a profile, connects to its
// AI agents over the chat service and drives the conversation in a
// terminal UI.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/workspace/chat-client/internal/auth"
	"github.com/workspace/chat-client/internal/chatapi"
	"github.com/workspace/chat-client/internal/config"
	"github.com/workspace/chat-client/internal/history"
	"github.com/workspace/chat-client/internal/logging"
	"github.com/workspace/chat-client/internal/orchestrator"
	"github.com/workspace/chat-client/internal/profile"
	"github.com/workspace/chat-client/internal/retry"
	"github.com/workspace/chat-client/internal/socket"
	"github.com/workspace/chat-client/internal/tui"
)

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := buildAuth(ctx, cfg)
	if err != nil {
		slog.Error("failed to validate session token", "error", err)
		os.Exit(1)
	}
	tokens := chatapi.StaticToken(provider.Token())

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	loader := profile.NewLoader(cfg.ChatServiceURL, httpClient, tokens, retry.Config{
		InitialDelay: cfg.ProfileRetryInitial,
		MaxDelay:     cfg.ProfileRetryMax,
		MaxAttempts:  cfg.ProfileRetryLimit,
	})
	prof, err := loader.Load(ctx, cfg.ProfileID)
	if err != nil {
		slog.Error("failed to load profile", "profileID", cfg.ProfileID, "error", err)
		os.Exit(1)
	}
	if len(prof.Agents) == 0 {
		slog.Error("profile has no agents to chat with", "profileID", cfg.ProfileID)
		os.Exit(1)
	}

	hist, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		// Chat still works without local history.
		slog.Warn("failed to open history database", "path", cfg.HistoryDBPath, "error", err)
		hist = nil
	}
	defer hist.Close()

	metadata := map[string]any{"profile_id": prof.ID}
	if userID := provider.UserID(); userID != "" {
		metadata["user_id"] = userID
	}

	api := chatapi.New(cfg.ChatServiceURL, httpClient, tokens)
	orch := orchestrator.New(orchestrator.Options{
		ServiceURL: cfg.ChatServiceURL,
		Metadata:   metadata,
		Socket: socket.Options{
			HandshakeTimeout: cfg.WSHandshakeTimeout,
			ReadBufferSize:   cfg.WSReadBufferSize,
			WriteBufferSize:  cfg.WSWriteBufferSize,
		},
		PingInterval: cfg.PingInterval,
		HistoryLimit: cfg.HistoryPerChat,
	}, api, prof, hist, nil)
	defer orch.Close()

	slog.Info("chat client ready",
		"profileID", prof.ID, "agents", len(prof.Agents), "anonymous", provider.IsAnonymous())

	if err := tui.Run(orch); err != nil {
		slog.Error("terminal UI failed", "error", err)
		os.Exit(1)
	}

	slog.Info("chat client stopped")
}

// buildAuth turns the configured session token into an auth provider. With
// a JWKS endpoint the token's signature and claims are verified locally;
// otherwise the token is accepted as-is and the server enforces it. No
// token at all means an anonymous visitor.
func buildAuth(ctx context.Context, cfg *config.Config) (*auth.Provider, error) {
	if cfg.SessionToken == "" {
		return auth.Anonymous(), nil
	}
	if cfg.JWKSEndpoint != "" {
		return auth.NewVerifiedProvider(ctx, cfg.SessionToken, cfg.JWKSEndpoint, cfg.JWTAudience, cfg.JWTIssuer)
	}
	return auth.NewProvider(cfg.SessionToken)
}
