package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/btouchard/crier/internal/api"
	"github.com/btouchard/crier/internal/auth"
	"github.com/btouchard/crier/internal/config"
	"github.com/btouchard/crier/internal/hub"
	crimcp "github.com/btouchard/crier/internal/mcp"
	"github.com/btouchard/crier/internal/middleware"
	"github.com/btouchard/crier/internal/notify"
	"github.com/btouchard/crier/internal/store"
	"github.com/btouchard/crier/internal/task"
	"github.com/btouchard/crier/internal/tunnel"
)

const cleanupInterval = time.Hour

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the crier server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			setupLogging(cfg)

			slog.Info("starting crier",
				"version", version,
				"host", cfg.Server.Host,
				"port", cfg.Server.Port)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- SQLite Store ---
	dbPath := config.ExpandHome(cfg.Database.Path)
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slog.Info("database opened", "path", dbPath)

	// --- Credentials ---
	secret, err := auth.SigningSecret(cfg.Auth.SigningSecret, config.ExpandHome(cfg.Auth.SecretDir))
	if err != nil {
		return fmt.Errorf("loading signing secret: %w", err)
	}
	verifier := auth.NewVerifier(secret, cfg.Auth.Issuer)

	// --- Event Hub ---
	var backplane hub.Backplane
	if cfg.Hub.RedisURL != "" {
		rb, err := hub.DialRedisBackplane(ctx, cfg.Hub.RedisURL, cfg.Hub.RedisChannel)
		if err != nil {
			return fmt.Errorf("connecting redis backplane: %w", err)
		}
		defer func() { _ = rb.Close() }()
		backplane = rb
		slog.Info("redis backplane connected", "channel", cfg.Hub.RedisChannel)
	}
	events := hub.New(verifier, backplane, hub.Options{
		SendBufferSize: cfg.Hub.SendBufferSize,
		MaxMessageSize: cfg.Hub.MaxMessageSize,
	})
	go events.Run(ctx)

	// --- Task State Machine ---
	tasks := task.NewService(db)
	go tasks.RunExpiryLoop(ctx, cfg.Tasks.ExpiryInterval)

	// --- MCP Server ---
	mcpServer := crimcp.NewServer(&crimcp.Deps{Tasks: tasks, Version: version})

	// --- Notifications ---
	notifier := notify.NewHub(
		notify.NewPushNotifier(events),
		notify.NewMCPNotifier(mcpServer, 0),
	)
	tasks.SetNotifyFunc(func(ev task.Event) {
		notifier.Notify(notify.Event{
			Type:           string(ev.Type),
			TaskID:         ev.TaskID,
			UserID:         ev.Recipient,
			NotificationID: ev.NotificationID,
			Message:        ev.Message,
			Severity:       ev.Severity,
			CreatedAt:      ev.CreatedAt,
		})
	})

	go runCleanupLoop(ctx, db, time.Duration(cfg.Database.RetentionDays)*24*time.Hour)

	// --- HTTP Router ---
	r := chi.NewRouter()
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"ok","connections":%d}`, events.ClientCount())
	})

	// The hub authenticates the upgrade itself so browsers can pass the
	// token as a query parameter.
	r.Handle(cfg.Hub.Path, events)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(verifier))
		api.New(tasks, db).Routes(r)
		if cfg.MCP.Enabled {
			r.Handle("/mcp", crimcp.NewHTTPHandler(mcpServer))
		}
	})

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("crier is ready", "addr", addr, "hub", cfg.Hub.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- Tunnel ---
	if cfg.Tunnel.Enabled {
		tun := tunnel.NewNgrok(cfg.Tunnel.AuthToken, cfg.Tunnel.Domain)
		publicURL, err := tun.Start(ctx, addr)
		if err != nil {
			return err
		}
		defer func() { _ = tun.Close() }()

		slog.Info("hub reachable through tunnel", "url", tunnel.WebsocketURL(publicURL, cfg.Hub.Path))
		go func() {
			if err := srv.Serve(tun.Listener()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("tunnel: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func runCleanupLoop(ctx context.Context, db store.Store, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		if err := db.Cleanup(retention); err != nil {
			slog.Warn("cleanup failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
