package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/btouchard/crier/internal/auth"
	"github.com/btouchard/crier/internal/client/channel"
	"github.com/btouchard/crier/internal/client/inbox"
	"github.com/btouchard/crier/internal/client/rest"
	"github.com/btouchard/crier/internal/config"
)

func newListenCommand(load configLoader) *cobra.Command {
	var hubURL, apiURL, token string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect to the hub and print live notifications",
		Long: `Open the live notification channel and print a line per toast.

The channel reconnects on its own with jittered exponential backoff. Once the
retry budget is spent, send SIGHUP to start again with a fresh budget.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			setupLogging(cfg)

			if hubURL != "" {
				cfg.Client.HubURL = hubURL
			}
			if apiURL != "" {
				cfg.Client.APIURL = apiURL
			}
			if token != "" {
				cfg.Client.Token = token
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return listen(ctx, cfg.Client, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&hubURL, "hub", "", "hub websocket URL (overrides client.hub_url)")
	cmd.Flags().StringVar(&apiURL, "api", "", "REST API base URL (overrides client.api_url)")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (overrides client.token)")
	return cmd
}

func credentials(cfg config.ClientConfig) auth.CredentialProvider {
	if cfg.Token == "" && cfg.TokenFile != "" {
		return auth.NewFileCredentials(config.ExpandHome(cfg.TokenFile))
	}
	return auth.NewStaticCredentials(cfg.Token)
}

func listen(ctx context.Context, cfg config.ClientConfig, out io.Writer) error {
	creds := credentials(cfg)
	if !creds.Authenticated() {
		return fmt.Errorf("no credential: set client.token, client.token_file or CRIER_TOKEN")
	}

	toasts := inbox.NewToasts(cfg.ToastTTL, nil)
	toasts.OnPush(func(t inbox.Toast) { printToast(out, t) })

	notifications := inbox.NewStore(rest.New(cfg.APIURL, creds, nil), toasts, inbox.Options{
		DedupWindow:    cfg.DedupWindow,
		ReconcileDelay: cfg.ReconcileDelay,
	})
	defer notifications.Close()

	manager := channel.NewManager(channel.Config{
		URL:         cfg.HubURL,
		Credentials: creds,
		Backoff: channel.Backoff{
			Base:        cfg.BackoffBase,
			Cap:         cfg.BackoffCap,
			MaxAttempts: cfg.MaxAttempts,
		},
	})
	unsubscribe := manager.Subscribe(channel.KindReceiveNotification, notifications.HandleEvent)
	defer unsubscribe()
	manager.OnStateChange(func(s channel.State) {
		slog.Info("live channel state", "state", s.String(), "attempt", manager.Attempt())
	})

	if err := notifications.Hydrate(ctx); err != nil {
		slog.Warn("initial notification load failed", "error", err)
	} else {
		_, _ = fmt.Fprintf(out, "%d unread notification(s)\n", notifications.UnreadCount())
	}

	if err := manager.Start(ctx); err != nil {
		slog.Warn("live channel unavailable, retrying in background", "error", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := manager.Stop(stopCtx)
			cancel()
			return err
		case <-hup:
			slog.Info("restarting live channel")
			if err := manager.Start(ctx); err != nil {
				slog.Warn("live channel restart failed", "error", err)
			}
		}
	}
}

func printToast(out io.Writer, t inbox.Toast) {
	line := fmt.Sprintf("[%s] %s", t.Severity, t.Message)
	if t.TaskID != 0 {
		line += fmt.Sprintf(" (task #%d)", t.TaskID)
	}
	_, _ = fmt.Fprintln(out, line)
}
