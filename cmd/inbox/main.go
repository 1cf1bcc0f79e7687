// Command inbox follows one member's notifications and access requests from a
// terminal. It keeps a live view through the realtime client and re-reads the
// authoritative state after every hint or reconnect.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/app"
	"github.com/baiweichihu/26b-website-sub001/internal/realtime"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	Server       string
	Email        string
	Password     string
	LogLevel     string
	TokenRefresh time.Duration
}

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Follow your class notifications in real time",
		Long: `Log in, print the unread count and latest request status, and keep
them current over the realtime connection.

Example:
  inbox --server http://localhost:8080 --email chen@alumni.class26b.site`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Password == "" {
				opts.Password = os.Getenv("INBOX_PASSWORD")
			}
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", envOr("INBOX_SERVER", "http://localhost:8080"), "API base URL")
	cmd.Flags().StringVar(&opts.Email, "email", os.Getenv("INBOX_EMAIL"), "account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (or INBOX_PASSWORD)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "warn", "debug, info, warn or error")
	cmd.Flags().DurationVar(&opts.TokenRefresh, "token-refresh", time.Hour, "how often to rotate tokens")

	return cmd
}

func run(parent context.Context, opts *options) error {
	if opts.Email == "" || opts.Password == "" {
		return fmt.Errorf("email and password are required")
	}
	if parent == nil {
		parent = context.Background()
	}
	logger := app.NewLogger("development", opts.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := realtime.NewHTTPSource(opts.Server, 10*time.Second)
	auth, err := api.Login(ctx, opts.Email, opts.Password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	principal := realtime.NewPrincipalState()
	principal.Subscribe(func(snap *realtime.PrincipalSnapshot) {
		if snap.Principal == nil {
			fmt.Println("signed out")
			return
		}
		fmt.Printf("signed in as %s (%s)\n", snap.Principal.Nickname, snap.Tier)
	})
	principal.Replace(realtime.SnapshotFromResponse(&auth.User))

	client := realtime.NewClient(realtime.Options{
		URL:   wsURL(opts.Server),
		Token: api.Token,
	}, logger)
	defer client.Close()

	view := realtime.NewViewModel(api, client, auth.User.ID, logger)
	view.OnChange(func(s realtime.ViewState) {
		if s.Err != nil {
			fmt.Printf("[%s] refresh failed: %v\n", s.LastReason, s.Err)
			return
		}
		fmt.Printf("[%s] %s unread=%d request=%s\n",
			s.LastReason, s.RefreshedAt.Format("15:04:05"), s.UnreadCount, s.Status)
	})
	if err := view.Start(ctx); err != nil {
		logger.Warn("initial view failed", zap.Error(err))
	}
	defer view.Close()

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("realtime client stopped", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(opts.TokenRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = api.Logout(logoutCtx)
			cancel()
			principal.Replace(realtime.NewSnapshot(nil))
			return nil
		case <-ticker.C:
			if err := api.Refresh(ctx); err != nil {
				logger.Warn("token refresh failed", zap.Error(err))
				continue
			}
			me, err := api.Me(ctx)
			if err != nil {
				logger.Warn("identity reload failed", zap.Error(err))
				continue
			}
			principal.Replace(realtime.SnapshotFromResponse(me.User))
		}
	}
}

// wsURL turns the API base URL into the websocket endpoint.
func wsURL(server string) string {
	server = strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(server, "https://"):
		server = "wss://" + strings.TrimPrefix(server, "https://")
	case strings.HasPrefix(server, "http://"):
		server = "ws://" + strings.TrimPrefix(server, "http://")
	}
	return server + "/api/ws"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
