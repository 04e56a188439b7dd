// Package commands implements the chatsync CLI commands.
package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tribalmingle/mobileapp-sub000/internal/api"
	"github.com/tribalmingle/mobileapp-sub000/internal/engine"
	"github.com/tribalmingle/mobileapp-sub000/internal/session"
)

var (
	configPath string
	envFile    string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Conversation sync engine for the dating app",
	Long: `chatsync keeps conversations in sync with the messaging API.

Configuration is read from ~/.chatsync/config.toml and may be overridden by
~/.chatsync/.env or the environment:
  CHATSYNC_BASE_URL   - API base URL
  CHATSYNC_TOKEN      - bearer token
  CHATSYNC_SELF_ID    - your user id
  CHATSYNC_NATS_URL   - optional NATS server for push notifications`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.chatsync/config.toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file (default ~/.chatsync/.env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(blockCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// withEngine builds the engine, starts it, runs fn and stops it again.
func withEngine(ctx context.Context, exclusive bool, fn func(ctx context.Context, e *engine.Engine) error) error {
	cfg, err := session.ResolveConfig(configPath, envFile)
	if err != nil {
		return err
	}

	var e *engine.Engine
	opts := []fx.Option{
		engine.Module(engine.Params{Config: cfg, Debug: debug, Exclusive: exclusive}),
		fx.Populate(&e),
	}
	if !debug {
		opts = append(opts, fx.NopLogger)
	}
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := explain(fn(ctx, e))

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// explain adds a hint to errors the user can fix from their configuration.
func explain(err error) error {
	switch api.StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w (check the token in config.toml or CHATSYNC_TOKEN)", err)
	}
	return err
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(out(cmd), format, args...)
}
