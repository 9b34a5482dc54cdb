// Package cmd defines and implements the CLI commands for the linkcheck executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/app"
	"github.com/JakeFAU/linkcheck/internal/checkpoint"
	"github.com/JakeFAU/linkcheck/internal/config"
	"github.com/JakeFAU/linkcheck/internal/logging"
	"github.com/JakeFAU/linkcheck/internal/progress"
)

const shutdownTimeout = 30 * time.Second

var cfgFile string

// sessionKeyType is the key for storing the session in the context.
type sessionKeyType string

const sessionKey sessionKeyType = "session"

// App defines the services commands use.
// This allows us to inject a fake app during tests.
type App interface {
	Checkpoints() *checkpoint.Manager
	Emitter() progress.Emitter
	SetReady(ready bool)
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// session bundles what PersistentPreRunE builds for a subcommand.
type session struct {
	cfg    config.Config
	logger *zap.Logger
	app    App

	closeOnce sync.Once
}

// close shuts the app down and syncs the logger. Safe to call more than once.
func (s *session) close(ctx context.Context) {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.app.Close(ctx); err != nil {
			s.logger.Warn("shutdown incomplete", zap.Error(err))
		}
		_ = s.logger.Sync()
	})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linkcheck",
		Short: "Verify that every URL in a spreadsheet still loads.",
		Long: `linkcheck walks a CSV or Excel table, renders each URL in a headless
browser, and records a valid/invalid verdict per row. Progress is
checkpointed after every row so an interrupted run resumes where it stopped.`,
		SilenceUsage: true,

		// Runs before the subcommand: loads config with the subcommand's flags,
		// then builds and injects the application.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			sess := &session{cfg: cfg, logger: logger, app: appInstance}
			cmd.SetContext(context.WithValue(cmd.Context(), sessionKey, sess))
			return nil
		},

		// Cobra skips this hook when RunE fails, so subcommands also close
		// the session themselves.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if sess, err := sessionFrom(cmd.Context()); err == nil {
				sess.close(cmd.Context())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (env LINKCHECK_* and flags override it)")
	cmd.AddCommand(newCheckCmd())
	return cmd
}

func sessionFrom(ctx context.Context) (*session, error) {
	sess, ok := ctx.Value(sessionKey).(*session)
	if !ok || sess == nil {
		return nil, errors.New("application services not initialized")
	}
	return sess, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the run, which
// still flushes its results before exiting.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
