package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/simon/ssht/internal/bridge"
	"github.com/simon/ssht/internal/config"
	"github.com/simon/ssht/internal/logging"
	"github.com/simon/ssht/internal/state"
)

func SetVersionInfo(version, commit string) {
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
}

var rootCmd = &cobra.Command{
	Use:   "ssht <host>",
	Short: "Attach to tmux on a remote host and serve pane navigation on a local socket",
	Long: `Opens one ssh control connection to <host>, attaches to the remote tmux
session in the foreground, and answers "has_pane <dir>" / "move_pane <dir>"
on /tmp/ssht/<pid>.sock until the tmux client exits.

<host> is a nickname from ~/.config/ssht/config.yaml or any ssh destination.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger, logPath, err := logging.New(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("setup logging: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		var registry bridge.Registry
		store, err := state.Open()
		if err != nil {
			logger.Warn("bridge registry unavailable", zap.Error(err))
		} else {
			defer store.Close()
			registry = store
		}

		host := args[0]
		logger.Info("bridge start", zap.String("host", host), zap.String("log", logPath))

		b := &bridge.Bridge{
			Host:     host,
			Target:   cfg.Resolve(host),
			Config:   cfg,
			Logger:   logger,
			Registry: registry,
		}
		return b.Run(cmd.Context())
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
