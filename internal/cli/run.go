package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"TradeBot/internal/di"
	"TradeBot/pkg/config"
	applogger "TradeBot/pkg/logger"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the supervisor until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadWithEnv(path)
			if err != nil {
				return err
			}
			l, err := applogger.New(&applogger.Config{
				Level:  cfg.Logger.Level,
				Format: cfg.Logger.Format,
				Output: cfg.Logger.Output,
			})
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}

			ctx, stop := signal.NotifyContext(contextOr(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			l.Info("starting tradebot",
				applogger.String("env", cfg.Environment),
				applogger.String("version", version),
				applogger.Int("strategies", len(cfg.Strategies)),
				applogger.Strings("symbols", cfg.MarketData.Symbols),
				applogger.String("heartbeat_sink", cfg.Heartbeat.Sink))

			app, cleanup, err := di.InitializeApp(ctx, cfg, l)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer cleanup()
			return app.Run(ctx)
		},
	}
}

// contextOr returns ctx, or Background when cobra ran without one.
func contextOr(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
