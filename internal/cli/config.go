package cli

import (
	"TradeBot/pkg/config"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sample [path]",
		Short: "Write a starter config to path, or print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := config.WriteSample(args[0]); err != nil {
					return err
				}
				cmd.Println(healthyStyle.Render("wrote ") + args[0])
				return nil
			}
			b, err := config.Sample()
			if err != nil {
				return err
			}
			cmd.Print(string(b))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load the config with env overrides and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadWithEnv(path)
			if err != nil {
				return err
			}
			cmd.Println(healthyStyle.Render("config ok"))
			cmd.Printf("  environment  %s\n", cfg.Environment)
			cmd.Printf("  strategies   %d\n", len(cfg.Strategies))
			cmd.Printf("  symbols      %v\n", cfg.MarketData.Symbols)
			cmd.Printf("  sink         %s\n", cfg.Heartbeat.Sink)
			cmd.Printf("  cache        %s\n", cfg.Cache.Backend)
			cmd.Printf("  kafka        %s\n", enabled(cfg.Kafka.Enabled))
			cmd.Printf("  orders       %s\n", enabled(cfg.Orders.Enabled))
			cmd.Printf("  auto-install %s\n", enabled(cfg.Registry.AutoInstall))
			return nil
		},
	})
	return cmd
}

func enabled(b bool) string {
	if b {
		return "on"
	}
	return mutedStyle.Render("off")
}
