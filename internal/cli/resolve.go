package cli

import (
	"fmt"

	"TradeBot/internal/agent/builtin"
	"TradeBot/internal/registry"
	applogger "TradeBot/pkg/logger"

	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <path>...",
		Short: "Check strategy paths against the built-in registry",
		Long: `Resolves each <package>.<module>:<Symbol> path the way the supervisor does at
startup, without installing anything. Example:
  tradebot resolve tradebot.agents.sma_agent:SMAAgent`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pluginDir, _ := cmd.Flags().GetString("plugin-dir")
			opts := []registry.Option{registry.WithLogger(applogger.NewNop())}
			if pluginDir != "" {
				opts = append(opts, registry.WithSource(registry.NewPluginSource(pluginDir)))
			}
			reg := registry.New(opts...)
			builtin.Register(reg, applogger.NewNop())

			failed := 0
			for _, path := range args {
				res, err := reg.Resolve(contextOr(cmd.Context()), path)
				if err != nil {
					failed++
					cmd.Printf("%s %s\n  %s\n", errorStyle.Render(registry.KindOf(err).String()), path, mutedStyle.Render(err.Error()))
					continue
				}
				cmd.Printf("%s %s (%s)\n", healthyStyle.Render("ok"), res.Path, res.Source)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d paths did not resolve", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().String("plugin-dir", "", "also search Go plugins in this directory")
	return cmd
}
