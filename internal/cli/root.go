// Package cli defines the tradebot command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/config.yaml"

// Set at build time with -ldflags "-X TradeBot/internal/cli.version=...".
var (
	version = "dev"
	commit  = "none"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tradebot",
		Short:         "Strategy supervisor for retail algo trading",
		Long:          "tradebot loads strategy agents from config, runs them on a schedule and tracks their heartbeats.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfigPath, "configuration file path")

	root.AddCommand(
		newRunCmd(),
		newHealthCmd(),
		newConfigCmd(),
		newResolveCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		root.PrintErrln(errorStyle.Render("error: ") + err.Error())
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("tradebot %s (%s)\n", version, commit)
		},
	}
}
