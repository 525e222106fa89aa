package cli

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"TradeBot/internal/domain/models"
	"TradeBot/pkg/config"
	xhttp "TradeBot/pkg/http"

	"github.com/spf13/cobra"
)

type summaryEnvelope struct {
	Status int                  `json:"status"`
	Data   models.HealthSummary `json:"data"`
}

// fetchSummary reads /api/health/summary from a running supervisor.
func fetchSummary(ctx context.Context, baseURL string, refresh bool, timeout time.Duration) (models.HealthSummary, error) {
	client := xhttp.NewClient(
		xhttp.WithBaseURL(baseURL),
		xhttp.WithTimeout(timeout),
		xhttp.WithRetry(1, 250*time.Millisecond),
	)
	var env summaryEnvelope
	query := map[string]string{}
	if refresh {
		query["refresh"] = "true"
	}
	if err := client.GetJSON(ctx, "/api/health/summary", query, &env); err != nil {
		return models.HealthSummary{}, fmt.Errorf("fetch health from %s: %w", baseURL, err)
	}
	if env.Status != http.StatusOK {
		return models.HealthSummary{}, fmt.Errorf("fetch health from %s: status %d", baseURL, env.Status)
	}
	return env.Data, nil
}

// defaultAddr uses the configured server port when the config file is readable.
func defaultAddr(cmd *cobra.Command) string {
	port := 8080
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if cfg, err := config.Load(path); err == nil {
			port = cfg.Server.Port
		}
	}
	return "http://localhost:" + strconv.Itoa(port)
}

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show agent health from a running supervisor",
		Long: `Fetches /api/health/summary and renders it as a table.
Exits non-zero when --strict is set and any agent is in error or stale.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = defaultAddr(cmd)
			}
			refresh, _ := cmd.Flags().GetBool("refresh")
			strict, _ := cmd.Flags().GetBool("strict")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			s, err := fetchSummary(contextOr(cmd.Context()), addr, refresh, timeout)
			if err != nil {
				return err
			}
			cmd.Print(renderSummary(s, time.Now()))
			if strict && (s.Error > 0 || s.Stale > 0) {
				return fmt.Errorf("%d agents in error, %d stale", s.Error, s.Stale)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "supervisor base URL (default from config server.port)")
	cmd.Flags().Bool("refresh", false, "bypass the server-side health cache")
	cmd.Flags().Bool("strict", false, "fail when any agent is in error or stale")
	cmd.Flags().Duration("timeout", 5*time.Second, "request timeout")
	return cmd
}
