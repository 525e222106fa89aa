package cli

import (
	"fmt"
	"strings"
	"time"

	"TradeBot/internal/domain/models"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	healthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func statusStyle(s models.HealthStatus) lipgloss.Style {
	switch s {
	case models.StatusHealthy:
		return healthyStyle
	case models.StatusError:
		return errorStyle
	default:
		return warningStyle
	}
}

// renderSummary draws the counts line and one table row per agent.
func renderSummary(s models.HealthSummary, now time.Time) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Agent health"))
	b.WriteString(mutedStyle.Render(" as of " + s.Timestamp.Format(time.RFC3339)))
	b.WriteString("\n")
	stale := fmt.Sprintf("%d stale of %d", s.Stale, s.TotalAgents)
	if s.StaleAfterSeconds > 0 {
		stale += fmt.Sprintf(" (after %s)", time.Duration(s.StaleAfterSeconds*float64(time.Second)))
	}
	fmt.Fprintf(&b, "%s  %s  %s  %s\n",
		healthyStyle.Render(fmt.Sprintf("%d healthy", s.Healthy)),
		warningStyle.Render(fmt.Sprintf("%d warning", s.Warning)),
		errorStyle.Render(fmt.Sprintf("%d error", s.Error)),
		mutedStyle.Render(stale),
	)
	if len(s.Agents) == 0 {
		b.WriteString(mutedStyle.Render("no agents registered"))
		b.WriteString("\n")
		return b.String()
	}

	rows := make([][]string, 0, len(s.Agents))
	for _, a := range s.Agents {
		stale := ""
		if a.IsStale {
			stale = "stale"
		}
		rows = append(rows, []string{
			a.AgentName,
			string(a.Status),
			ago(now, a.LastHeartbeat),
			stale,
			truncate(a.LastError, 48),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("AGENT", "STATUS", "LAST BEAT", "STALE", "LAST ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 && row >= 0 && row < len(s.Agents) {
				return statusStyle(s.Agents[row].Status).Padding(0, 1)
			}
			return cellStyle
		})
	b.WriteString(t.Render())
	b.WriteString("\n")
	return b.String()
}

func ago(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String() + " ago"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
