// Package notify sends alerts to chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	applogger "TradeBot/pkg/logger"
)

const timeLayout = "2006-01-02 15:04:05"

// Multi fans an alert out to every channel and joins their errors.
type Multi struct {
	channels []drepo.Notifier
	log      *applogger.Logger
	now      func() time.Time
}

func NewMulti(l *applogger.Logger, channels ...drepo.Notifier) *Multi {
	var live []drepo.Notifier
	for _, c := range channels {
		if c != nil {
			live = append(live, c)
		}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Multi{channels: live, log: l, now: time.Now}
}

// New wires the webhook channels that have a URL configured.
func New(l *applogger.Logger, slackURL, discordURL string) *Multi {
	var channels []drepo.Notifier
	if slackURL != "" {
		channels = append(channels, NewSlack(slackURL))
	}
	if discordURL != "" {
		channels = append(channels, NewDiscord(discordURL))
	}
	return NewMulti(l, channels...)
}

func (m *Multi) Enabled() bool { return len(m.channels) > 0 }

func (m *Multi) Send(ctx context.Context, a models.Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = m.now()
	}
	if len(m.channels) == 0 {
		m.log.Debug("no notification channels configured", applogger.String("title", a.Title))
		return nil
	}

	errs := make([]error, len(m.channels))
	var wg sync.WaitGroup
	for i, c := range m.channels {
		wg.Add(1)
		go func(i int, c drepo.Notifier) {
			defer wg.Done()
			errs[i] = c.Send(ctx, a)
		}(i, c)
	}
	wg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		m.log.Error("alert delivery failed", applogger.String("title", a.Title), applogger.Error(err))
	} else {
		m.log.Info("alert sent", applogger.String("title", a.Title), applogger.Int("channels", len(m.channels)))
	}
	return err
}

// HeartbeatMissed satisfies heartbeat.Notifier.
func (m *Multi) HeartbeatMissed(ctx context.Context, name string, last, now time.Time) error {
	return m.Send(ctx, FormatHeartbeatMissed(name, last, now))
}

// NotifyFill reports an executed order.
func (m *Multi) NotifyFill(ctx context.Context, f models.Fill) error {
	return m.Send(ctx, FormatFill(f))
}

func FormatHeartbeatMissed(name string, last, now time.Time) models.Alert {
	minutes := int(now.Sub(last).Minutes())
	var b strings.Builder
	fmt.Fprintf(&b, "Heartbeat missed for %s\n", name)
	fmt.Fprintf(&b, "Last heartbeat: %s\n", last.Format(timeLayout))
	fmt.Fprintf(&b, "Current time: %s\n", now.Format(timeLayout))
	fmt.Fprintf(&b, "Time elapsed: %d minutes\n", minutes)
	b.WriteString("Status: System may be unresponsive")
	return models.Alert{
		Title:   "Heartbeat Missed Alert",
		Message: b.String(),
		Level:   models.AlertWarning,
		Fields: []models.AlertField{
			{Name: "type", Value: "heartbeat_missed"},
			{Name: "source", Value: name},
			{Name: "last_heartbeat", Value: last.Format(time.RFC3339)},
			{Name: "current_time", Value: now.Format(time.RFC3339)},
			{Name: "minutes_elapsed", Value: fmt.Sprint(minutes)},
		},
		Timestamp: now,
	}
}

func FormatFill(f models.Fill) models.Alert {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\n", f.Symbol)
	fmt.Fprintf(&b, "Side: %s\n", strings.ToUpper(string(f.Side)))
	fmt.Fprintf(&b, "Quantity: %.2f\n", f.Quantity)
	fmt.Fprintf(&b, "Price: $%.2f\n", f.Price)
	fmt.Fprintf(&b, "Value: $%.2f\n", f.Value())
	fmt.Fprintf(&b, "Time: %s", f.Timestamp.Format(timeLayout))
	return models.Alert{
		Title:   "Order Fill Summary",
		Message: b.String(),
		Level:   models.AlertSuccess,
		Fields: []models.AlertField{
			{Name: "type", Value: "fill"},
			{Name: "symbol", Value: f.Symbol},
			{Name: "side", Value: string(f.Side)},
			{Name: "quantity", Value: fmt.Sprintf("%g", f.Quantity)},
			{Name: "price", Value: fmt.Sprintf("%g", f.Price)},
		},
		Timestamp: f.Timestamp,
	}
}
