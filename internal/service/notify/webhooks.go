package notify

import (
	"context"
	"time"

	"TradeBot/internal/domain/models"
	xhttp "TradeBot/pkg/http"
)

const webhookTimeout = 10 * time.Second

// Slack posts to an incoming webhook.
type Slack struct {
	url    string
	client *xhttp.Client
}

func NewSlack(webhookURL string) *Slack {
	return &Slack{url: webhookURL, client: xhttp.NewClient(xhttp.WithTimeout(webhookTimeout))}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
}

type slackPayload struct {
	Text        string            `json:"text"`
	Username    string            `json:"username"`
	IconEmoji   string            `json:"icon_emoji"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

var slackColors = map[models.AlertLevel]string{
	models.AlertInfo:    "#439FE0",
	models.AlertSuccess: "good",
	models.AlertWarning: "warning",
	models.AlertError:   "danger",
}

func (s *Slack) Send(ctx context.Context, a models.Alert) error {
	p := slackPayload{
		Text:      "*" + a.Title + "*\n" + a.Message,
		Username:  "TradingBot",
		IconEmoji: ":robot_face:",
	}
	if len(a.Fields) > 0 {
		att := slackAttachment{Color: slackColors[a.Level]}
		for _, f := range a.Fields {
			att.Fields = append(att.Fields, slackField{Title: f.Name, Value: f.Value, Short: true})
		}
		p.Attachments = []slackAttachment{att}
	}
	return s.client.PostJSON(ctx, s.url, p, nil)
}

// Discord posts an embed to a webhook.
type Discord struct {
	url    string
	client *xhttp.Client
}

func NewDiscord(webhookURL string) *Discord {
	return &Discord{url: webhookURL, client: xhttp.NewClient(xhttp.WithTimeout(webhookTimeout))}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Color       int               `json:"color"`
	Fields      []discordField    `json:"fields,omitempty"`
	Footer      map[string]string `json:"footer"`
	Timestamp   string            `json:"timestamp"`
}

var discordColors = map[models.AlertLevel]int{
	models.AlertInfo:    0x3498db,
	models.AlertSuccess: 0x2ecc71,
	models.AlertWarning: 0xf1c40f,
	models.AlertError:   0xe74c3c,
}

func (d *Discord) Send(ctx context.Context, a models.Alert) error {
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	e := discordEmbed{
		Title:       a.Title,
		Description: a.Message,
		Color:       discordColors[a.Level],
		Footer:      map[string]string{"text": "TradeBot"},
		Timestamp:   ts.Format(time.RFC3339),
	}
	for _, f := range a.Fields {
		e.Fields = append(e.Fields, discordField{Name: f.Name, Value: f.Value, Inline: true})
	}
	return d.client.PostJSON(ctx, d.url, map[string]any{"embeds": []discordEmbed{e}}, nil)
}
