package models

import "time"

type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertSuccess AlertLevel = "success"
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

type AlertField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Alert is a channel-agnostic notification.
type Alert struct {
	Title     string       `json:"title"`
	Message   string       `json:"message"`
	Level     AlertLevel   `json:"level"`
	Fields    []AlertField `json:"fields,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
