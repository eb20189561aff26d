// Package notification delivers rendered signal messages to external
// channels (Telegram, webhooks, the log) and runs the periodic signal job
// that produces them.
package notification

import (
	"context"
	"log/slog"

	"signal-engine/internal/logger"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one rendered message for one recipient. An empty Recipient
// means the channel's default destination.
type Alert struct {
	Level     AlertLevel `json:"level"`
	Recipient string     `json:"recipient,omitempty"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Name identifies the channel in logs and metrics.
	Name() string
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log (useful for development).
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses the default.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	return &LogNotifier{log: logger.Component(l, "notify")}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.Info(alert.Title,
		append(logger.LogWithTrace(ctx),
			slog.String("alert_level", string(alert.Level)),
			slog.String("recipient", alert.Recipient),
			slog.String("message", alert.Message),
		)...,
	)
	return nil
}
