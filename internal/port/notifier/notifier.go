// Package notifier defines the best-effort event and alert delivery port.
package notifier

import (
	"context"
	"errors"
	"log/slog"

	"github.com/portyard/fleetsim/internal/domain/event"
)

// ErrNotConfigured is returned when a notifier is missing required
// configuration.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notifier is the port interface for fleet events and operator alerts.
// Delivery is best effort: callers log failures and continue.
type Notifier interface {
	// Name returns the unique identifier for this notifier
	// (e.g. "journal", "nats").
	Name() string

	// LogEvent records a fleet event with free-form payload data.
	LogEvent(ctx context.Context, eventType event.Type, data map[string]any) error

	// SendAlert delivers an operator alert at the given severity.
	SendAlert(ctx context.Context, message, severity string) error
}

// Multi fans out to several notifiers. A sink failure is logged and
// does not stop delivery to the rest; Multi itself never returns an
// error.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) LogEvent(ctx context.Context, eventType event.Type, data map[string]any) error {
	for _, n := range m {
		if err := n.LogEvent(ctx, eventType, data); err != nil {
			slog.Warn("event delivery failed", "sink", n.Name(), "event", eventType, "error", err)
		}
	}
	return nil
}

func (m Multi) SendAlert(ctx context.Context, message, severity string) error {
	for _, n := range m {
		if err := n.SendAlert(ctx, message, severity); err != nil {
			slog.Warn("alert delivery failed", "sink", n.Name(), "severity", severity, "error", err)
		}
	}
	return nil
}
