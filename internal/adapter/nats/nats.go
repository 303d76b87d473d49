// Package nats implements the notifier port on NATS JetStream.
//
// Events are published to fleet.events.<type> and alerts to
// fleet.alerts.<severity>, all captured by the FLEET stream so yard
// dashboards and downstream consumers can replay them.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/portyard/fleetsim/internal/domain/event"
	"github.com/portyard/fleetsim/internal/port/notifier"
)

const (
	providerName = "nats"
	streamName   = "FLEET"

	subjectEvents = "fleet.events"
	subjectAlerts = "fleet.alerts"
)

// Publisher implements notifier.Notifier using NATS JetStream.
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

var _ notifier.Notifier = (*Publisher)(nil)

// Connect establishes a connection to NATS and ensures the FLEET stream exists.
func Connect(ctx context.Context, url string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectEvents + ".>", subjectAlerts + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Publisher{nc: nc, js: js}, nil
}

func (p *Publisher) Name() string { return providerName }

// eventEnvelope is the wire format for fleet events.
type eventEnvelope struct {
	Type      event.Type     `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// alertEnvelope is the wire format for operator alerts.
type alertEnvelope struct {
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// LogEvent publishes a fleet event to fleet.events.<type>.
func (p *Publisher) LogEvent(ctx context.Context, eventType event.Type, data map[string]any) error {
	body, err := json.Marshal(eventEnvelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", eventType, err)
	}

	subject := subjectEvents + "." + string(eventType)
	if _, err := p.js.Publish(ctx, subject, body); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// SendAlert publishes an operator alert to fleet.alerts.<severity>.
func (p *Publisher) SendAlert(ctx context.Context, message, severity string) error {
	body, err := json.Marshal(alertEnvelope{
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	subject := subjectAlerts + "." + severity
	if _, err := p.js.Publish(ctx, subject, body); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// IsConnected reports whether the underlying NATS connection is live.
func (p *Publisher) IsConnected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Close shuts down the NATS connection.
func (p *Publisher) Close() error {
	p.nc.Close()
	return nil
}
