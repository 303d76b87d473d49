// Package journal implements the notifier port as an in-process event
// log. It keeps the most recent fleet events and operator alerts in
// memory for inspection and mirrors every entry to the structured log.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/portyard/fleetsim/internal/domain"
	"github.com/portyard/fleetsim/internal/domain/event"
	"github.com/portyard/fleetsim/internal/port/notifier"
)

const (
	providerName = "journal"

	// Retention caps. Oldest entries are dropped first.
	maxEvents = 100
	maxAlerts = 50
)

// Entry is a recorded fleet event.
type Entry struct {
	ID        string         `json:"id"`
	Type      event.Type     `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alert is a recorded operator alert. Acknowledged alerts stay in the
// journal until retention evicts them.
type Alert struct {
	ID           string    `json:"id"`
	Message      string    `json:"message"`
	Severity     string    `json:"severity"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// Journal implements notifier.Notifier with bounded in-memory history.
type Journal struct {
	log *slog.Logger
	now func() time.Time

	mu     sync.Mutex
	events []Entry
	alerts []Alert
}

var _ notifier.Notifier = (*Journal)(nil)

// New creates a Journal that mirrors entries to the given logger.
func New(log *slog.Logger) *Journal {
	return &Journal{
		log: log,
		now: time.Now,
	}
}

func (j *Journal) Name() string { return providerName }

// LogEvent records a fleet event, evicting the oldest entry once the
// retention cap is reached.
func (j *Journal) LogEvent(_ context.Context, eventType event.Type, data map[string]any) error {
	entry := Entry{
		ID:        "EVT_" + shortID(),
		Type:      eventType,
		Data:      data,
		Timestamp: j.now().UTC(),
	}

	j.mu.Lock()
	j.events = append(j.events, entry)
	if len(j.events) > maxEvents {
		j.events = j.events[len(j.events)-maxEvents:]
	}
	j.mu.Unlock()

	j.log.Info("fleet event", "id", entry.ID, "type", string(eventType))
	return nil
}

// SendAlert records an operator alert. High and urgent severities log
// at warn level so they stand out in the stream.
func (j *Journal) SendAlert(_ context.Context, message, severity string) error {
	alert := Alert{
		ID:        "ALT_" + shortID(),
		Message:   message,
		Severity:  severity,
		Timestamp: j.now().UTC(),
	}

	j.mu.Lock()
	j.alerts = append(j.alerts, alert)
	if len(j.alerts) > maxAlerts {
		j.alerts = j.alerts[len(j.alerts)-maxAlerts:]
	}
	j.mu.Unlock()

	switch severity {
	case event.SeverityHigh, event.SeverityUrgent:
		j.log.Warn("fleet alert", "id", alert.ID, "severity", severity, "message", message)
	default:
		j.log.Info("fleet alert", "id", alert.ID, "severity", severity, "message", message)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first. A limit <= 0
// returns everything retained.
func (j *Journal) RecentEvents(limit int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	if limit <= 0 || limit > len(j.events) {
		limit = len(j.events)
	}
	out := make([]Entry, 0, limit)
	for i := len(j.events) - 1; i >= len(j.events)-limit; i-- {
		out = append(out, j.events[i])
	}
	return out
}

// RecentAlerts returns up to limit alerts, newest first.
func (j *Journal) RecentAlerts(limit int) []Alert {
	j.mu.Lock()
	defer j.mu.Unlock()

	if limit <= 0 || limit > len(j.alerts) {
		limit = len(j.alerts)
	}
	out := make([]Alert, 0, limit)
	for i := len(j.alerts) - 1; i >= len(j.alerts)-limit; i-- {
		out = append(out, j.alerts[i])
	}
	return out
}

// AcknowledgeAlert marks the alert with the given id as acknowledged.
func (j *Journal) AcknowledgeAlert(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := range j.alerts {
		if j.alerts[i].ID == id {
			j.alerts[i].Acknowledged = true
			return nil
		}
	}
	return fmt.Errorf("alert %s: %w", id, domain.ErrNotFound)
}

// UnacknowledgedCount returns the number of alerts still waiting for an
// operator.
func (j *Journal) UnacknowledgedCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := 0
	for i := range j.alerts {
		if !j.alerts[i].Acknowledged {
			n++
		}
	}
	return n
}

// shortID returns the first uuid segment, enough to keep journal ids
// readable in logs.
func shortID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
