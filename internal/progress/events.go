package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types emitted by Store.
const (
	EventSessionRecorded = "session_recorded"
	EventMasteryUpdated  = "mastery_updated"
	EventWorkSaved       = "work_saved"
)

// Event is a progress change persisted or streamed for analytics.
type Event struct {
	Student   string         `json:"student"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// PostgresEventLogger inserts events into the progress_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.Student == "" {
		return fmt.Errorf("student is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO progress_events (student, event_type, data, created_at)
		 VALUES ($1, $2, $3::jsonb, $4)`,
		event.Student,
		event.EventType,
		string(data),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.EventType,
		"student", event.Student,
	)
	return nil
}

// Broadcaster fans events out to live subscribers and forwards them to an
// optional downstream logger. Slow subscribers drop events instead of
// blocking the writer.
type Broadcaster struct {
	next EventLogger
	mu   sync.RWMutex
	subs map[chan Event]string
}

// NewBroadcaster wraps next, which may be nil.
func NewBroadcaster(next EventLogger) *Broadcaster {
	if next == nil {
		next = NopEventLogger{}
	}
	return &Broadcaster{
		next: next,
		subs: make(map[chan Event]string),
	}
}

// Subscribe returns a channel receiving events for student ("" for all
// students) and a function that ends the subscription.
func (b *Broadcaster) Subscribe(student string, buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[ch] = student
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) LogEvent(event Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	b.mu.RLock()
	for ch, student := range b.subs {
		if student != "" && student != event.Student {
			continue
		}
		select {
		case ch <- event:
		default:
			slog.Warn("dropping event for slow subscriber", "student", event.Student, "type", event.EventType)
		}
	}
	b.mu.RUnlock()

	return b.next.LogEvent(event)
}
