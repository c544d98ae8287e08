package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxAnalyzedRunes = 100
	truncationMarker = "..."
)

// StoreConfig holds dependencies for the progress store.
type StoreConfig struct {
	Backend  Backend          // where records live (default: in-memory)
	WorksDir string           // directory for raw submission artifacts
	Events   EventLogger      // progress event sink (default: discard)
	Now      func() time.Time // clock (default: time.Now)
}

// Store loads and mutates progress records.
type Store struct {
	backend  Backend
	worksDir string
	events   EventLogger
	now      func() time.Time
}

// NewStore creates a progress store.
func NewStore(cfg StoreConfig) *Store {
	backend := cfg.Backend
	if backend == nil {
		backend = NewMemoryBackend()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		backend:  backend,
		worksDir: cfg.WorksDir,
		events:   events,
		now:      now,
	}
}

// Load returns the record for student. Missing records and missing fields
// are filled with empty defaults. A store that cannot be parsed at all is
// logged and treated as empty; an unreadable record and any other read
// failure are returned.
func (s *Store) Load(ctx context.Context, student string) (*Record, error) {
	rec, err := s.backend.Get(ctx, student)
	if errors.Is(err, ErrStorageCorrupt) {
		slog.Warn("progress store unreadable, starting empty", "student", student, "error", err)
		return NewRecord(student), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress for %q: %w", student, err)
	}
	if rec == nil {
		return NewRecord(student), nil
	}
	rec.Student = student
	rec.normalize()
	return rec, nil
}

// Save persists rec.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if err := s.backend.Put(ctx, rec.Student, rec); err != nil {
		return &StorageWriteError{Student: rec.Student, Err: err}
	}
	return nil
}

// Students lists every student with stored progress.
func (s *Store) Students(ctx context.Context) ([]string, error) {
	return s.backend.Students(ctx)
}

// AddSession records an analyzed submission and the topics found in it, then
// persists the record. Every occurrence of a topic in foundTopics counts as
// an encounter. The record is updated in memory even if saving fails; the
// event is only emitted once the record is stored.
func (s *Store) AddSession(ctx context.Context, rec *Record, text string, foundTopics []string, recommendedTasks map[string]string) error {
	rec.normalize()
	now := s.now()

	topics := append([]string{}, foundTopics...)
	tasks := make(map[string]string, len(recommendedTasks))
	maps.Copy(tasks, recommendedTasks)

	rec.Sessions = append(rec.Sessions, SessionRecord{
		ID:               uuid.NewString(),
		Date:             now,
		AnalyzedText:     truncateText(text),
		FoundTopics:      topics,
		RecommendedTasks: tasks,
	})
	rec.Statistics.TotalSessions++
	rec.Statistics.TotalWorksAnalyzed++

	for _, topic := range foundTopics {
		state, ok := rec.Topics.Get(topic)
		if !ok {
			state = &TopicState{
				FirstEncounter:  now,
				LastPracticed:   now,
				MasteryScore:    0,
				DifficultyLevel: DifficultyMedium,
			}
			rec.Topics.Set(topic, state)
			rec.Statistics.TopicsWorked++
		}
		state.EncounterCount++
		state.LastPracticed = now
	}

	if err := s.Save(ctx, rec); err != nil {
		return err
	}
	s.logEvent(Event{
		Student:   rec.Student,
		EventType: EventSessionRecorded,
		Data: map[string]any{
			"found_topics":   topics,
			"total_sessions": rec.Statistics.TotalSessions,
		},
		CreatedAt: now,
	})
	return nil
}

// UpdateMastery applies a rated attempt to topic. It returns false without
// saving when the record has no such topic.
func (s *Store) UpdateMastery(ctx context.Context, rec *Record, topic string, successRate float64) (bool, error) {
	rec.normalize()
	state, ok := rec.Topics.Get(topic)
	if !ok {
		return false, nil
	}

	previous := state.MasteryScore
	state.MasteryScore = NextMastery(previous, successRate)
	state.DifficultyLevel = DifficultyFor(state.MasteryScore)

	if err := s.Save(ctx, rec); err != nil {
		return true, err
	}
	s.logEvent(Event{
		Student:   rec.Student,
		EventType: EventMasteryUpdated,
		Data: map[string]any{
			"topic":        topic,
			"success_rate": successRate,
			"previous":     previous,
			"mastery":      state.MasteryScore,
			"difficulty":   string(state.DifficultyLevel),
		},
		CreatedAt: s.now(),
	})
	return true, nil
}

// SaveWork writes the raw submission text to its own artifact and returns
// the artifact path. Failures are returned as *StorageWriteError; callers
// treat them as non-fatal.
func (s *Store) SaveWork(_ context.Context, student, text, workType string) (string, error) {
	if workType == "" {
		workType = DefaultWorkType
	}
	now := s.now()
	path, err := writeWork(s.worksDir, student, workType, text, now)
	if err != nil {
		return "", &StorageWriteError{Student: student, Err: err}
	}

	s.logEvent(Event{
		Student:   student,
		EventType: EventWorkSaved,
		Data:      map[string]any{"work_type": workType, "path": path},
		CreatedAt: now,
	})
	return path, nil
}

// WeakTopics returns topics seen at least minEncounters times whose mastery is
// still below WeakMasteryThreshold, in first-encounter order.
func (s *Store) WeakTopics(rec *Record, minEncounters int) []string {
	return WeakTopics(rec, minEncounters)
}

// Summary returns the record's counters.
func (s *Store) Summary(rec *Record) Counters {
	return Summary(rec)
}

// WeakTopics is the store-independent form of Store.WeakTopics.
func WeakTopics(rec *Record, minEncounters int) []string {
	weak := []string{}
	if rec == nil || rec.Topics == nil {
		return weak
	}
	rec.Topics.Each(func(id string, state *TopicState) {
		if state.EncounterCount >= minEncounters && state.MasteryScore < WeakMasteryThreshold {
			weak = append(weak, id)
		}
	})
	return weak
}

// Summary is the store-independent form of Store.Summary.
func Summary(rec *Record) Counters {
	if rec == nil || rec.Statistics == nil {
		return Counters{}
	}
	return *rec.Statistics
}

func (s *Store) logEvent(event Event) {
	if err := s.events.LogEvent(event); err != nil {
		slog.Warn("failed to log progress event", "type", event.EventType, "student", event.Student, "error", err)
	}
}

// truncateText keeps the first 100 characters of text and marks the cut.
func truncateText(text string) string {
	if utf8.RuneCountInString(text) <= maxAnalyzedRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxAnalyzedRunes]) + truncationMarker
}
