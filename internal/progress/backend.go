package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// Backend persists progress records keyed by student name.
type Backend interface {
	// Get returns the stored record for student, or nil if none exists.
	// A store that cannot be parsed returns an error wrapping ErrStorageCorrupt;
	// a parsed entry whose fields cannot be decoded wraps ErrRecordUnreadable.
	Get(ctx context.Context, student string) (*Record, error)
	// Put replaces the stored record for student without touching other students.
	Put(ctx context.Context, student string, rec *Record) error
	// Students lists every student with a stored record.
	Students(ctx context.Context) ([]string, error)
}

// MemoryBackend is an in-memory Backend. Records are stored as encoded JSON so
// callers never share state with the store.
type MemoryBackend struct {
	records map[string][]byte
	order   []string
	mu      sync.RWMutex
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string][]byte),
	}
}

func (b *MemoryBackend) Get(_ context.Context, student string) (*Record, error) {
	b.mu.RLock()
	data, ok := b.records[student]
	b.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeRecord(student, data)
}

func (b *MemoryBackend) Put(_ context.Context, student string, rec *Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[student]; !ok {
		b.order = append(b.order, student)
	}
	b.records[student] = data
	return nil
}

func (b *MemoryBackend) Students(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.order), nil
}

func encodeRecord(rec *Record) ([]byte, error) {
	rec.normalize()
	data, err := marshalNoEscape(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

func decodeRecord(student string, data []byte) (*Record, error) {
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode record for %q: %w: %v", student, ErrRecordUnreadable, err)
	}
	rec.Student = student
	rec.normalize()
	return rec, nil
}
