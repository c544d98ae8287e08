package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema describes the shared progress document: an object keyed by
// student name whose values are (possibly partial) progress records.
const documentSchema = `{
  "type": "object",
  "additionalProperties": {
    "type": ["object", "null"],
    "properties": {
      "topics":     {"type": ["object", "null"]},
      "sessions":   {"type": ["array", "null"]},
      "statistics": {"type": ["object", "null"]}
    }
  }
}`

var documentSchemaLoader = gojsonschema.NewStringLoader(documentSchema)

// FileBackend stores every student's record in one JSON document. Each Put
// re-reads the document, replaces one student's entry and atomically replaces
// the file, so other students' entries keep their content and position.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

// NewFileBackend returns a backend persisting to the JSON document at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the location of the progress document.
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Get(_ context.Context, student string) (*Record, error) {
	b.mu.Lock()
	entries, err := b.readDocument()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.Key == student {
			return decodeRecord(student, e.Value)
		}
	}
	return nil, nil
}

func (b *FileBackend) Put(_ context.Context, student string, rec *Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.readDocument()
	if errors.Is(err, ErrStorageCorrupt) {
		slog.Warn("replacing corrupt progress document", "path", b.path, "error", err)
		entries = nil
	} else if err != nil {
		return err
	}

	replaced := false
	for i := range entries {
		if entries[i].Key == student {
			if _, err := decodeRecord(student, entries[i].Value); err != nil {
				return err
			}
			entries[i].Value = data
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry{Key: student, Value: data})
	}

	doc, err := encodeObject(entries)
	if err != nil {
		return fmt.Errorf("encode progress document: %w", err)
	}
	return writeFileAtomic(b.path, doc)
}

func (b *FileBackend) Students(_ context.Context) ([]string, error) {
	b.mu.Lock()
	entries, err := b.readDocument()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	students := make([]string, 0, len(entries))
	for _, e := range entries {
		students = append(students, e.Key)
	}
	return students, nil
}

// readDocument loads and validates the progress document. A missing file is
// an empty document.
func (b *FileBackend) readDocument() ([]entry, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress document: %w", err)
	}

	if err := validateDocument(data); err != nil {
		return nil, err
	}

	entries, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	return entries, nil
}

func validateDocument(data []byte) error {
	result, err := gojsonschema.Validate(documentSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		// The loader fails when the bytes are not JSON at all.
		return fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrStorageCorrupt, strings.Join(msgs, "; "))
	}
	return nil
}

// writeFileAtomic writes data to a temp file beside path, syncs it and
// renames it over path. Readers see either the old or the new document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace progress document: %w", err)
	}
	return nil
}
