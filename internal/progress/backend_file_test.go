package progress_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-progress/internal/progress"
)

func TestFileBackend_MissingFile(t *testing.T) {
	backend := progress.NewFileBackend(filepath.Join(t.TempDir(), "nested", "progress.json"))

	rec, err := backend.Get(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec != nil {
		t.Errorf("Get() = %+v, want nil for missing file", rec)
	}
}

func TestFileBackend_PreservesOtherStudents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	other := `{"Bob": {"topics": {"b": {"mastery_score": 42, "encounter_count": 3}}, "custom": "keep me"}}`
	if err := os.WriteFile(path, []byte(other), 0o644); err != nil {
		t.Fatal(err)
	}

	backend := progress.NewFileBackend(path)
	ctx := context.Background()
	if err := backend.Put(ctx, "Alice", progress.NewRecord("Alice")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	var doc map[string]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document not valid JSON: %v", err)
	}
	if doc["Bob"]["custom"] != "keep me" {
		t.Errorf("Bob's entry changed: %v", doc["Bob"])
	}
	if _, ok := doc["Alice"]; !ok {
		t.Error("Alice's entry missing")
	}

	students, _ := backend.Students(ctx)
	if strings.Join(students, ",") != "Bob,Alice" {
		t.Errorf("Students() = %v, want Bob,Alice", students)
	}
}

func TestFileBackend_NonASCIIReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	backend := progress.NewFileBackend(path)
	store := progress.NewStore(progress.StoreConfig{Backend: backend})
	ctx := context.Background()

	rec, _ := store.Load(ctx, "Маша")
	if err := store.AddSession(ctx, rec, "дроби <и> периметр", []string{"дроби"}, nil); err != nil {
		t.Fatalf("AddSession() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	for _, want := range []string{"Маша", "дроби <и> периметр"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("document does not contain %q verbatim", want)
		}
	}
}

func TestFileBackend_PartialRecordSelfHeals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	if err := os.WriteFile(path, []byte(`{"Alice": {"topics": {"fractions": {"encounter_count": 2}}}, "Bob": null}`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := progress.NewStore(progress.StoreConfig{Backend: progress.NewFileBackend(path)})
	ctx := context.Background()

	rec, err := store.Load(ctx, "Alice")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec.Sessions == nil || rec.Statistics == nil {
		t.Fatal("missing fields should be defaulted")
	}
	state, ok := rec.Topics.Get("fractions")
	if !ok || state.EncounterCount != 2 || state.DifficultyLevel != progress.DifficultyMedium {
		t.Errorf("fractions = %+v", state)
	}

	bob, err := store.Load(ctx, "Bob")
	if err != nil || bob.Topics.Len() != 0 {
		t.Errorf("Load(Bob) = %+v, %v; want empty record", bob, err)
	}
}

func TestFileBackend_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{{{ nope"},
		{"empty", ""},
		{"array", `[1, 2, 3]`},
		{"wrong field type", `{"Alice": {"sessions": "oops"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "progress.json")
			if err := os.WriteFile(path, []byte(tt.data), 0o644); err != nil {
				t.Fatal(err)
			}
			backend := progress.NewFileBackend(path)
			ctx := context.Background()

			_, err := backend.Get(ctx, "Alice")
			if !errors.Is(err, progress.ErrStorageCorrupt) {
				t.Fatalf("Get() error = %v, want ErrStorageCorrupt", err)
			}

			store := progress.NewStore(progress.StoreConfig{Backend: backend})
			rec, err := store.Load(ctx, "Alice")
			if err != nil {
				t.Fatalf("Load() error = %v, want soft failure", err)
			}

			if err := store.AddSession(ctx, rec, "text", []string{"fractions"}, nil); err != nil {
				t.Fatalf("AddSession() over corrupt store error = %v", err)
			}
			reloaded, err := backend.Get(ctx, "Alice")
			if err != nil || reloaded == nil || reloaded.Statistics.TotalSessions != 1 {
				t.Errorf("after recovery Get() = %+v, %v", reloaded, err)
			}
		})
	}
}

func TestFileBackend_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	backend := progress.NewFileBackend(filepath.Join(dir, "progress.json"))
	ctx := context.Background()

	for _, name := range []string{"A", "B", "A"} {
		if err := backend.Put(ctx, name, progress.NewRecord(name)); err != nil {
			t.Fatalf("Put(%s) error = %v", name, err)
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		names := []string{}
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want only progress.json", names)
	}
}

// legacyDocument is a progress document with zone-less timestamps and
// integer mastery scores.
const legacyDocument = `{
  "Alice": {
    "topics": {
      "fractions": {
        "first_encounter": "2024-05-01T10:00:00.123456",
        "encounter_count": 3,
        "mastery_score": 42.5,
        "difficulty_level": "easy",
        "last_practiced": "2024-05-03T18:30:00"
      }
    },
    "sessions": [
      {
        "date": "2024-05-01T10:00:00.123456",
        "analyzed_text": "Reduce the fraction 12/18",
        "found_topics": ["fractions"],
        "recommended_tasks": {"fractions": "Reduce 4/8."}
      }
    ],
    "statistics": {"total_sessions": 1, "total_works_analyzed": 1, "topics_worked": 1}
  }
}`

func TestFileBackend_LegacyTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	if err := os.WriteFile(path, []byte(legacyDocument), 0o644); err != nil {
		t.Fatal(err)
	}
	store := progress.NewStore(progress.StoreConfig{Backend: progress.NewFileBackend(path), WorksDir: t.TempDir()})
	ctx := context.Background()

	rec, err := store.Load(ctx, "Alice")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	state, ok := rec.Topics.Get("fractions")
	if !ok || state.EncounterCount != 3 || state.MasteryScore != 42.5 {
		t.Fatalf("fractions = %+v, want 3 encounters at 42.5", state)
	}
	if want := time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.Local); !state.FirstEncounter.Equal(want) {
		t.Errorf("FirstEncounter = %v, want %v", state.FirstEncounter, want)
	}
	if len(rec.Sessions) != 1 || rec.Sessions[0].Date.IsZero() {
		t.Fatalf("Sessions = %+v", rec.Sessions)
	}

	if err := store.AddSession(ctx, rec, "perimeter", []string{"perimeter"}, nil); err != nil {
		t.Fatalf("AddSession() error = %v", err)
	}
	reloaded, err := store.Load(ctx, "Alice")
	if err != nil {
		t.Fatalf("Load() after save error = %v", err)
	}
	if reloaded.Topics.Len() != 2 || len(reloaded.Sessions) != 2 || reloaded.Statistics.TotalSessions != 2 {
		t.Errorf("history lost: topics=%d sessions=%d stats=%+v",
			reloaded.Topics.Len(), len(reloaded.Sessions), *reloaded.Statistics)
	}
	fractions, _ := reloaded.Topics.Get("fractions")
	if fractions.EncounterCount != 3 || fractions.MasteryScore != 42.5 {
		t.Errorf("fractions after save = %+v", fractions)
	}
}

func TestFileBackend_UnreadableRecordIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	doc := `{"Alice": {"topics": {"fractions": {"first_encounter": "last tuesday", "encounter_count": 4}}}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	backend := progress.NewFileBackend(path)
	store := progress.NewStore(progress.StoreConfig{Backend: backend})
	ctx := context.Background()

	if _, err := store.Load(ctx, "Alice"); !errors.Is(err, progress.ErrRecordUnreadable) {
		t.Fatalf("Load() error = %v, want ErrRecordUnreadable", err)
	}
	if err := backend.Put(ctx, "Alice", progress.NewRecord("Alice")); !errors.Is(err, progress.ErrRecordUnreadable) {
		t.Fatalf("Put() error = %v, want ErrRecordUnreadable", err)
	}

	// Other students can still be written.
	if err := backend.Put(ctx, "Bob", progress.NewRecord("Bob")); err != nil {
		t.Fatalf("Put(Bob) error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "last tuesday") {
		t.Errorf("Alice's entry was overwritten: %s", data)
	}
}
