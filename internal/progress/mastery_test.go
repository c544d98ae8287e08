package progress_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-progress/internal/progress"
)

func TestNextMastery(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		rate    float64
		want    float64
	}{
		{"neutral rate", 40, 50, 40},
		{"solved", 0, 90, 20},
		{"partial", 20, 60, 25},
		{"failed", 20, 30, 10},
		{"clamped high", 95, 100, 100},
		{"clamped low", 5, 0, 0},
		{"rate above range", 10, 500, 100},
		{"rate below range", 90, -300, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progress.NextMastery(tt.current, tt.rate); got != tt.want {
				t.Errorf("NextMastery(%v, %v) = %v, want %v", tt.current, tt.rate, got, tt.want)
			}
		})
	}
}

func TestNextMastery_ConvergesToMax(t *testing.T) {
	score := 0.0
	for i := 0; i < 50; i++ {
		score = progress.NextMastery(score, 100)
		if score > progress.MaxMastery {
			t.Fatalf("iteration %d: score %v exceeds max", i, score)
		}
	}
	if score != progress.MaxMastery {
		t.Errorf("score = %v, want %v", score, progress.MaxMastery)
	}
}

func TestDifficultyFor(t *testing.T) {
	tests := []struct {
		score float64
		want  progress.Difficulty
	}{
		{0, progress.DifficultyEasy},
		{50, progress.DifficultyEasy},
		{50.01, progress.DifficultyMedium},
		{80, progress.DifficultyMedium},
		{80.5, progress.DifficultyHard},
		{100, progress.DifficultyHard},
	}

	for _, tt := range tests {
		if got := progress.DifficultyFor(tt.score); got != tt.want {
			t.Errorf("DifficultyFor(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestTopics_JSONKeepsOrder(t *testing.T) {
	topics := progress.NewTopics()
	for _, id := range []string{"zeta", "alpha", "мир", "beta"} {
		topics.Set(id, &progress.TopicState{DifficultyLevel: progress.DifficultyMedium})
	}
	topics.Set("alpha", &progress.TopicState{EncounterCount: 9, DifficultyLevel: progress.DifficultyHard})

	data, err := json.Marshal(topics)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded progress.Topics
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got := strings.Join(decoded.Keys(), ","); got != "zeta,alpha,мир,beta" {
		t.Errorf("Keys() = %s, want zeta,alpha,мир,beta", got)
	}
	alpha, _ := decoded.Get("alpha")
	if alpha.EncounterCount != 9 || alpha.DifficultyLevel != progress.DifficultyHard {
		t.Errorf("alpha = %+v", *alpha)
	}
}

func TestTopics_UnmarshalRejectsNonObject(t *testing.T) {
	var topics progress.Topics
	if err := json.Unmarshal([]byte(`["a"]`), &topics); err == nil {
		t.Error("Unmarshal() should fail for arrays")
	}
}

func TestTopics_UnmarshalClampsMastery(t *testing.T) {
	tests := []struct {
		name           string
		json           string
		wantScore      float64
		wantDifficulty progress.Difficulty
	}{
		{"above range", `{"mastery_score": 250, "difficulty_level": "easy"}`, 100, progress.DifficultyHard},
		{"below range", `{"mastery_score": -12.5, "difficulty_level": "hard"}`, 0, progress.DifficultyEasy},
		{"in range keeps stored level", `{"mastery_score": 0, "difficulty_level": "medium"}`, 0, progress.DifficultyMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var topics progress.Topics
			if err := json.Unmarshal([]byte(`{"t": `+tt.json+`}`), &topics); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			state, _ := topics.Get("t")
			if state.MasteryScore != tt.wantScore || state.DifficultyLevel != tt.wantDifficulty {
				t.Errorf("state = %v/%s, want %v/%s", state.MasteryScore, state.DifficultyLevel, tt.wantScore, tt.wantDifficulty)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), false},
		{"2024-05-01T10:00:00.5+02:00", time.Date(2024, 5, 1, 8, 0, 0, 5e8, time.UTC), false},
		{"2024-05-01T10:00:00.123456", time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.Local), false},
		{"2024-05-01T10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local), false},
		{"2024-05-01 10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local), false},
		{"yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := progress.ParseTimestamp(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alice", "Alice"},
		{"Ann-Marie O'Neil", "Ann-Marie ONeil"},
		{"../../etc/passwd", "etcpasswd"},
		{"Маша_2 ", "Маша_2"},
		{"a:b*c?", "abc"},
	}

	for _, tt := range tests {
		if got := progress.SafeName(tt.in); got != tt.want {
			t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
