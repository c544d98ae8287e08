// Package progress owns a student's progress record: the topics they have
// encountered, the sessions they submitted, and the mastery rule that moves
// topic scores as tasks are rated.
package progress

import (
	"time"
)

// Difficulty is the task difficulty recommended for a topic.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// TopicState tracks a single topic for one student.
type TopicState struct {
	FirstEncounter  time.Time  `json:"first_encounter"`
	LastPracticed   time.Time  `json:"last_practiced"`
	EncounterCount  int        `json:"encounter_count"`
	MasteryScore    float64    `json:"mastery_score"`
	DifficultyLevel Difficulty `json:"difficulty_level"`
}

// SessionRecord is one analyzed submission. It is never modified after creation.
type SessionRecord struct {
	ID               string            `json:"id,omitempty"`
	Date             time.Time         `json:"date"`
	AnalyzedText     string            `json:"analyzed_text"`
	FoundTopics      []string          `json:"found_topics"`
	RecommendedTasks map[string]string `json:"recommended_tasks"`
}

// Counters are the aggregate statistics kept per student.
type Counters struct {
	TotalSessions      int `json:"total_sessions"`
	TotalWorksAnalyzed int `json:"total_works_analyzed"`
	TopicsWorked       int `json:"topics_worked"`
}

// Record is the full progress record of one student.
type Record struct {
	Student    string          `json:"-"`
	Topics     *Topics         `json:"topics"`
	Sessions   []SessionRecord `json:"sessions"`
	Statistics *Counters       `json:"statistics"`
}

// NewRecord returns an empty record for student.
func NewRecord(student string) *Record {
	r := &Record{Student: student}
	r.normalize()
	return r
}

// normalize fills in any top-level field that was absent in stored data.
func (r *Record) normalize() {
	if r.Topics == nil {
		r.Topics = NewTopics()
	}
	if r.Sessions == nil {
		r.Sessions = []SessionRecord{}
	}
	if r.Statistics == nil {
		r.Statistics = &Counters{}
	}
}

// LastSession returns the most recently appended session.
func (r *Record) LastSession() (SessionRecord, bool) {
	if len(r.Sessions) == 0 {
		return SessionRecord{}, false
	}
	return r.Sessions[len(r.Sessions)-1], true
}
