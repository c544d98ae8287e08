// Package session orchestrates a student's study session: analyzing
// submitted work, handing out practice tasks and recording how they went.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/p-n-ai/pai-progress/internal/analytics"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

var (
	ErrEmptyStudent  = errors.New("student name is required")
	ErrEmptyText     = errors.New("submission text is empty")
	ErrUnknownTopic  = errors.New("topic has not been encountered by this student")
	ErrInvalidRating = errors.New("rating must be 1, 2 or 3")
	ErrNoWeakTopics  = errors.New("no weak topics to practice")
	ErrNoTask        = errors.New("no task available for topic")
)

// Rating is the student's self-assessment of a practice task.
type Rating int

const (
	RatingSolved  Rating = 1
	RatingPartial Rating = 2
	RatingFailed  Rating = 3
)

// SuccessRate converts a rating to the success rate fed into the mastery rule.
func (r Rating) SuccessRate() (float64, error) {
	switch r {
	case RatingSolved:
		return 90, nil
	case RatingPartial:
		return 60, nil
	case RatingFailed:
		return 30, nil
	}
	return 0, fmt.Errorf("%w: got %d", ErrInvalidRating, int(r))
}

// TopicExtractor finds topic IDs mentioned in free text.
type TopicExtractor interface {
	ExtractTopics(text string) []string
}

// TaskBank supplies practice tasks and topic descriptions.
type TaskBank interface {
	GetTask(topic, difficulty string) (string, bool)
	GetTopicDescription(topic string) string
}

// NotesSource supplies teaching notes shown alongside practice tasks.
type NotesSource interface {
	GetTeachingNotes(topic string) (string, bool)
}

// EngineConfig holds dependencies for the session engine.
type EngineConfig struct {
	Store     *progress.Store
	Analytics *analytics.Service
	Extractor TopicExtractor
	Tasks     TaskBank
	Notes     NotesSource // optional
	WorkType  string      // artifact type for submissions (default "homework")
}

// Engine is the presentation layer's entry point into progress tracking.
type Engine struct {
	store     *progress.Store
	analytics *analytics.Service
	extractor TopicExtractor
	tasks     TaskBank
	notes     NotesSource
	workType  string
}

// NewEngine creates a new session engine.
func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Store
	if store == nil {
		store = progress.NewStore(progress.StoreConfig{})
	}
	svc := cfg.Analytics
	if svc == nil {
		svc = analytics.NewService(analytics.ServiceConfig{Loader: store})
	}
	workType := cfg.WorkType
	if workType == "" {
		workType = progress.DefaultWorkType
	}
	return &Engine{
		store:     store,
		analytics: svc,
		extractor: cfg.Extractor,
		tasks:     cfg.Tasks,
		notes:     cfg.Notes,
		workType:  workType,
	}
}

// FoundTopic is a topic detected in a submission.
type FoundTopic struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Analysis is the outcome of analyzing one submission.
type Analysis struct {
	Student          string            `json:"student"`
	Topics           []FoundTopic      `json:"topics"`
	RecommendedTasks map[string]string `json:"recommended_tasks"`
	WorkSaved        bool              `json:"work_saved"`
	WorkPath         string            `json:"work_path,omitempty"`
}

// Analyze saves the submission, detects its topics, picks a task per topic at
// the student's current difficulty, and records the session. Failing to save
// the raw submission does not stop the analysis.
func (e *Engine) Analyze(ctx context.Context, student, text string) (*Analysis, error) {
	student, err := cleanStudent(student)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	slog.Info("analyzing submission",
		"student", student,
		"text_len", len(text),
	)

	rec, err := e.store.Load(ctx, student)
	if err != nil {
		return nil, err
	}

	result := &Analysis{Student: student, Topics: []FoundTopic{}, RecommendedTasks: map[string]string{}}
	path, err := e.store.SaveWork(ctx, student, text, e.workType)
	if err != nil {
		slog.Warn("failed to save submission, continuing analysis", "student", student, "error", err)
	} else {
		result.WorkSaved = true
		result.WorkPath = path
	}

	var found []string
	if e.extractor != nil {
		found = e.extractor.ExtractTopics(text)
	}
	for _, topic := range found {
		result.Topics = append(result.Topics, FoundTopic{ID: topic, Description: e.describe(topic)})
		if _, done := result.RecommendedTasks[topic]; done {
			continue
		}
		if task, ok := e.taskFor(rec, topic); ok {
			result.RecommendedTasks[topic] = task
		}
	}

	if err := e.store.AddSession(ctx, rec, text, found, result.RecommendedTasks); err != nil {
		return nil, err
	}
	e.analytics.Invalidate(ctx, student)

	return result, nil
}

// Practice is a task handed out for a topic.
type Practice struct {
	Topic       string              `json:"topic"`
	Description string              `json:"description"`
	Difficulty  progress.Difficulty `json:"difficulty"`
	Task        string              `json:"task"`
	Notes       string              `json:"notes,omitempty"`
}

// PracticeTask returns the task for topic at the student's current level.
func (e *Engine) PracticeTask(ctx context.Context, student, topic string) (*Practice, error) {
	student, err := cleanStudent(student)
	if err != nil {
		return nil, err
	}
	rec, err := e.store.Load(ctx, student)
	if err != nil {
		return nil, err
	}
	state, ok := rec.Topics.Get(topic)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	task, ok := e.taskFor(rec, topic)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTask, topic)
	}
	return &Practice{
		Topic:       topic,
		Description: e.describe(topic),
		Difficulty:  state.DifficultyLevel,
		Task:        task,
		Notes:       e.teachingNotes(topic),
	}, nil
}

// RandomPractice picks one of the student's weak topics at random.
func (e *Engine) RandomPractice(ctx context.Context, student string) (*Practice, error) {
	student, err := cleanStudent(student)
	if err != nil {
		return nil, err
	}
	rec, err := e.store.Load(ctx, student)
	if err != nil {
		return nil, err
	}
	weak := e.store.WeakTopics(rec, progress.DefaultMinEncounters)
	if len(weak) == 0 {
		return nil, ErrNoWeakTopics
	}
	return e.PracticeTask(ctx, student, weak[rand.IntN(len(weak))])
}

// Rate records how a practice task went and returns the topic's new state.
func (e *Engine) Rate(ctx context.Context, student, topic string, rating Rating) (*progress.TopicState, error) {
	student, err := cleanStudent(student)
	if err != nil {
		return nil, err
	}
	rate, err := rating.SuccessRate()
	if err != nil {
		return nil, err
	}
	rec, err := e.store.Load(ctx, student)
	if err != nil {
		return nil, err
	}

	changed, err := e.store.UpdateMastery(ctx, rec, topic, rate)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	e.analytics.Invalidate(ctx, student)

	state, _ := rec.Topics.Get(topic)
	slog.Info("mastery updated",
		"student", student,
		"topic", topic,
		"mastery", state.MasteryScore,
		"difficulty", state.DifficultyLevel,
	)
	copied := *state
	return &copied, nil
}

// Dashboard gathers everything the presentation layer shows for a student.
type Dashboard struct {
	Student         string                   `json:"student"`
	Summary         progress.Counters        `json:"summary"`
	WeakTopics      []string                 `json:"weak_topics"`
	WeeklyReport    analytics.WeeklyReport   `json:"weekly_report"`
	Recommendations []string                 `json:"recommendations"`
	Plan            analytics.Plan           `json:"plan"`
	Topics          []analytics.TopicSummary `json:"topics"`
}

// Dashboard builds the full progress view for student.
func (e *Engine) Dashboard(ctx context.Context, student string) (*Dashboard, error) {
	student, err := cleanStudent(student)
	if err != nil {
		return nil, err
	}
	rec, err := e.store.Load(ctx, student)
	if err != nil {
		return nil, err
	}
	// Every part of the view is derived from the same record and instant.
	now := e.analytics.Now()
	report := analytics.BuildWeeklyReport(rec, now)
	return &Dashboard{
		Student:         student,
		Summary:         e.store.Summary(rec),
		WeakTopics:      e.store.WeakTopics(rec, progress.DefaultMinEncounters),
		WeeklyReport:    report,
		Recommendations: analytics.BuildRecommendations(rec, now),
		Plan:            analytics.BuildStudyPlan(rec),
		Topics:          analytics.BuildTopicProgress(rec),
	}, nil
}

// Students lists every student with a stored record.
func (e *Engine) Students(ctx context.Context) ([]string, error) {
	return e.store.Students(ctx)
}

// Record loads the raw progress record for student.
func (e *Engine) Record(ctx context.Context, student string) (*progress.Record, error) {
	student, err := cleanStudent(student)
	if err != nil {
		return nil, err
	}
	return e.store.Load(ctx, student)
}

func (e *Engine) taskFor(rec *progress.Record, topic string) (string, bool) {
	if e.tasks == nil {
		return "", false
	}
	difficulty := progress.DifficultyMedium
	if state, ok := rec.Topics.Get(topic); ok {
		difficulty = state.DifficultyLevel
	}
	return e.tasks.GetTask(topic, string(difficulty))
}

func (e *Engine) describe(topic string) string {
	if e.tasks == nil {
		return ""
	}
	return e.tasks.GetTopicDescription(topic)
}

func (e *Engine) teachingNotes(topic string) string {
	if e.notes == nil {
		return ""
	}
	notes, _ := e.notes.GetTeachingNotes(topic)
	return strings.TrimSpace(notes)
}

func cleanStudent(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyStudent
	}
	return name, nil
}
