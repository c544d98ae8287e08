// Package curriculum loads the topic catalog from YAML files and serves as
// the topic extractor and task bank for progress tracking.
package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

const defaultDescription = "No description available for this topic."

// Loader loads and caches curriculum content from the filesystem.
type Loader struct {
	rootDir       string
	topics        map[string]Topic
	teachingNotes map[string]string
	keywords      map[string][]string // topic ID -> case-folded keywords
	mu            sync.RWMutex
}

// NewLoader creates a new curriculum loader and loads all content.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:       rootDir,
		topics:        make(map[string]Topic),
		teachingNotes: make(map[string]string),
		keywords:      make(map[string][]string),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "topics", len(l.topics))
	return l, nil
}

// GetTopic returns a topic by ID.
func (l *Loader) GetTopic(id string) (Topic, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.topics[id]
	return t, ok
}

// GetTeachingNotes returns teaching notes for a topic ID.
func (l *Loader) GetTeachingNotes(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.teachingNotes[id]
	return n, ok
}

// AllTopics returns all loaded topics ordered by ID.
func (l *Loader) AllTopics() []Topic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	topics := make([]Topic, 0, len(l.topics))
	for _, t := range l.topics {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].ID < topics[j].ID })
	return topics
}

// ExtractTopics returns the IDs of topics with at least one keyword in text,
// in catalog order. Matching ignores case.
func (l *Loader) ExtractTopics(text string) []string {
	folded := cases.Fold().String(text)

	found := []string{}
	for _, t := range l.AllTopics() {
		l.mu.RLock()
		kws := l.keywords[t.ID]
		l.mu.RUnlock()
		for _, kw := range kws {
			if strings.Contains(folded, kw) {
				found = append(found, t.ID)
				break
			}
		}
	}
	return found
}

// GetTask returns the practice task for topic at difficulty. Levels without
// a task fall back to the medium task.
func (l *Loader) GetTask(topic, difficulty string) (string, bool) {
	t, ok := l.GetTopic(topic)
	if !ok {
		return "", false
	}

	var task string
	switch difficulty {
	case "easy":
		task = t.Tasks.Easy
	case "hard":
		task = t.Tasks.Hard
	default:
		task = t.Tasks.Medium
	}
	if task == "" {
		task = t.Tasks.Medium
	}
	return task, task != ""
}

// GetTopicDescription describes topic for display.
func (l *Loader) GetTopicDescription(topic string) string {
	t, ok := l.GetTopic(topic)
	if !ok {
		return defaultDescription
	}
	switch {
	case t.Description != "":
		return t.Description
	case len(t.LearningObjectives) > 0:
		return t.LearningObjectives[0].Text
	case t.Name != "":
		return t.Name
	}
	return defaultDescription
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, ".teaching.md"):
			return l.loadTeachingNotes(path)
		case strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml"):
			if strings.HasSuffix(path, ".assessments.yaml") || strings.HasSuffix(path, ".examples.yaml") {
				return nil // Skip non-topic YAML
			}
			return l.loadTopic(path)
		}
		return nil
	})
}

func (l *Loader) loadTopic(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var topic Topic
	if err := yaml.Unmarshal(data, &topic); err != nil {
		slog.Warn("skipping invalid topic YAML", "path", path, "error", err)
		return nil
	}

	if topic.ID == "" {
		return nil // Not a topic file
	}

	fold := cases.Fold()
	kws := make([]string, 0, len(topic.Keywords))
	for _, kw := range topic.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			kws = append(kws, fold.String(kw))
		}
	}

	l.mu.Lock()
	l.topics[topic.ID] = topic
	l.keywords[topic.ID] = kws
	l.mu.Unlock()

	return nil
}

func (l *Loader) loadTeachingNotes(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Derive topic ID from matching YAML file
	yamlPath := strings.TrimSuffix(path, ".teaching.md") + ".yaml"
	yamlData, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil // No matching YAML, skip
	}

	var partial struct {
		ID string `yaml:"id"`
	}
	if err := yaml.Unmarshal(yamlData, &partial); err != nil || partial.ID == "" {
		return nil
	}

	l.mu.Lock()
	l.teachingNotes[partial.ID] = string(data)
	l.mu.Unlock()

	return nil
}
