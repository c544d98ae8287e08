package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Topics is an insertion-ordered map of topic ID to state. Iteration order is
// the order topics were first added, and it survives JSON round trips.
type Topics struct {
	keys   []string
	states map[string]*TopicState
}

// NewTopics returns an empty ordered topic map.
func NewTopics() *Topics {
	return &Topics{states: make(map[string]*TopicState)}
}

// Len returns the number of topics.
func (t *Topics) Len() int {
	return len(t.keys)
}

// Get returns the state for id.
func (t *Topics) Get(id string) (*TopicState, bool) {
	s, ok := t.states[id]
	return s, ok
}

// Has reports whether id is present.
func (t *Topics) Has(id string) bool {
	_, ok := t.states[id]
	return ok
}

// Set stores state under id. A new id is appended to the iteration order;
// an existing id keeps its position.
func (t *Topics) Set(id string, state *TopicState) {
	if t.states == nil {
		t.states = make(map[string]*TopicState)
	}
	if _, ok := t.states[id]; !ok {
		t.keys = append(t.keys, id)
	}
	t.states[id] = state
}

// Keys returns topic IDs in insertion order.
func (t *Topics) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Each calls fn for every topic in insertion order.
func (t *Topics) Each(fn func(id string, state *TopicState)) {
	for _, k := range t.keys {
		fn(k, t.states[k])
	}
}

// MarshalJSON writes the topics as a JSON object in insertion order.
func (t *Topics) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := marshalNoEscape(t.states[k])
		if err != nil {
			return nil, fmt.Errorf("topic %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping the key order of the document.
func (t *Topics) UnmarshalJSON(data []byte) error {
	entries, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("topics: %w", err)
	}

	out := NewTopics()
	for _, e := range entries {
		state := &TopicState{}
		if err := json.Unmarshal(e.Value, state); err != nil {
			return fmt.Errorf("topic %q: %w", e.Key, err)
		}
		if score := clamp(state.MasteryScore, MinMastery, MaxMastery); score != state.MasteryScore {
			state.MasteryScore = score
			state.DifficultyLevel = DifficultyFor(score)
		}
		if !state.DifficultyLevel.Valid() {
			state.DifficultyLevel = DifficultyMedium
		}
		out.Set(e.Key, state)
	}

	*t = *out
	return nil
}

// marshalNoEscape encodes v without HTML escaping so non-ASCII and markup
// characters stay human readable in the stored document.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
