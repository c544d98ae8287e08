package progress

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stored records may carry timestamps without a zone offset, written as
// local wall-clock time. Those are read in time.Local.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp reads an RFC 3339 timestamp, falling back to ISO 8601
// local time with optional fractional seconds.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		// Fractional seconds after the seconds field are accepted even
		// though the layout does not name them.
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// timestamp decodes a JSON string with ParseTimestamp. null and "" leave it zero.
type timestamp time.Time

func (t *timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = timestamp(parsed)
	return nil
}

func (s *TopicState) UnmarshalJSON(data []byte) error {
	type plain TopicState
	aux := struct {
		*plain
		FirstEncounter timestamp `json:"first_encounter"`
		LastPracticed  timestamp `json:"last_practiced"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.FirstEncounter = time.Time(aux.FirstEncounter)
	s.LastPracticed = time.Time(aux.LastPracticed)
	return nil
}

func (r *SessionRecord) UnmarshalJSON(data []byte) error {
	type plain SessionRecord
	aux := struct {
		*plain
		Date timestamp `json:"date"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Date = time.Time(aux.Date)
	return nil
}
