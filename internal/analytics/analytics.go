// Package analytics derives read-only reports from a student's progress record.
package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/p-n-ai/pai-progress/internal/progress"
)

const (
	reportWindow        = 7 * 24 * time.Hour
	topProblematic      = 3
	weakTopicsNamed     = 2
	minSessionsForTrend = 3
	inactivityCheckFrom = 5
	inactiveAfterDays   = 7
)

// Recommendation messages.
const (
	MsgAllClear        = "Great progress! All topics are well mastered."
	MsgReviewPrefix    = "We recommend reviewing: "
	MsgMoreData        = "Submit more work for a more accurate analysis."
	MsgRegularPractice = "You haven't practiced for more than a week. Regular practice is recommended!"
)

// TopicCount is a topic and how often it appeared in a period.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// WeeklyReport summarizes the last seven days of sessions.
type WeeklyReport struct {
	SessionsCount         int          `json:"sessions_count"`
	ActiveTopics          int          `json:"active_topics"`
	MostProblematicTopics []TopicCount `json:"most_problematic_topics"`
	TotalTopicsWorked     int          `json:"total_topics_worked"`
	// GeneratedAt is the instant the window ends at.
	GeneratedAt time.Time `json:"generated_at"`
	// ExpiresAt is when the earliest counted session leaves the window.
	// Zero when no session was counted.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether a session counted in r has left the window by now.
func (r WeeklyReport) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// BuildWeeklyReport counts sessions dated within seven days before now
// (boundary included) and the topics found in them. Ties in the top three
// keep the order in which topics were first seen in the window.
func BuildWeeklyReport(rec *progress.Record, now time.Time) WeeklyReport {
	cutoff := now.Add(-reportWindow)

	var order []string
	var earliest time.Time
	counts := make(map[string]int)
	sessions := 0
	for _, s := range rec.Sessions {
		if s.Date.Before(cutoff) {
			continue
		}
		sessions++
		if earliest.IsZero() || s.Date.Before(earliest) {
			earliest = s.Date
		}
		for _, topic := range s.FoundTopics {
			if _, seen := counts[topic]; !seen {
				order = append(order, topic)
			}
			counts[topic]++
		}
	}

	ranked := make([]TopicCount, 0, len(order))
	for _, topic := range order {
		ranked = append(ranked, TopicCount{Topic: topic, Count: counts[topic]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > topProblematic {
		ranked = ranked[:topProblematic]
	}

	report := WeeklyReport{
		SessionsCount:         sessions,
		ActiveTopics:          len(counts),
		MostProblematicTopics: ranked,
		TotalTopicsWorked:     progress.Summary(rec).TopicsWorked,
		GeneratedAt:           now,
	}
	if sessions > 0 {
		report.ExpiresAt = earliest.Add(reportWindow)
	}
	return report
}

// BuildRecommendations returns up to three advice lines in fixed order: weak
// topics (always present), a request for more data, an inactivity warning.
func BuildRecommendations(rec *progress.Record, now time.Time) []string {
	summary := progress.Summary(rec)
	weak := progress.WeakTopics(rec, progress.DefaultMinEncounters)

	var out []string
	if len(weak) == 0 {
		out = append(out, MsgAllClear)
	} else {
		named := weak[:min(len(weak), weakTopicsNamed)]
		out = append(out, MsgReviewPrefix+strings.Join(named, ", "))
	}

	if summary.TotalSessions < minSessionsForTrend {
		out = append(out, MsgMoreData)
	}

	if summary.TotalSessions > inactivityCheckFrom {
		if last, ok := rec.LastSession(); ok && DaysSince(last.Date, now) > inactiveAfterDays {
			out = append(out, MsgRegularPractice)
		}
	}

	return out
}

// DaysSince returns the number of whole days elapsed between t and now.
func DaysSince(t, now time.Time) int {
	d := now.Sub(t)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// TopicSummary is one row of the per-topic progress table.
type TopicSummary struct {
	Topic           string              `json:"topic"`
	MasteryScore    float64             `json:"mastery_score"`
	EncounterCount  int                 `json:"encounter_count"`
	DifficultyLevel progress.Difficulty `json:"difficulty_level"`
	LastPracticed   time.Time           `json:"last_practiced"`
	Weak            bool                `json:"weak"`
}

// BuildTopicProgress lists every topic in first-encounter order.
func BuildTopicProgress(rec *progress.Record) []TopicSummary {
	weak := make(map[string]bool)
	for _, id := range progress.WeakTopics(rec, progress.DefaultMinEncounters) {
		weak[id] = true
	}

	rows := []TopicSummary{}
	if rec.Topics == nil {
		return rows
	}
	rec.Topics.Each(func(id string, s *progress.TopicState) {
		rows = append(rows, TopicSummary{
			Topic:           id,
			MasteryScore:    s.MasteryScore,
			EncounterCount:  s.EncounterCount,
			DifficultyLevel: s.DifficultyLevel,
			LastPracticed:   s.LastPracticed,
			Weak:            weak[id],
		})
	})
	return rows
}

// FormatPercent renders a mastery score the way reports display it.
func FormatPercent(score float64) string {
	return fmt.Sprintf("%.1f%%", score)
}
