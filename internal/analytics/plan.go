package analytics

import (
	"fmt"
	"time"

	"github.com/p-n-ai/pai-progress/internal/progress"
)

// PlanTargetMastery is the score every planned topic aims for.
const PlanTargetMastery = 80.0

const reviewActivity = "Review previously covered material"

var maintenanceTips = []string{
	"Solve tasks of increased difficulty",
	"Help your classmates",
	"Explore related topics",
}

var planWeek = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// PlanDay is one day of a study plan.
type PlanDay struct {
	Day            string  `json:"day"`
	Topic          string  `json:"topic,omitempty"`
	Activity       string  `json:"activity"`
	CurrentMastery float64 `json:"current_mastery,omitempty"`
	TargetMastery  float64 `json:"target_mastery,omitempty"`
}

// Plan is a weekly study plan.
type Plan struct {
	HasWeakTopics bool      `json:"has_weak_topics"`
	Days          []PlanDay `json:"days,omitempty"`
	MainGoal      string    `json:"main_goal"`
	Tips          []string  `json:"tips,omitempty"`
}

// BuildStudyPlan assigns one weak topic per weekday, Monday first, and fills
// the remaining days with review. Without weak topics it returns a
// maintenance plan.
func BuildStudyPlan(rec *progress.Record) Plan {
	weak := progress.WeakTopics(rec, progress.DefaultMinEncounters)
	if len(weak) == 0 {
		return Plan{
			MainGoal: "Keep up the good work!",
			Tips:     append([]string(nil), maintenanceTips...),
		}
	}

	days := make([]PlanDay, 0, len(planWeek))
	for i, wd := range planWeek {
		if i >= len(weak) {
			days = append(days, PlanDay{Day: wd.String(), Activity: reviewActivity})
			continue
		}
		state, _ := rec.Topics.Get(weak[i])
		days = append(days, PlanDay{
			Day:            wd.String(),
			Topic:          weak[i],
			Activity:       fmt.Sprintf("Practice %s", weak[i]),
			CurrentMastery: state.MasteryScore,
			TargetMastery:  PlanTargetMastery,
		})
	}

	return Plan{
		HasWeakTopics: true,
		Days:          days,
		MainGoal:      fmt.Sprintf("Raise mastery of %q to %.0f%%", weak[0], PlanTargetMastery),
	}
}
