package progress

const (
	// MinMastery and MaxMastery bound every mastery score.
	MinMastery = 0.0
	MaxMastery = 100.0

	// WeakMasteryThreshold is the score below which a practiced topic is weak.
	WeakMasteryThreshold = 70.0

	// DefaultMinEncounters is how often a topic must be seen before it can be weak.
	DefaultMinEncounters = 2

	masteryStep     = 0.5
	neutralRate     = 50.0
	hardThreshold   = 80.0
	mediumThreshold = 50.0
)

// NextMastery applies one rated attempt to a mastery score. A success rate of
// 50 leaves the score unchanged; the result is clamped into [0, 100].
func NextMastery(current, successRate float64) float64 {
	return clamp(current+(successRate-neutralRate)*masteryStep, MinMastery, MaxMastery)
}

// DifficultyFor maps a mastery score to the task difficulty to practice next.
func DifficultyFor(score float64) Difficulty {
	switch {
	case score > hardThreshold:
		return DifficultyHard
	case score > mediumThreshold:
		return DifficultyMedium
	default:
		return DifficultyEasy
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
