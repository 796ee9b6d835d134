package store

import "github.com/DeafMist/noise-to-signal/internal/models"

// StanceScore maps the stance index onto [-1, 1]: -1 is fully hedged, 1 is
// fully committed, 0 when no modality terms were found.
func StanceScore(m models.Modality) float64 {
	if !m.HasModality() {
		return 0
	}
	return 2*m.StanceIndex - 1
}

// Label buckets a stance score.
func Label(score float64) string {
	switch {
	case score >= 0.5:
		return "strong_commit"
	case score >= 0.2:
		return "commit"
	case score <= -0.5:
		return "strong_hedge"
	case score <= -0.2:
		return "hedge"
	default:
		return "neutral"
	}
}
