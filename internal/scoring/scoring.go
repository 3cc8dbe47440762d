// Package scoring holds the pure ranking functions: message priority and the
// blended trust score shown next to generated drafts.
package scoring

import (
	"time"

	"mailcoach/internal/models"
)

const (
	urgencyBonus    = 50
	negativeBonus   = 20
	positivePenalty = 10
	ageBonusCap     = 30
)

// Priority computes the integer ranking score for a message: +50 when
// urgent, +20 for negative sentiment, -10 for positive sentiment, plus one
// point per 10 minutes of age capped at 30. The result is floored at 0 and
// is monotonic in both age and urgency.
func Priority(sentiment models.Sentiment, urgency bool, timestamp, now time.Time) int {
	score := 0
	if urgency {
		score += urgencyBonus
	}
	switch sentiment {
	case models.SentimentNegative:
		score += negativeBonus
	case models.SentimentPositive:
		score -= positivePenalty
	}

	ageMinutes := now.Sub(timestamp).Minutes()
	if ageMinutes > 0 {
		ageBonus := int(ageMinutes / 10)
		if ageBonus > ageBonusCap {
			ageBonus = ageBonusCap
		}
		score += ageBonus
	}

	if score < 0 {
		return 0
	}
	return score
}

// Trust blends the generator's confidence (weighted 70%) with a heuristic
// signal (weighted 30%) into a score clamped to [0, 100].
func Trust(confidence, heuristic float64) float64 {
	trust := confidence*70.0 + heuristic*30.0
	if trust < 0 {
		return 0
	}
	if trust > 100 {
		return 100
	}
	return trust
}
