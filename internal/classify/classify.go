// Package classify implements deterministic keyword-based sentiment and
// urgency detection. It is pure and makes no external calls, which keeps it
// testable and usable as the offline fallback when the generative backend is
// disabled.
package classify

import (
	"strings"

	"mailcoach/internal/models"
)

var negativeKeywords = []string{
	"complain", "terrible", "bad", "angry", "frustrated",
	"upset", "issue", "problem", "unhappy", "unsatisfied",
}

var positiveKeywords = []string{
	"thank", "great", "good", "appreciate", "love", "happy", "excellent",
}

var urgencyKeywords = []string{
	"urgent", "immediately", "asap", "as soon as possible", "now", "important",
}

// Classify returns the sentiment and urgency of the given text. Sentiment is
// a majority vote between positive and negative keyword hits; a tie or no
// hits yields Neutral. Urgency is true when any urgency keyword is present.
// The unclassified sentinel is never returned.
func Classify(text string) (models.Sentiment, bool) {
	if text == "" {
		return models.SentimentNeutral, false
	}
	lowered := strings.ToLower(text)

	positive := countHits(lowered, positiveKeywords)
	negative := countHits(lowered, negativeKeywords)

	sentiment := models.SentimentNeutral
	switch {
	case positive > negative:
		sentiment = models.SentimentPositive
	case negative > positive:
		sentiment = models.SentimentNegative
	}

	urgency := false
	for _, kw := range urgencyKeywords {
		if strings.Contains(lowered, kw) {
			urgency = true
			break
		}
	}

	return sentiment, urgency
}

func countHits(lowered string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			hits++
		}
	}
	return hits
}
