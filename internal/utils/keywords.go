package utils

import (
	"regexp"
	"strings"
)

var (
	tokenPattern = regexp.MustCompile(`[a-z0-9]+`)
	stopwords    = map[string]struct{}{
		"about": {}, "after": {}, "again": {}, "could": {}, "hello": {},
		"please": {}, "regards": {}, "should": {}, "thank": {}, "thanks": {},
		"their": {}, "there": {}, "these": {}, "those": {}, "where": {},
		"which": {}, "would": {}, "write": {}, "writing": {}, "yours": {},
	}
)

// DefaultMaxKeywords bounds how many keywords are stored per email.
const DefaultMaxKeywords = 5

// minKeywordLength filters short filler words; anything under five
// characters carries little signal for support triage.
const minKeywordLength = 5

// ExtractKeywords tokenizes text and returns up to maxKeywords unique words
// of at least five characters, preserving first-seen order.
func ExtractKeywords(text string, maxKeywords int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxKeywords <= 0 {
		maxKeywords = DefaultMaxKeywords
	}

	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(tokens))
	keywords := make([]string, 0, maxKeywords)
	for _, token := range tokens {
		if len(token) < minKeywordLength {
			continue
		}
		if _, isStopword := stopwords[token]; isStopword {
			continue
		}
		if _, exists := seen[token]; exists {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// KeywordsCSV renders the extracted keywords as a comma-separated string for
// storage on the email row.
func KeywordsCSV(text string, maxKeywords int) string {
	return strings.Join(ExtractKeywords(text, maxKeywords), ",")
}
