package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			max:      5,
			expected: nil,
		},
		{
			name:     "whitespace only",
			input:    "   \n\t  ",
			max:      5,
			expected: nil,
		},
		{
			name:     "short words filtered",
			input:    "my new vpn is down",
			max:      5,
			expected: []string{},
		},
		{
			name:     "stopwords filtered",
			input:    "hello please thanks regards invoice",
			max:      5,
			expected: []string{"invoice"},
		},
		{
			name:     "duplicates removed preserving order",
			input:    "refund delayed refund shipment delayed",
			max:      5,
			expected: []string{"refund", "delayed", "shipment"},
		},
		{
			name:     "respects max",
			input:    "account invoice payment shipment refund warranty",
			max:      3,
			expected: []string{"account", "invoice", "payment"},
		},
		{
			name:     "lowercases and strips punctuation",
			input:    "URGENT: Billing-Issue, please RESPOND!",
			max:      5,
			expected: []string{"urgent", "billing", "issue", "respond"},
		},
		{
			name:     "non-positive max uses default",
			input:    "account invoice payment shipment refund warranty",
			max:      0,
			expected: []string{"account", "invoice", "payment", "shipment", "refund"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractKeywords(tt.input, tt.max)
			if tt.expected == nil {
				assert.Nil(t, result)
				return
			}
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestKeywordsCSV(t *testing.T) {
	assert.Equal(t, "refund,delayed,shipment", KeywordsCSV("refund delayed refund shipment", 5))
	assert.Equal(t, "", KeywordsCSV("", 5))
	assert.Equal(t, "", KeywordsCSV("a b c", 5))
}

func BenchmarkExtractKeywords(b *testing.B) {
	input := "Hello, I am writing about a delayed refund on invoice 4417, please respond urgently"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ExtractKeywords(input, DefaultMaxKeywords)
	}
}
