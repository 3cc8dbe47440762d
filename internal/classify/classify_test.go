package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mailcoach/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		sentiment models.Sentiment
		urgency   bool
	}{
		{
			name:      "empty text is neutral and not urgent",
			input:     "",
			sentiment: models.SentimentNeutral,
			urgency:   false,
		},
		{
			name:      "no keywords is neutral",
			input:     "Could you tell me the delivery window for order 4412?",
			sentiment: models.SentimentNeutral,
			urgency:   false,
		},
		{
			name:      "negative keywords win",
			input:     "I am very angry, this is a terrible problem",
			sentiment: models.SentimentNegative,
			urgency:   false,
		},
		{
			name:      "positive keywords win",
			input:     "Thank you, great service, I really appreciate it",
			sentiment: models.SentimentPositive,
			urgency:   false,
		},
		{
			name:      "tie resolves to neutral",
			input:     "thank you but there is a problem",
			sentiment: models.SentimentNeutral,
			urgency:   false,
		},
		{
			name:      "urgency keyword sets urgency",
			input:     "please respond asap",
			sentiment: models.SentimentNeutral,
			urgency:   true,
		},
		{
			name:      "urgency phrase with spaces",
			input:     "I need this fixed as soon as possible",
			sentiment: models.SentimentNeutral,
			urgency:   true,
		},
		{
			name:      "negative and urgent together",
			input:     "I am angry, fix this asap",
			sentiment: models.SentimentNegative,
			urgency:   true,
		},
		{
			name:      "matching is case insensitive",
			input:     "This is URGENT and I am FRUSTRATED",
			sentiment: models.SentimentNegative,
			urgency:   true,
		},
		{
			name:      "keywords match as substrings",
			input:     "I wanted to complain about the unhappiness this caused",
			sentiment: models.SentimentNegative,
			urgency:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sentiment, urgency := Classify(tt.input)
			assert.Equal(t, tt.sentiment, sentiment)
			assert.Equal(t, tt.urgency, urgency)
		})
	}
}

func TestClassifyNeverReturnsUnclassified(t *testing.T) {
	inputs := []string{"", "hello", "angry thank you", "urgent", "!@#$"}
	for _, input := range inputs {
		sentiment, _ := Classify(input)
		assert.True(t, sentiment.IsClassified(), "input %q", input)
		assert.NotEqual(t, models.SentimentUnclassified, sentiment)
	}
}

func BenchmarkClassify(b *testing.B) {
	input := "I am really frustrated with this problem, please help me as soon as possible"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Classify(input)
	}
}
