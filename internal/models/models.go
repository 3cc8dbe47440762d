package models

import "time"

// Sentiment is a four-state classification outcome. Unclassified is the
// storage default and marks emails the processing step has not touched yet;
// the classifier itself only ever returns Neutral, Positive or Negative.
type Sentiment string

const (
	SentimentUnclassified Sentiment = "unclassified"
	SentimentNeutral      Sentiment = "neutral"
	SentimentPositive     Sentiment = "positive"
	SentimentNegative     Sentiment = "negative"
)

// IsClassified reports whether the sentiment holds a genuine classification
// result rather than the unprocessed sentinel.
func (s Sentiment) IsClassified() bool {
	return s == SentimentNeutral || s == SentimentPositive || s == SentimentNegative
}

// Tone selects the voice of a generated reply.
type Tone string

const (
	ToneEmpathetic Tone = "empathetic"
	ToneFormal     Tone = "formal"
)

// ToneFor picks the reply tone from the classified sentiment.
func ToneFor(s Sentiment) Tone {
	if s == SentimentNegative {
		return ToneEmpathetic
	}
	return ToneFormal
}

// Thread groups the emails of one conversation for one owning agent.
// Sentiment, urgency and priority are the most recent aggregate across its
// emails.
type Thread struct {
	ID            int64     `db:"id" json:"id"`
	Owner         string    `db:"owner" json:"owner"`
	ThreadKey     string    `db:"thread_key" json:"thread_key"` // identifier from the mail server, unique per owner
	Subject       string    `db:"subject" json:"subject"`
	Sentiment     Sentiment `db:"sentiment" json:"sentiment"`
	Urgency       bool      `db:"urgency" json:"urgency"`
	PriorityScore int       `db:"priority_score" json:"priority_score"`
	Resolved      bool      `db:"resolved" json:"resolved"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Email is one message within a thread.
type Email struct {
	ID         int64     `db:"id" json:"id"`
	ThreadID   int64     `db:"thread_id" json:"thread_id"`
	MessageID  *string   `db:"message_id" json:"message_id,omitempty"` // nullable, not all servers provide one
	Sender     string    `db:"sender" json:"sender"`
	Recipients string    `db:"recipients" json:"recipients"` // comma-separated
	Subject    string    `db:"subject" json:"subject"`
	Body       string    `db:"body" json:"body"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	Keywords   string    `db:"keywords" json:"keywords"` // comma-separated extracted keywords
	Sentiment  Sentiment `db:"sentiment" json:"sentiment"`
	Urgency    bool      `db:"urgency" json:"urgency"`
}

// Attachment is a binary artifact linked to one email. ExtractedText is
// filled asynchronously by the content extractor; re-extraction overwrites it.
type Attachment struct {
	ID            int64   `db:"id" json:"id"`
	EmailID       int64   `db:"email_id" json:"email_id"`
	Filename      string  `db:"filename" json:"filename"`
	ContentType   string  `db:"content_type" json:"content_type"`
	Path          string  `db:"path" json:"path"`
	ExtractedText *string `db:"extracted_text" json:"extracted_text,omitempty"`
}

// KBEntry is a knowledge snippet used to ground generated replies. The
// embedding columns are a cache keyed by the content checksum; the vector
// index is always rebuildable from these rows.
type KBEntry struct {
	ID                int64     `db:"id" json:"id"`
	Title             string    `db:"title" json:"title"`
	Content           string    `db:"content" json:"content"`
	Embedding         *string   `db:"embedding" json:"-"`          // JSON array of floats, nullable
	EmbeddingChecksum *string   `db:"embedding_checksum" json:"-"` // sha256 of content at embed time
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Draft is the generated reply for a thread; at most one exists per thread.
// Once Sent is true the owning thread is resolved and the reply text is
// frozen.
type Draft struct {
	ID            int64     `db:"id" json:"id"`
	ThreadID      int64     `db:"thread_id" json:"thread_id"`
	ReplyText     string    `db:"reply_text" json:"reply_text"`
	Justification string    `db:"justification" json:"justification"`
	Confidence    float64   `db:"confidence" json:"confidence"` // 0.0 - 1.0 from the generator
	Tone          Tone      `db:"tone" json:"tone"`
	Sentiment     Sentiment `db:"sentiment" json:"sentiment"` // snapshot at generation time
	CoachScore    int       `db:"coach_score" json:"coach_score"` // blended trust score, 0 - 100
	Sent          bool      `db:"sent" json:"sent"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Notification records one delivered alert, used for audit and dedup of
// urgent-overdue alerts. Rows exist only for deliveries that succeeded.
type Notification struct {
	ID       int64     `db:"id" json:"id"`
	ThreadID int64     `db:"thread_id" json:"thread_id"`
	EmailID  *int64    `db:"email_id" json:"email_id,omitempty"`
	Message  string    `db:"message" json:"message"`
	Channel  string    `db:"channel" json:"channel"` // slack or email
	SentAt   time.Time `db:"sent_at" json:"sent_at"`
}
