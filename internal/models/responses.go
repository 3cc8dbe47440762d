package models

import "time"

// HealthResponse represents a basic health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// DBHealthResponse represents a database health check response
type DBHealthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// ThreadListResponse is the payload for the thread queue, ordered by
// priority.
type ThreadListResponse struct {
	Threads []Thread `json:"threads"`
	Count   int      `json:"count"`
}

// ThreadDetailResponse bundles a thread with its emails and draft reply.
// Draft is nil when no reply has been generated yet.
type ThreadDetailResponse struct {
	Thread        Thread         `json:"thread"`
	Emails        []Email        `json:"emails"`
	Draft         *Draft         `json:"draft,omitempty"`
	Notifications []Notification `json:"notifications,omitempty"`
}

// UpdateDraftRequest carries an agent's edit to a pending draft.
type UpdateDraftRequest struct {
	ReplyText string `json:"reply_text"`
}

// TranslateDraftRequest asks for a draft rendered in another language.
type TranslateDraftRequest struct {
	TargetLanguage string `json:"target_language"`
}

// TranslateDraftResponse carries the translated reply text. The stored
// draft is left untouched.
type TranslateDraftResponse struct {
	DraftID        int64  `json:"draft_id"`
	TargetLanguage string `json:"target_language"`
	ReplyText      string `json:"reply_text"`
}

// CreateKBEntryRequest adds one knowledge base entry.
type CreateKBEntryRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// KBListResponse lists knowledge base entries without embedding payloads.
type KBListResponse struct {
	Entries []KBEntry `json:"entries"`
	Count   int       `json:"count"`
}

// ReindexResponse reports the knowledge index generation after a rebuild.
type ReindexResponse struct {
	Success    bool   `json:"success"`
	Generation uint64 `json:"generation"`
	Error      string `json:"error,omitempty"`
}

// ActionResponse is the generic success/failure payload for mutations.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
