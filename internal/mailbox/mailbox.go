// Package mailbox implements the mail-source contract over IMAP: list
// unseen messages with parsed headers, bodies and attachments, and mark them
// seen after they are safely persisted.
package mailbox

import (
	"strings"
	"time"
)

// AttachmentData carries one decoded attachment of a raw message.
type AttachmentData struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RawMessage is a parsed unseen message from the mail server.
type RawMessage struct {
	UID         uint32
	MessageID   string
	ThreadIndex string // conversation header set by some servers
	Subject     string
	Sender      string
	Recipients  []string
	Date        time.Time
	Body        string
	Attachments []AttachmentData
}

// ConversationKey resolves the identifier that groups this message into a
// thread: the explicit thread header when present, else the message
// identifier, else the raw subject.
func (m *RawMessage) ConversationKey() string {
	if m.ThreadIndex != "" {
		return m.ThreadIndex
	}
	if m.MessageID != "" {
		return cleanMessageID(m.MessageID)
	}
	return m.Subject
}

// SubjectMatches reports whether the subject contains any of the allow-list
// keywords, case-insensitively.
func (m *RawMessage) SubjectMatches(keywords []string) bool {
	subject := strings.ToLower(m.Subject)
	for _, kw := range keywords {
		if strings.Contains(subject, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// cleanMessageID removes < and > from Message-IDs.
func cleanMessageID(msgID string) string {
	msgID = strings.TrimPrefix(msgID, "<")
	msgID = strings.TrimSuffix(msgID, ">")
	return msgID
}
