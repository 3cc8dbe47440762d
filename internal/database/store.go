package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"mailcoach/internal/models"
)

// Store provides all persistence for threads, emails, attachments,
// knowledge-base entries, drafts and notifications. Queries are written with
// `?` placeholders and rebound for the active driver.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a store over an open database connection.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insertID executes an INSERT and returns the generated id, handling the
// driver difference between LastInsertId and RETURNING.
func insertID(ctx context.Context, q sqlx.ExtContext, query string, args ...interface{}) (int64, error) {
	if q.DriverName() == driverPostgres {
		var id int64
		err := sqlx.GetContext(ctx, q, &id, q.Rebind(query+" RETURNING id"), args...)
		return id, err
	}
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ---------------------------------------------------------------------------
// Threads

// UpsertThreadTx finds the thread for (owner, threadKey) or creates it.
func (s *Store) UpsertThreadTx(ctx context.Context, tx *sqlx.Tx, owner, threadKey, subject string) (*models.Thread, error) {
	var thread models.Thread
	err := sqlx.GetContext(ctx, tx, &thread,
		tx.Rebind(`SELECT * FROM threads WHERE owner = ? AND thread_key = ?`), owner, threadKey)
	if err == nil {
		return &thread, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up thread: %w", err)
	}

	id, err := insertID(ctx, tx,
		`INSERT INTO threads (owner, thread_key, subject) VALUES (?, ?, ?)`,
		owner, threadKey, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to insert thread: %w", err)
	}
	return &models.Thread{
		ID:        id,
		Owner:     owner,
		ThreadKey: threadKey,
		Subject:   subject,
		Sentiment: models.SentimentUnclassified,
	}, nil
}

// GetThread returns one thread by id.
func (s *Store) GetThread(ctx context.Context, id int64) (*models.Thread, error) {
	var thread models.Thread
	err := sqlx.GetContext(ctx, s.db, &thread, s.db.Rebind(`SELECT * FROM threads WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return &thread, nil
}

// ListThreadsByPriority returns unresolved threads, highest priority first.
func (s *Store) ListThreadsByPriority(ctx context.Context, limit int) ([]models.Thread, error) {
	threads := []models.Thread{}
	err := sqlx.SelectContext(ctx, s.db, &threads,
		s.db.Rebind(`SELECT * FROM threads WHERE resolved = FALSE ORDER BY priority_score DESC, updated_at DESC LIMIT ?`),
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

// UpdateThreadClassificationTx stores the latest aggregate classification on
// the thread, inside the same transaction as the email it derives from.
func (s *Store) UpdateThreadClassificationTx(ctx context.Context, tx *sqlx.Tx, id int64, sentiment models.Sentiment, urgency bool, priority int) error {
	res, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE threads SET sentiment = ?, urgency = ?, priority_score = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`),
		sentiment, urgency, priority, id)
	if err != nil {
		return fmt.Errorf("failed to update thread classification: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: thread %d does not exist", ErrInvariant, id)
	}
	return nil
}

// ListUnresolvedUrgentThreads returns threads eligible for overdue alerts.
func (s *Store) ListUnresolvedUrgentThreads(ctx context.Context) ([]models.Thread, error) {
	threads := []models.Thread{}
	err := sqlx.SelectContext(ctx, s.db, &threads,
		`SELECT * FROM threads WHERE resolved = FALSE AND urgency = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list urgent threads: %w", err)
	}
	return threads, nil
}

// ---------------------------------------------------------------------------
// Emails

// InsertEmailTx persists an email, setting its generated ID.
func (s *Store) InsertEmailTx(ctx context.Context, tx *sqlx.Tx, email *models.Email) error {
	id, err := insertID(ctx, tx,
		`INSERT INTO emails (thread_id, message_id, sender, recipients, subject, body, timestamp, keywords, sentiment, urgency)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		email.ThreadID, email.MessageID, email.Sender, email.Recipients, email.Subject,
		email.Body, email.Timestamp, email.Keywords, models.SentimentUnclassified, false)
	if err != nil {
		return fmt.Errorf("failed to insert email: %w", err)
	}
	email.ID = id
	email.Sentiment = models.SentimentUnclassified
	return nil
}

// EmailExists reports whether a message with this server-provided identifier
// was already ingested. Used to keep ingestion idempotent against re-reads.
func (s *Store) EmailExists(ctx context.Context, messageID string) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, s.db, &count,
		s.db.Rebind(`SELECT COUNT(*) FROM emails WHERE message_id = ?`), messageID)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return count > 0, nil
}

// ListUnclassifiedEmails returns emails still carrying the unclassified
// sentinel, oldest first.
func (s *Store) ListUnclassifiedEmails(ctx context.Context, limit int) ([]models.Email, error) {
	emails := []models.Email{}
	err := sqlx.SelectContext(ctx, s.db, &emails,
		s.db.Rebind(`SELECT * FROM emails WHERE sentiment = ? ORDER BY timestamp ASC LIMIT ?`),
		models.SentimentUnclassified, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unclassified emails: %w", err)
	}
	return emails, nil
}

// UpdateEmailClassificationTx stores the classification outcome on the email.
func (s *Store) UpdateEmailClassificationTx(ctx context.Context, tx *sqlx.Tx, id int64, sentiment models.Sentiment, urgency bool) error {
	_, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE emails SET sentiment = ?, urgency = ? WHERE id = ?`),
		sentiment, urgency, id)
	if err != nil {
		return fmt.Errorf("failed to update email classification: %w", err)
	}
	return nil
}

// ListEmailsByThread returns a thread's emails, oldest first.
func (s *Store) ListEmailsByThread(ctx context.Context, threadID int64) ([]models.Email, error) {
	emails := []models.Email{}
	err := sqlx.SelectContext(ctx, s.db, &emails,
		s.db.Rebind(`SELECT * FROM emails WHERE thread_id = ? ORDER BY timestamp ASC`), threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread emails: %w", err)
	}
	return emails, nil
}

// LatestEmailForThread returns the most recent email in a thread.
func (s *Store) LatestEmailForThread(ctx context.Context, threadID int64) (*models.Email, error) {
	var email models.Email
	err := sqlx.GetContext(ctx, s.db, &email,
		s.db.Rebind(`SELECT * FROM emails WHERE thread_id = ? ORDER BY timestamp DESC LIMIT 1`), threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest email: %w", err)
	}
	return &email, nil
}

// ---------------------------------------------------------------------------
// Attachments

// InsertAttachmentTx persists an attachment row, setting its generated ID.
func (s *Store) InsertAttachmentTx(ctx context.Context, tx *sqlx.Tx, att *models.Attachment) error {
	id, err := insertID(ctx, tx,
		`INSERT INTO attachments (email_id, filename, content_type, path) VALUES (?, ?, ?, ?)`,
		att.EmailID, att.Filename, att.ContentType, att.Path)
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	att.ID = id
	return nil
}

// ListAttachmentsByEmail returns all attachments of one email.
func (s *Store) ListAttachmentsByEmail(ctx context.Context, emailID int64) ([]models.Attachment, error) {
	atts := []models.Attachment{}
	err := sqlx.SelectContext(ctx, s.db, &atts,
		s.db.Rebind(`SELECT * FROM attachments WHERE email_id = ?`), emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return atts, nil
}

// UpdateAttachmentText overwrites the extracted text of one attachment.
// Extraction is idempotent, re-running replaces the previous result.
func (s *Store) UpdateAttachmentText(ctx context.Context, id int64, text string) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE attachments SET extracted_text = ? WHERE id = ?`), text, id)
	if err != nil {
		return fmt.Errorf("failed to update attachment text: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Knowledge base

// InsertKBEntry adds a knowledge snippet.
func (s *Store) InsertKBEntry(ctx context.Context, title, content string) (*models.KBEntry, error) {
	id, err := insertID(ctx, s.db,
		`INSERT INTO kb_entries (title, content) VALUES (?, ?)`, title, content)
	if err != nil {
		return nil, fmt.Errorf("failed to insert kb entry: %w", err)
	}
	return &models.KBEntry{ID: id, Title: title, Content: content, CreatedAt: time.Now()}, nil
}

// ListKBEntries returns all knowledge snippets.
func (s *Store) ListKBEntries(ctx context.Context) ([]models.KBEntry, error) {
	entries := []models.KBEntry{}
	err := sqlx.SelectContext(ctx, s.db, &entries, `SELECT * FROM kb_entries ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list kb entries: %w", err)
	}
	return entries, nil
}

// KBVersion returns a value that changes whenever the knowledge base
// gains or loses entries. Index holders compare it against the version
// they indexed to detect mutations made by another process.
func (s *Store) KBVersion(ctx context.Context) (int64, error) {
	var version int64
	err := sqlx.GetContext(ctx, s.db, &version,
		`SELECT COALESCE(MAX(id), 0) + COUNT(*) FROM kb_entries`)
	if err != nil {
		return 0, fmt.Errorf("failed to read kb version: %w", err)
	}
	return version, nil
}

// UpdateKBEmbedding caches the embedding for one entry together with the
// checksum of the content it was computed from.
func (s *Store) UpdateKBEmbedding(ctx context.Context, id int64, embeddingJSON, checksum string) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE kb_entries SET embedding = ?, embedding_checksum = ? WHERE id = ?`),
		embeddingJSON, checksum, id)
	if err != nil {
		return fmt.Errorf("failed to cache kb embedding: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Drafts

// GetDraft returns one draft by id.
func (s *Store) GetDraft(ctx context.Context, id int64) (*models.Draft, error) {
	var draft models.Draft
	err := sqlx.GetContext(ctx, s.db, &draft, s.db.Rebind(`SELECT * FROM drafts WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return &draft, nil
}

// GetDraftByThread returns the thread's draft if one exists.
func (s *Store) GetDraftByThread(ctx context.Context, threadID int64) (*models.Draft, error) {
	var draft models.Draft
	err := sqlx.GetContext(ctx, s.db, &draft,
		s.db.Rebind(`SELECT * FROM drafts WHERE thread_id = ?`), threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return &draft, nil
}

// UpsertDraft creates or regenerates the thread's draft inside one
// transaction. The thread row is locked for the duration so concurrent
// processing passes cannot race on the same draft. A draft that was already
// sent is never overwritten; the stored draft is returned unchanged.
func (s *Store) UpsertDraft(ctx context.Context, draft *models.Draft) (*models.Draft, error) {
	var stored models.Draft
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		// Serialize per thread. MySQL and Postgres both support FOR UPDATE.
		var threadID int64
		err := sqlx.GetContext(ctx, tx, &threadID,
			tx.Rebind(`SELECT id FROM threads WHERE id = ? FOR UPDATE`), draft.ThreadID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: draft references nonexistent thread %d", ErrInvariant, draft.ThreadID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock thread: %w", err)
		}

		var existing models.Draft
		err = sqlx.GetContext(ctx, tx, &existing,
			tx.Rebind(`SELECT * FROM drafts WHERE thread_id = ?`), draft.ThreadID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id, err := insertID(ctx, tx,
				`INSERT INTO drafts (thread_id, reply_text, justification, confidence, tone, sentiment, coach_score)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				draft.ThreadID, draft.ReplyText, draft.Justification, draft.Confidence,
				draft.Tone, draft.Sentiment, draft.CoachScore)
			if err != nil {
				return fmt.Errorf("failed to insert draft: %w", err)
			}
			stored = *draft
			stored.ID = id
			return nil
		case err != nil:
			return fmt.Errorf("failed to look up draft: %w", err)
		case existing.Sent:
			// Sent drafts are frozen.
			stored = existing
			return nil
		}

		_, err = tx.ExecContext(ctx,
			tx.Rebind(`UPDATE drafts SET reply_text = ?, justification = ?, confidence = ?, tone = ?, sentiment = ?, coach_score = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`),
			draft.ReplyText, draft.Justification, draft.Confidence, draft.Tone,
			draft.Sentiment, draft.CoachScore, existing.ID)
		if err != nil {
			return fmt.Errorf("failed to update draft: %w", err)
		}
		stored = *draft
		stored.ID = existing.ID
		stored.Sent = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// UpdateDraftReply replaces the reply text of an unsent draft.
func (s *Store) UpdateDraftReply(ctx context.Context, draftID int64, replyText string) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE drafts SET reply_text = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND sent = FALSE`),
		replyText, draftID)
	if err != nil {
		return fmt.Errorf("failed to update draft reply: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDraftSent flips the draft to sent and resolves its thread in one
// transaction; the two transitions are atomic with respect to each other.
func (s *Store) MarkDraftSent(ctx context.Context, draftID int64) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		var draft models.Draft
		err := sqlx.GetContext(ctx, tx, &draft,
			tx.Rebind(`SELECT * FROM drafts WHERE id = ? FOR UPDATE`), draftID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock draft: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`UPDATE drafts SET sent = TRUE, updated_at = CURRENT_TIMESTAMP WHERE id = ?`), draftID); err != nil {
			return fmt.Errorf("failed to mark draft sent: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			tx.Rebind(`UPDATE threads SET resolved = TRUE, updated_at = CURRENT_TIMESTAMP WHERE id = ?`), draft.ThreadID)
		if err != nil {
			return fmt.Errorf("failed to resolve thread: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: draft %d references nonexistent thread %d", ErrInvariant, draftID, draft.ThreadID)
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// Notifications

// InsertNotification records one successfully delivered alert.
func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	id, err := insertID(ctx, s.db,
		`INSERT INTO notifications (thread_id, email_id, message, channel) VALUES (?, ?, ?, ?)`,
		n.ThreadID, n.EmailID, n.Message, n.Channel)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	n.ID = id
	return nil
}

// HasNotificationSince reports whether the thread was already alerted at or
// after the given time. Keeps one overdue alert per new customer message.
func (s *Store) HasNotificationSince(ctx context.Context, threadID int64, since time.Time) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, s.db, &count,
		s.db.Rebind(`SELECT COUNT(*) FROM notifications WHERE thread_id = ? AND sent_at >= ?`),
		threadID, since)
	if err != nil {
		return false, fmt.Errorf("failed to check notifications: %w", err)
	}
	return count > 0, nil
}

// ListNotificationsByThread returns a thread's alert history, newest first.
func (s *Store) ListNotificationsByThread(ctx context.Context, threadID int64) ([]models.Notification, error) {
	notifications := []models.Notification{}
	err := sqlx.SelectContext(ctx, s.db, &notifications,
		s.db.Rebind(`SELECT * FROM notifications WHERE thread_id = ? ORDER BY sent_at DESC`), threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}
