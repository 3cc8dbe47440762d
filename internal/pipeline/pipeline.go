// Package pipeline drives the three background steps: ingest unseen mail,
// process unclassified emails into classified threads with drafts, and alert
// on stale urgent threads. Every step processes a bounded batch with
// per-item commit boundaries, so a partial failure loses at most one item's
// progress and the whole pipeline is idempotently re-runnable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mailcoach/internal/classify"
	"mailcoach/internal/config"
	"mailcoach/internal/database"
	"mailcoach/internal/genai"
	"mailcoach/internal/mailbox"
	"mailcoach/internal/models"
	"mailcoach/internal/notify"
	"mailcoach/internal/scoring"
	"mailcoach/internal/utils"
)

// processBatchSize bounds how many emails one processing pass handles.
const processBatchSize = 50

// Extractor turns an attachment file into plain text, degrading to "".
type Extractor interface {
	Extract(ctx context.Context, path, declaredKind string) string
}

// Retriever answers top-k knowledge queries.
type Retriever interface {
	TopK(ctx context.Context, query string, k int) ([]string, error)
}

// Generator produces a draft reply result.
type Generator interface {
	Generate(ctx context.Context, req genai.Request) genai.Result
}

// ReplySender delivers an approved draft to the customer.
type ReplySender interface {
	SendReply(ctx context.Context, to, subject, body string) error
}

// Pipeline owns the ingest → process → notify flow. In offline mode the
// generative members (extractor, retriever, generator) are nil: processing
// still classifies and ranks, but skips extraction and generation.
type Pipeline struct {
	store     *database.Store
	source    mailbox.Source
	extractor Extractor
	retriever Retriever
	generator Generator
	sender    ReplySender
	channels  []notify.Channel
	cfg       *config.Config
	logger    zerolog.Logger
	now       func() time.Time
}

// New wires the pipeline. source may be nil when only processing is wanted
// (e.g. the HTTP server process); extractor/retriever/generator are nil in
// offline mode.
func New(
	store *database.Store,
	source mailbox.Source,
	extractor Extractor,
	retriever Retriever,
	generator Generator,
	sender ReplySender,
	channels []notify.Channel,
	cfg *config.Config,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		store:     store,
		source:    source,
		extractor: extractor,
		retriever: retriever,
		generator: generator,
		sender:    sender,
		channels:  channels,
		cfg:       cfg,
		logger:    logger.With().Str("component", "pipeline").Logger(),
		now:       time.Now,
	}
}

// ---------------------------------------------------------------------------
// Ingestion

// Ingest pulls unseen messages from the mail source, filters them by the
// subject allow-list, threads them and persists one transaction per message.
// A message is marked seen on the server only after its transaction
// committed. Single-message failures are logged and skipped; the count of
// successfully ingested messages is returned.
func (p *Pipeline) Ingest(ctx context.Context) (int, error) {
	messages, err := p.source.ListUnseen(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unseen messages: %w", err)
	}

	count := 0
	for i := range messages {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		msg := &messages[i]

		if !msg.SubjectMatches(p.cfg.SubjectKeywords) {
			continue
		}

		if err := p.ingestOne(ctx, msg); err != nil {
			p.logger.Error().Err(err).Str("subject", msg.Subject).Uint32("uid", msg.UID).Msg("failed to ingest message")
			continue
		}
		count++
	}

	if count > 0 {
		p.logger.Info().Int("ingested", count).Int("unseen", len(messages)).Msg("ingestion pass complete")
	}
	return count, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, msg *mailbox.RawMessage) error {
	// Re-reading an already stored message is a no-op; it still gets marked
	// seen so it stops showing up in unseen searches.
	if msg.MessageID != "" {
		exists, err := p.store.EmailExists(ctx, msg.MessageID)
		if err != nil {
			return err
		}
		if exists {
			return p.source.MarkSeen(ctx, msg.UID)
		}
	}

	// Attachment files are written before the transaction; rows referencing
	// them are only visible once the transaction commits.
	paths, err := p.storeAttachmentFiles(msg)
	if err != nil {
		return err
	}

	err = p.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		thread, err := p.store.UpsertThreadTx(ctx, tx, p.cfg.IMAPUser, msg.ConversationKey(), msg.Subject)
		if err != nil {
			return err
		}

		email := &models.Email{
			ThreadID:   thread.ID,
			Sender:     msg.Sender,
			Recipients: strings.Join(msg.Recipients, ","),
			Subject:    msg.Subject,
			Body:       msg.Body,
			Timestamp:  msg.Date,
			Keywords:   utils.KeywordsCSV(msg.Body, utils.DefaultMaxKeywords),
		}
		if msg.MessageID != "" {
			messageID := msg.MessageID
			email.MessageID = &messageID
		}
		if err := p.store.InsertEmailTx(ctx, tx, email); err != nil {
			return err
		}

		for i, att := range msg.Attachments {
			record := &models.Attachment{
				EmailID:     email.ID,
				Filename:    att.Filename,
				ContentType: att.ContentType,
				Path:        paths[i],
			}
			if err := p.store.InsertAttachmentTx(ctx, tx, record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, path := range paths {
			_ = os.Remove(path)
		}
		return err
	}

	if err := p.source.MarkSeen(ctx, msg.UID); err != nil {
		// The message is stored; the duplicate check makes the next pass a
		// cheap no-op, so a failed flag update is not fatal.
		p.logger.Warn().Err(err).Uint32("uid", msg.UID).Msg("failed to mark message seen")
	}
	return nil
}

// storeAttachmentFiles writes each attachment to durable storage under a
// collision-resistant generated name and returns the paths, index-aligned
// with msg.Attachments.
func (p *Pipeline) storeAttachmentFiles(msg *mailbox.RawMessage) ([]string, error) {
	if len(msg.Attachments) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(p.cfg.AttachmentsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create attachments dir: %w", err)
	}

	paths := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		safeName := strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + filepath.Base(att.Filename)
		path := filepath.Join(p.cfg.AttachmentsDir, safeName)
		if err := os.WriteFile(path, att.Data, 0o644); err != nil {
			for _, written := range paths {
				_ = os.Remove(written)
			}
			return nil, fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ---------------------------------------------------------------------------
// Processing

// Process handles every email still in the unclassified sentinel state:
// extraction, classification, thread aggregate and priority update, then
// retrieval, draft generation and trust stamping when a generative backend
// is available. Each email commits independently.
func (p *Pipeline) Process(ctx context.Context) (int, error) {
	emails, err := p.store.ListUnclassifiedEmails(ctx, processBatchSize)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range emails {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if err := p.processOne(ctx, &emails[i]); err != nil {
			p.logger.Error().Err(err).Int64("email_id", emails[i].ID).Msg("failed to process email")
			continue
		}
		count++
	}

	if count > 0 {
		p.logger.Info().Int("processed", count).Msg("processing pass complete")
	}
	return count, nil
}

func (p *Pipeline) processOne(ctx context.Context, email *models.Email) error {
	attachmentText := p.extractAttachments(ctx, email.ID)

	combined := email.Body
	if attachmentText != "" {
		combined += "\n" + attachmentText
	}
	sentiment, urgency := classify.Classify(combined)
	priority := scoring.Priority(sentiment, urgency, email.Timestamp, p.now())

	err := p.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := p.store.UpdateEmailClassificationTx(ctx, tx, email.ID, sentiment, urgency); err != nil {
			return err
		}
		return p.store.UpdateThreadClassificationTx(ctx, tx, email.ThreadID, sentiment, urgency, priority)
	})
	if err != nil {
		return err
	}

	// Offline mode stops after classification and ranking.
	if p.generator == nil {
		return nil
	}
	return p.generateDraft(ctx, email.ThreadID, sentiment, urgency)
}

// extractAttachments runs the content extractor over the email's
// attachments, in parallel within the batch, writing each result exactly
// once. Extraction failures degrade to empty text and never fail the email.
func (p *Pipeline) extractAttachments(ctx context.Context, emailID int64) string {
	if p.extractor == nil {
		return ""
	}
	attachments, err := p.store.ListAttachmentsByEmail(ctx, emailID)
	if err != nil {
		p.logger.Warn().Err(err).Int64("email_id", emailID).Msg("failed to list attachments")
		return ""
	}
	if len(attachments) == 0 {
		return ""
	}

	texts := make([]string, len(attachments))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ExtractConcurrency)
	for i := range attachments {
		i := i
		g.Go(func() error {
			att := attachments[i]
			text := p.extractor.Extract(gctx, att.Path, att.ContentType)
			if err := p.store.UpdateAttachmentText(gctx, att.ID, text); err != nil {
				p.logger.Warn().Err(err).Int64("attachment_id", att.ID).Msg("failed to store extracted text")
				return nil
			}
			mu.Lock()
			texts[i] = text
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, failures degrade to ""

	var nonEmpty []string
	for _, t := range texts {
		if t != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	return strings.Join(nonEmpty, "\n")
}

func (p *Pipeline) generateDraft(ctx context.Context, threadID int64, sentiment models.Sentiment, urgency bool) error {
	emails, err := p.store.ListEmailsByThread(ctx, threadID)
	if err != nil {
		return err
	}

	transcript := utils.Pseudonymize(threadTranscript(emails))

	kbContext := ""
	if p.retriever != nil {
		snippets, err := p.retriever.TopK(ctx, transcript, p.cfg.RetrievalTopK)
		if err != nil {
			// Missing context degrades the draft, it does not block it.
			p.logger.Warn().Err(err).Int64("thread_id", threadID).Msg("knowledge retrieval failed")
		} else {
			kbContext = strings.Join(snippets, "\n---\n")
		}
	}

	tone := models.ToneFor(sentiment)
	result := p.generator.Generate(ctx, genai.Request{
		ThreadText: transcript,
		KBContext:  kbContext,
		Tone:       tone,
		Sentiment:  sentiment,
		Urgency:    urgency,
	})

	draft := &models.Draft{
		ThreadID:      threadID,
		ReplyText:     result.ReplyText,
		Justification: result.Justification,
		Confidence:    result.Confidence,
		Tone:          tone,
		Sentiment:     sentiment,
		CoachScore:    int(scoring.Trust(result.Confidence, 0)),
	}
	if _, err := p.store.UpsertDraft(ctx, draft); err != nil {
		return err
	}
	return nil
}

func threadTranscript(emails []models.Email) string {
	parts := make([]string, 0, len(emails))
	for _, e := range emails {
		parts = append(parts, fmt.Sprintf("From: %s\nSubject: %s\n%s", e.Sender, e.Subject, e.Body))
	}
	return strings.Join(parts, "\n\n")
}

// ---------------------------------------------------------------------------
// Notification

// Notify alerts on every unresolved urgent thread whose newest email is
// older than the configured timeout. A Notification row is recorded only
// when delivery succeeded; failures are logged and retried on a later pass.
// Returns the number of alerts delivered.
func (p *Pipeline) Notify(ctx context.Context) (int, error) {
	threads, err := p.store.ListUnresolvedUrgentThreads(ctx)
	if err != nil {
		return 0, err
	}

	timeout := time.Duration(p.cfg.PriorityTimeoutMinutes) * time.Minute
	count := 0
	for i := range threads {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		thread := &threads[i]

		latest, err := p.store.LatestEmailForThread(ctx, thread.ID)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			p.logger.Error().Err(err).Int64("thread_id", thread.ID).Msg("failed to load latest email")
			continue
		}
		if p.now().Sub(latest.Timestamp) < timeout {
			continue
		}

		// One alert per new customer message.
		alerted, err := p.store.HasNotificationSince(ctx, thread.ID, latest.Timestamp)
		if err != nil {
			p.logger.Error().Err(err).Int64("thread_id", thread.ID).Msg("failed to check notification history")
			continue
		}
		if alerted {
			continue
		}

		message := fmt.Sprintf("Urgent thread %q has been pending for more than %d minutes.",
			thread.Subject, p.cfg.PriorityTimeoutMinutes)
		if p.deliver(ctx, thread, latest, message) {
			count++
		}
	}

	if count > 0 {
		p.logger.Info().Int("alerts", count).Msg("notification pass complete")
	}
	return count, nil
}

// deliver sends the message on the first channel that accepts it and records
// the notification. Delivery failure is swallowed so a future run retries.
func (p *Pipeline) deliver(ctx context.Context, thread *models.Thread, latest *models.Email, message string) bool {
	notifyTimeout := time.Duration(p.cfg.NotifyTimeout) * time.Second
	for _, channel := range p.channels {
		sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		err := channel.Send(sendCtx, message)
		cancel()
		if err != nil {
			p.logger.Warn().Err(err).Str("channel", channel.Name()).Int64("thread_id", thread.ID).Msg("notification delivery failed")
			continue
		}

		emailID := latest.ID
		record := &models.Notification{
			ThreadID: thread.ID,
			EmailID:  &emailID,
			Message:  message,
			Channel:  channel.Name(),
		}
		if err := p.store.InsertNotification(ctx, record); err != nil {
			p.logger.Error().Err(err).Int64("thread_id", thread.ID).Msg("failed to record notification")
		}
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Draft approval

// ApproveAndSend delivers the draft reply to the customer and atomically
// marks the draft sent and its thread resolved. A draft that was already
// sent is rejected.
func (p *Pipeline) ApproveAndSend(ctx context.Context, draftID int64) error {
	draft, err := p.store.GetDraft(ctx, draftID)
	if err != nil {
		return err
	}
	if draft.Sent {
		return fmt.Errorf("draft %d was already sent", draftID)
	}

	thread, err := p.store.GetThread(ctx, draft.ThreadID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: draft %d references nonexistent thread %d", database.ErrInvariant, draftID, draft.ThreadID)
		}
		return err
	}
	latest, err := p.store.LatestEmailForThread(ctx, thread.ID)
	if err != nil {
		return err
	}

	if p.sender == nil {
		return fmt.Errorf("no reply sender configured")
	}
	subject := thread.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	if err := p.sender.SendReply(ctx, latest.Sender, subject, draft.ReplyText); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}

	return p.store.MarkDraftSent(ctx, draftID)
}
