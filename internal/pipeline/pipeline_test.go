package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcoach/internal/config"
	"mailcoach/internal/database"
	"mailcoach/internal/genai"
	"mailcoach/internal/mailbox"
	"mailcoach/internal/models"
	"mailcoach/internal/notify"
)

type fakeSource struct {
	messages []mailbox.RawMessage
	seen     []uint32
	listErr  error
}

func (f *fakeSource) ListUnseen(_ context.Context) ([]mailbox.RawMessage, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.messages, nil
}

func (f *fakeSource) MarkSeen(_ context.Context, uid uint32) error {
	f.seen = append(f.seen, uid)
	return nil
}

type fakeChannel struct {
	name     string
	err      error
	messages []string
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, message string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message)
	return nil
}

type fakeSender struct {
	to      string
	subject string
	body    string
	err     error
}

func (f *fakeSender) SendReply(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.to, f.subject, f.body = to, subject, body
	return nil
}

type fakeGenerator struct {
	result genai.Result
	req    genai.Request
	calls  int
}

func (f *fakeGenerator) Generate(_ context.Context, req genai.Request) genai.Result {
	f.calls++
	f.req = req
	return f.result
}

type fakeRetriever struct {
	snippets []string
	query    string
}

func (f *fakeRetriever) TopK(_ context.Context, query string, _ int) ([]string, error) {
	f.query = query
	return f.snippets, nil
}

func testConfig() *config.Config {
	return &config.Config{
		IMAPUser:               "agent@corp.test",
		AttachmentsDir:         "attachments",
		SubjectKeywords:        []string{"support", "query", "request", "help"},
		NotifyTimeout:          5,
		PriorityTimeoutMinutes: 30,
		RetrievalTopK:          3,
		ExtractConcurrency:     2,
	}
}

func newMockStore(t *testing.T) (*database.Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return database.NewStore(sqlx.NewDb(mockDB, "mysql")), mock
}

func threadColumns() []string {
	return []string{"id", "owner", "thread_key", "subject", "sentiment", "urgency", "priority_score", "resolved", "created_at", "updated_at"}
}

func emailColumns() []string {
	return []string{"id", "thread_id", "message_id", "sender", "recipients", "subject", "body", "timestamp", "keywords", "sentiment", "urgency"}
}

func draftColumns() []string {
	return []string{"id", "thread_id", "reply_text", "justification", "confidence", "tone", "sentiment", "coach_score", "sent", "created_at", "updated_at"}
}

func TestThreadTranscript(t *testing.T) {
	emails := []models.Email{
		{Sender: "cust@x.test", Subject: "Support: refund", Body: "I want a refund."},
		{Sender: "agent@corp.test", Subject: "Re: Support: refund", Body: "Looking into it."},
	}
	transcript := threadTranscript(emails)
	assert.Equal(t,
		"From: cust@x.test\nSubject: Support: refund\nI want a refund.\n\n"+
			"From: agent@corp.test\nSubject: Re: Support: refund\nLooking into it.",
		transcript)
}

func TestIngestFiltersBySubject(t *testing.T) {
	store, mock := newMockStore(t)
	source := &fakeSource{messages: []mailbox.RawMessage{
		{UID: 1, Subject: "Weekly newsletter", Body: "news"},
	}}
	p := New(store, source, nil, nil, nil, nil, nil, testConfig(), zerolog.Nop())

	count, err := p.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, source.seen, "filtered messages stay unseen")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestStoresMatchingMessage(t *testing.T) {
	store, mock := newMockStore(t)
	date := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{messages: []mailbox.RawMessage{
		{
			UID:        42,
			MessageID:  "<m42@host>",
			Subject:    "Support: delayed refund",
			Sender:     "cust@x.test",
			Recipients: []string{"agent@corp.test"},
			Date:       date,
			Body:       "my refund is delayed",
		},
	}}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM emails WHERE message_id = \\?").
		WithArgs("<m42@host>").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM threads WHERE owner = \\? AND thread_key = \\?").
		WithArgs("agent@corp.test", "m42@host").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO threads").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO emails").
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectCommit()

	p := New(store, source, nil, nil, nil, nil, nil, testConfig(), zerolog.Nop())

	count, err := p.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []uint32{42}, source.seen, "stored message must be marked seen")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestSkipsDuplicateButMarksSeen(t *testing.T) {
	store, mock := newMockStore(t)
	source := &fakeSource{messages: []mailbox.RawMessage{
		{UID: 7, MessageID: "<dup@host>", Subject: "Support: again", Body: "hi"},
	}}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM emails WHERE message_id = \\?").
		WithArgs("<dup@host>").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	p := New(store, source, nil, nil, nil, nil, nil, testConfig(), zerolog.Nop())

	count, err := p.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []uint32{7}, source.seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessClassifiesAndScores(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT \\* FROM emails WHERE sentiment = \\?").
		WithArgs(string(models.SentimentUnclassified), 50).
		WillReturnRows(sqlmock.NewRows(emailColumns()).
			AddRow(10, 3, nil, "cust@x.test", "agent@corp.test", "Support: broken",
				"I am angry, please fix this asap", now, "", "unclassified", false))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE emails SET sentiment = \\?").
		WithArgs(string(models.SentimentNegative), true, int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE threads SET sentiment = \\?").
		WithArgs(string(models.SentimentNegative), true, 70, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// generator nil: offline mode, classification only
	p := New(store, nil, nil, nil, nil, nil, nil, testConfig(), zerolog.Nop())
	p.now = func() time.Time { return now }

	count, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessGeneratesDraft(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT \\* FROM emails WHERE sentiment = \\?").
		WithArgs(string(models.SentimentUnclassified), 50).
		WillReturnRows(sqlmock.NewRows(emailColumns()).
			AddRow(10, 3, nil, "cust@x.test", "agent@corp.test", "Support: broken",
				"I am angry, fix this asap. Reach me at cust@x.test", now, "", "unclassified", false))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE emails SET sentiment = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE threads SET sentiment = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT \\* FROM emails WHERE thread_id = \\?").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(emailColumns()).
			AddRow(10, 3, nil, "cust@x.test", "agent@corp.test", "Support: broken",
				"I am angry, fix this asap. Reach me at cust@x.test", now, "", "negative", true))
	// UpsertDraft transaction
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM threads WHERE id = \\? FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery("SELECT \\* FROM drafts WHERE thread_id = \\?").
		WithArgs(int64(3)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO drafts").
		WillReturnResult(sqlmock.NewResult(31, 1))
	mock.ExpectCommit()

	generator := &fakeGenerator{result: genai.Result{
		ReplyText:     "We are on it.",
		Justification: "Customer is upset.",
		Confidence:    0.6,
	}}
	retriever := &fakeRetriever{snippets: []string{"refund policy", "escalation steps"}}

	p := New(store, nil, nil, retriever, generator, nil, nil, testConfig(), zerolog.Nop())
	p.now = func() time.Time { return now }

	count, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, generator.calls)

	// Personal data is masked before leaving the system.
	assert.NotContains(t, generator.req.ThreadText, "cust@x.test")
	assert.Contains(t, generator.req.ThreadText, "[email]")
	assert.Contains(t, retriever.query, "[email]")
	assert.Equal(t, "refund policy\n---\nescalation steps", generator.req.KBContext)
	assert.Equal(t, models.ToneEmpathetic, generator.req.Tone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifySendsOverdueAlert(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	old := now.Add(-time.Hour)

	mock.ExpectQuery("SELECT \\* FROM threads WHERE resolved = FALSE AND urgency = TRUE").
		WillReturnRows(sqlmock.NewRows(threadColumns()).
			AddRow(3, "agent@corp.test", "k3", "Support: broken", "negative", true, 70, false, old, old))
	mock.ExpectQuery("SELECT \\* FROM emails WHERE thread_id = \\? ORDER BY timestamp DESC").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(emailColumns()).
			AddRow(10, 3, nil, "cust@x.test", "agent@corp.test", "Support: broken", "help", old, "", "negative", true))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM notifications WHERE thread_id = \\? AND sent_at >= \\?").
		WithArgs(int64(3), old).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(1, 1))

	channel := &fakeChannel{name: "slack"}
	p := New(store, nil, nil, nil, nil, nil, []notify.Channel{channel}, testConfig(), zerolog.Nop())
	p.now = func() time.Time { return now }

	count, err := p.Notify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, channel.messages, 1)
	assert.Contains(t, channel.messages[0], "Support: broken")
	assert.Contains(t, channel.messages[0], "30 minutes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifySkipsFreshThread(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-5 * time.Minute)

	mock.ExpectQuery("SELECT \\* FROM threads WHERE resolved = FALSE AND urgency = TRUE").
		WillReturnRows(sqlmock.NewRows(threadColumns()).
			AddRow(3, "agent@corp.test", "k3", "Support: broken", "negative", true, 70, false, recent, recent))
	mock.ExpectQuery("SELECT \\* FROM emails WHERE thread_id = \\? ORDER BY timestamp DESC").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(emailColumns()).
			AddRow(10, 3, nil, "cust@x.test", "agent@corp.test", "Support: broken", "help", recent, "", "negative", true))

	channel := &fakeChannel{name: "slack"}
	p := New(store, nil, nil, nil, nil, nil, []notify.Channel{channel}, testConfig(), zerolog.Nop())
	p.now = func() time.Time { return now }

	count, err := p.Notify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, channel.messages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyDeduplicatesPerMessage(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	old := now.Add(-time.Hour)

	mock.ExpectQuery("SELECT \\* FROM threads WHERE resolved = FALSE AND urgency = TRUE").
		WillReturnRows(sqlmock.NewRows(threadColumns()).
			AddRow(3, "agent@corp.test", "k3", "Support: broken", "negative", true, 70, false, old, old))
	mock.ExpectQuery("SELECT \\* FROM emails WHERE thread_id = \\? ORDER BY timestamp DESC").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(emailColumns()).
			AddRow(10, 3, nil, "cust@x.test", "agent@corp.test", "Support: broken", "help", old, "", "negative", true))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM notifications WHERE thread_id = \\? AND sent_at >= \\?").
		WithArgs(int64(3), old).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	channel := &fakeChannel{name: "slack"}
	p := New(store, nil, nil, nil, nil, nil, []notify.Channel{channel}, testConfig(), zerolog.Nop())
	p.now = func() time.Time { return now }

	count, err := p.Notify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, channel.messages, "one alert per customer message")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyDeliveryFailureNotRecorded(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	old := now.Add(-time.Hour)

	mock.ExpectQuery("SELECT \\* FROM threads WHERE resolved = FALSE AND urgency = TRUE").
		WillReturnRows(sqlmock.NewRows(threadColumns()).
			AddRow(3, "agent@corp.test", "k3", "Support: broken", "negative", true, 70, false, old, old))
	mock.ExpectQuery("SELECT \\* FROM emails WHERE thread_id = \\? ORDER BY timestamp DESC").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(emailColumns()).
			AddRow(10, 3, nil, "cust@x.test", "agent@corp.test", "Support: broken", "help", old, "", "negative", true))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM notifications WHERE thread_id = \\? AND sent_at >= \\?").
		WithArgs(int64(3), old).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	// no INSERT INTO notifications expected

	channel := &fakeChannel{name: "slack", err: errors.New("webhook down")}
	p := New(store, nil, nil, nil, nil, nil, []notify.Channel{channel}, testConfig(), zerolog.Nop())
	p.now = func() time.Time { return now }

	count, err := p.Notify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count, "failed delivery is retried on a later pass")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveAndSend(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM drafts WHERE id = \\?").
		WithArgs(int64(31)).
		WillReturnRows(sqlmock.NewRows(draftColumns()).
			AddRow(31, 3, "Here is the fix.", "why", 0.6, "empathetic", "negative", 42, false, now, now))
	mock.ExpectQuery("SELECT \\* FROM threads WHERE id = \\?").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(threadColumns()).
			AddRow(3, "agent@corp.test", "k3", "Support: broken", "negative", true, 70, false, now, now))
	mock.ExpectQuery("SELECT \\* FROM emails WHERE thread_id = \\? ORDER BY timestamp DESC").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(emailColumns()).
			AddRow(10, 3, nil, "cust@x.test", "agent@corp.test", "Support: broken", "help", now, "", "negative", true))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM drafts WHERE id = \\? FOR UPDATE").
		WithArgs(int64(31)).
		WillReturnRows(sqlmock.NewRows(draftColumns()).
			AddRow(31, 3, "Here is the fix.", "why", 0.6, "empathetic", "negative", 42, false, now, now))
	mock.ExpectExec("UPDATE drafts SET sent = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE threads SET resolved = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sender := &fakeSender{}
	p := New(store, nil, nil, nil, nil, sender, nil, testConfig(), zerolog.Nop())

	err := p.ApproveAndSend(context.Background(), 31)
	require.NoError(t, err)
	assert.Equal(t, "cust@x.test", sender.to)
	assert.Equal(t, "Re: Support: broken", sender.subject)
	assert.Equal(t, "Here is the fix.", sender.body)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveAndSendRejectsSentDraft(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM drafts WHERE id = \\?").
		WithArgs(int64(31)).
		WillReturnRows(sqlmock.NewRows(draftColumns()).
			AddRow(31, 3, "old", "why", 0.6, "formal", "neutral", 42, true, now, now))

	sender := &fakeSender{}
	p := New(store, nil, nil, nil, nil, sender, nil, testConfig(), zerolog.Nop())

	err := p.ApproveAndSend(context.Background(), 31)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already sent")
	assert.Empty(t, sender.to, "reply must not be delivered twice")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveAndSendDeliveryFailureKeepsDraftPending(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM drafts WHERE id = \\?").
		WithArgs(int64(31)).
		WillReturnRows(sqlmock.NewRows(draftColumns()).
			AddRow(31, 3, "reply", "why", 0.6, "formal", "neutral", 42, false, now, now))
	mock.ExpectQuery("SELECT \\* FROM threads WHERE id = \\?").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(threadColumns()).
			AddRow(3, "agent@corp.test", "k3", "Re: Support", "neutral", false, 0, false, now, now))
	mock.ExpectQuery("SELECT \\* FROM emails WHERE thread_id = \\? ORDER BY timestamp DESC").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(emailColumns()).
			AddRow(10, 3, nil, "cust@x.test", "agent@corp.test", "Re: Support", "hi", now, "", "neutral", false))

	sender := &fakeSender{err: errors.New("sendgrid 500")}
	p := New(store, nil, nil, nil, nil, sender, nil, testConfig(), zerolog.Nop())

	err := p.ApproveAndSend(context.Background(), 31)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send reply")
	assert.NoError(t, mock.ExpectationsWereMet(), "draft must not be marked sent when delivery fails")
}
