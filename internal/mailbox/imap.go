package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"mailcoach/internal/config"
)

// Source is the mail-source capability contract consumed by the pipeline.
type Source interface {
	ListUnseen(ctx context.Context) ([]RawMessage, error)
	MarkSeen(ctx context.Context, uid uint32) error
}

// IMAPSource fetches support mail over IMAP. Each operation dials a fresh
// connection bounded by the configured timeout; a stalled server can never
// block a worker indefinitely.
type IMAPSource struct {
	host     string
	port     string
	username string
	password string
	mailbox  string
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewIMAPSource creates an IMAP mail source from configuration.
func NewIMAPSource(cfg *config.Config, logger zerolog.Logger) *IMAPSource {
	return &IMAPSource{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		username: cfg.IMAPUser,
		password: cfg.IMAPPassword,
		mailbox:  cfg.IMAPMailbox,
		timeout:  time.Duration(cfg.IMAPTimeout) * time.Second,
		logger:   logger.With().Str("component", "mailbox").Logger(),
	}
}

// connect dials, authenticates and selects the mailbox. The dial honors
// both ctx and the configured timeout. The caller is responsible for Logout
// on the returned client.
func (s *IMAPSource) connect(ctx context.Context) (*imapclient.Client, error) {
	addr := net.JoinHostPort(s.host, s.port)

	dialer := tls.Dialer{
		NetDialer: &net.Dialer{Timeout: s.timeout},
		Config:    &tls.Config{ServerName: s.host},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}
	// Bound every subsequent command, not just the dial. The ctx deadline
	// wins when it is tighter than the configured timeout.
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client := imapclient.New(conn, &imapclient.Options{})

	if err := client.Login(s.username, s.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authentication failed for %s: %w", s.username, err)
	}

	if _, err := client.Select(s.mailbox, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", s.mailbox, err)
	}

	return client, nil
}

// ListUnseen returns all unseen messages with bodies and attachments parsed.
// Messages are fetched with Peek so they stay unseen until MarkSeen is
// called after a successful commit.
func (s *IMAPSource) ListUnseen(ctx context.Context) ([]RawMessage, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var messages []RawMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		if err := ctx.Err(); err != nil {
			return messages, err
		}

		buf, err := msg.Collect()
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to collect message, skipping")
			continue
		}

		raw := buf.FindBodySection(bodySection)
		if raw == nil {
			s.logger.Warn().Uint32("uid", uint32(buf.UID)).Msg("message without body section, skipping")
			continue
		}

		parsed, err := parseMessage(raw)
		if err != nil {
			s.logger.Warn().Err(err).Uint32("uid", uint32(buf.UID)).Msg("failed to parse message, skipping")
			continue
		}
		parsed.UID = uint32(buf.UID)
		messages = append(messages, *parsed)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching messages: %w", err)
	}
	return messages, nil
}

// MarkSeen flags one message as seen on the server.
func (s *IMAPSource) MarkSeen(ctx context.Context, uid uint32) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	storeCmd := client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking message %d seen: %w", uid, err)
	}
	return nil
}

// parseMessage extracts headers, the plain-text body and attachments from a
// raw RFC 5322 message using go-message.
func parseMessage(raw []byte) (*RawMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("creating mail reader: %w", err)
	}
	defer func() { _ = mr.Close() }()

	msg := &RawMessage{}

	header := mr.Header
	if subject, err := header.Subject(); err == nil {
		msg.Subject = subject
	}
	if messageID, err := header.MessageID(); err == nil {
		msg.MessageID = messageID
	}
	msg.ThreadIndex = header.Get("Thread-Index")
	if date, err := header.Date(); err == nil && !date.IsZero() {
		msg.Date = date
	} else {
		msg.Date = time.Now().UTC()
	}
	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		msg.Sender = from[0].Address
	}
	if to, err := header.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.Recipients = append(msg.Recipients, addr.Address)
		}
	}

	var textParts, htmlParts []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break // keep whatever was parsed so far
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				textParts = append(textParts, string(body))
			case strings.HasPrefix(contentType, "text/html"):
				htmlParts = append(htmlParts, string(body))
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			if filename == "" {
				continue
			}
			contentType, _, _ := h.ContentType()
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			msg.Attachments = append(msg.Attachments, AttachmentData{
				Filename:    filename,
				ContentType: contentType,
				Data:        data,
			})
		}
	}

	// Prefer plain text over HTML.
	if len(textParts) > 0 {
		msg.Body = strings.Join(textParts, "\n\n")
	} else if len(htmlParts) > 0 {
		msg.Body = stripHTML(strings.Join(htmlParts, "\n\n"))
	}

	return msg, nil
}

// stripHTML removes tags from an HTML body (basic implementation).
func stripHTML(html string) string {
	var result strings.Builder
	inTag := false
	for _, char := range html {
		switch {
		case char == '<':
			inTag = true
		case char == '>':
			inTag = false
		case !inTag:
			result.WriteRune(char)
		}
	}
	return strings.TrimSpace(result.String())
}
