package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaMySQL and schemaPostgres create the persisted entities. The vector
// index is deliberately absent: it is a derived in-memory cache rebuilt from
// kb_entries at any time.
var schemaMySQL = []string{
	`CREATE TABLE IF NOT EXISTS threads (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		owner VARCHAR(255) NOT NULL,
		thread_key VARCHAR(512) NOT NULL,
		subject VARCHAR(998) NOT NULL,
		sentiment VARCHAR(20) NOT NULL DEFAULT 'unclassified',
		urgency BOOLEAN NOT NULL DEFAULT FALSE,
		priority_score INT NOT NULL DEFAULT 0,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uniq_owner_thread (owner, thread_key(255))
	)`,
	`CREATE TABLE IF NOT EXISTS emails (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		thread_id BIGINT NOT NULL,
		message_id VARCHAR(512),
		sender VARCHAR(255) NOT NULL,
		recipients TEXT NOT NULL,
		subject VARCHAR(998) NOT NULL,
		body MEDIUMTEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		keywords VARCHAR(1024) NOT NULL DEFAULT '',
		sentiment VARCHAR(20) NOT NULL DEFAULT 'unclassified',
		urgency BOOLEAN NOT NULL DEFAULT FALSE,
		FOREIGN KEY (thread_id) REFERENCES threads(id),
		INDEX idx_emails_sentiment (sentiment),
		INDEX idx_emails_thread (thread_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email_id BIGINT NOT NULL,
		filename VARCHAR(512) NOT NULL,
		content_type VARCHAR(255) NOT NULL DEFAULT '',
		path VARCHAR(1024) NOT NULL,
		extracted_text MEDIUMTEXT,
		FOREIGN KEY (email_id) REFERENCES emails(id)
	)`,
	`CREATE TABLE IF NOT EXISTS kb_entries (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(512) NOT NULL,
		content TEXT NOT NULL,
		embedding JSON,
		embedding_checksum VARCHAR(64),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS drafts (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		thread_id BIGINT NOT NULL UNIQUE,
		reply_text MEDIUMTEXT NOT NULL,
		justification TEXT,
		confidence DOUBLE NOT NULL DEFAULT 0,
		tone VARCHAR(20) NOT NULL DEFAULT 'formal',
		sentiment VARCHAR(20) NOT NULL DEFAULT 'unclassified',
		coach_score INT NOT NULL DEFAULT 0,
		sent BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		FOREIGN KEY (thread_id) REFERENCES threads(id)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		thread_id BIGINT NOT NULL,
		email_id BIGINT,
		message VARCHAR(1024) NOT NULL,
		channel VARCHAR(50) NOT NULL,
		sent_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (thread_id) REFERENCES threads(id)
	)`,
}

var schemaPostgres = []string{
	`CREATE TABLE IF NOT EXISTS threads (
		id BIGSERIAL PRIMARY KEY,
		owner VARCHAR(255) NOT NULL,
		thread_key VARCHAR(512) NOT NULL,
		subject VARCHAR(998) NOT NULL,
		sentiment VARCHAR(20) NOT NULL DEFAULT 'unclassified',
		urgency BOOLEAN NOT NULL DEFAULT FALSE,
		priority_score INT NOT NULL DEFAULT 0,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (owner, thread_key)
	)`,
	`CREATE TABLE IF NOT EXISTS emails (
		id BIGSERIAL PRIMARY KEY,
		thread_id BIGINT NOT NULL REFERENCES threads(id),
		message_id VARCHAR(512),
		sender VARCHAR(255) NOT NULL,
		recipients TEXT NOT NULL,
		subject VARCHAR(998) NOT NULL,
		body TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		keywords VARCHAR(1024) NOT NULL DEFAULT '',
		sentiment VARCHAR(20) NOT NULL DEFAULT 'unclassified',
		urgency BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_emails_sentiment ON emails (sentiment)`,
	`CREATE INDEX IF NOT EXISTS idx_emails_thread ON emails (thread_id)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id BIGSERIAL PRIMARY KEY,
		email_id BIGINT NOT NULL REFERENCES emails(id),
		filename VARCHAR(512) NOT NULL,
		content_type VARCHAR(255) NOT NULL DEFAULT '',
		path VARCHAR(1024) NOT NULL,
		extracted_text TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS kb_entries (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(512) NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT,
		embedding_checksum VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS drafts (
		id BIGSERIAL PRIMARY KEY,
		thread_id BIGINT NOT NULL UNIQUE REFERENCES threads(id),
		reply_text TEXT NOT NULL,
		justification TEXT,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		tone VARCHAR(20) NOT NULL DEFAULT 'formal',
		sentiment VARCHAR(20) NOT NULL DEFAULT 'unclassified',
		coach_score INT NOT NULL DEFAULT 0,
		sent BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		thread_id BIGINT NOT NULL REFERENCES threads(id),
		email_id BIGINT,
		message VARCHAR(1024) NOT NULL,
		channel VARCHAR(50) NOT NULL,
		sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates all tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	stmts := schemaMySQL
	if db.DriverName() == driverPostgres {
		stmts = schemaPostgres
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
