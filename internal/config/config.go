package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port        string
	DatabaseURL string
	Version     string
	LogLevel    string

	OpenAIKey     string
	OpenAITimeout int  // OpenAI API timeout in seconds
	OfflineMode   bool // Disable all generative-backend calls, heuristics only

	IMAPHost     string
	IMAPPort     string
	IMAPUser     string
	IMAPPassword string
	IMAPMailbox  string
	IMAPTimeout  int // IMAP operation timeout in seconds

	AttachmentsDir  string
	SubjectKeywords []string // subject allow-list for ingestion

	SlackWebhookURL string
	SendGridAPIKey  string
	SupportEmail    string
	NotifyTimeout   int // notification delivery timeout in seconds

	PriorityTimeoutMinutes int // urgent threads unanswered longer than this raise an alert
	IngestIntervalSeconds  int
	ProcessIntervalSeconds int
	NotifyIntervalSeconds  int

	RetrievalTopK      int
	ExtractConcurrency int
	DefaultLanguage    string
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Version:     getEnv("VERSION", "1.0.0"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAITimeout: getEnvInt("OPENAI_TIMEOUT", 60),
		OfflineMode:   getEnvBool("OFFLINE_MODE", false),

		IMAPHost:     os.Getenv("MAIL_IMAP_HOST"),
		IMAPPort:     getEnv("MAIL_IMAP_PORT", "993"),
		IMAPUser:     os.Getenv("MAIL_IMAP_USER"),
		IMAPPassword: os.Getenv("MAIL_IMAP_PASSWORD"),
		IMAPMailbox:  getEnv("MAIL_MAILBOX", "INBOX"),
		IMAPTimeout:  getEnvInt("IMAP_TIMEOUT", 30),

		AttachmentsDir:  getEnv("ATTACHMENTS_DIR", "attachments"),
		SubjectKeywords: getEnvList("SUBJECT_KEYWORDS", []string{"support", "query", "request", "help"}),

		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		SendGridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
		SupportEmail:    getEnv("SUPPORT_EMAIL", "support@example.com"),
		NotifyTimeout:   getEnvInt("NOTIFY_TIMEOUT", 5),

		PriorityTimeoutMinutes: getEnvInt("PRIORITY_TIMEOUT_MINUTES", 30),
		IngestIntervalSeconds:  getEnvInt("INGEST_INTERVAL_SECONDS", 60),
		ProcessIntervalSeconds: getEnvInt("PROCESS_INTERVAL_SECONDS", 30),
		NotifyIntervalSeconds:  getEnvInt("NOTIFY_INTERVAL_SECONDS", 120),

		RetrievalTopK:      getEnvInt("RETRIEVAL_TOP_K", 3),
		ExtractConcurrency: getEnvInt("EXTRACT_CONCURRENCY", 4),
		DefaultLanguage:    getEnv("DEFAULT_LANGUAGE", "en"),
	}

	return config
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList gets a comma-separated environment variable with a default fallback
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	if len(list) == 0 {
		return defaultValue
	}
	return list
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	// Configure zerolog to output JSON without newlines
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "mailcoach").
		Str("version", c.Version).
		Logger()

	// Set log level based on configuration
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
