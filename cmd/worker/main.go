package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailcoach/internal/config"
	"mailcoach/internal/database"
	"mailcoach/internal/extract"
	"mailcoach/internal/genai"
	"mailcoach/internal/kb"
	"mailcoach/internal/mailbox"
	"mailcoach/internal/notify"
	"mailcoach/internal/openai"
	"mailcoach/internal/pipeline"
	"mailcoach/internal/scheduler"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	// Initialize database connection
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	if err := database.EnsureSchema(context.Background(), db); err != nil {
		logger.Fatal().Err(err).Msg("Schema migration failed")
	}
	store := database.NewStore(db)

	// Mail source is optional so the worker can run in process-only mode
	// against an already populated database.
	var source mailbox.Source
	if cfg.IMAPHost != "" {
		source = mailbox.NewIMAPSource(cfg, logger)
	} else {
		logger.Warn().Msg("No IMAP host configured, ingestion disabled")
	}

	// Generative components are skipped entirely in offline mode; emails
	// are still classified and ranked.
	var (
		extractor pipeline.Extractor
		retriever pipeline.Retriever
		generator pipeline.Generator
	)
	if !cfg.OfflineMode {
		aiClient, err := openai.NewClient(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("OpenAI client initialization failed")
		}
		extractor = extract.NewExtractor(
			aiClient,
			extract.NewTesseractOCR(),
			aiClient,
			extract.NewPopplerRasterizer(),
			logger,
		)
		retriever = kb.NewRetriever(store, aiClient, logger)
		generator = genai.NewGenerator(aiClient, logger)
	} else {
		logger.Info().Msg("Offline mode: extraction and draft generation disabled")
	}

	var channels []notify.Channel
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, notify.NewSlackChannel(cfg.SlackWebhookURL, time.Duration(cfg.NotifyTimeout)*time.Second))
	}
	emailService := notify.NewEmailService(cfg.SendGridAPIKey, cfg.SupportEmail)
	if cfg.SendGridAPIKey != "" && cfg.SupportEmail != "" {
		channels = append(channels, emailService)
	}
	if len(channels) == 0 {
		logger.Warn().Msg("No notification channels configured, urgent alerts disabled")
	}

	pipe := pipeline.New(store, source, extractor, retriever, generator, emailService, channels, cfg, logger)

	sched := scheduler.New(logger)
	var ingest scheduler.Step
	if source != nil {
		ingest = pipe.Ingest
	}
	var notifyStep scheduler.Step
	if len(channels) > 0 {
		notifyStep = pipe.Notify
	}
	scheduler.FromConfig(sched, cfg, ingest, pipe.Process, notifyStep)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info().Msg("Shutting down worker")
		cancel()
	}()

	logger.Info().Msg("Worker starting")
	sched.Run(ctx)
	logger.Info().Msg("Worker stopped")
}
