package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailcoach/internal/config"
	"mailcoach/internal/database"
	"mailcoach/internal/handlers"
	"mailcoach/internal/kb"
	"mailcoach/internal/notify"
	"mailcoach/internal/openai"
	"mailcoach/internal/pipeline"
	"mailcoach/internal/server"
	"mailcoach/internal/translate"
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

	// AI-backed capabilities are optional: in offline mode the review UI
	// still serves threads and manual draft edits.
	var (
		sender     handlers.DraftSender
		translator handlers.DraftTranslator
		reindexer  handlers.Reindexer
	)
	if !cfg.OfflineMode {
		aiClient, err := openai.NewClient(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("OpenAI client initialization failed")
		}
		reindexer = kb.NewRetriever(store, aiClient, logger)
		translator = translate.NewTranslator(aiClient, cfg.DefaultLanguage, logger)

		emailService := notify.NewEmailService(cfg.SendGridAPIKey, cfg.SupportEmail)
		sender = pipeline.New(store, nil, nil, nil, nil, emailService, nil, cfg, logger)
	} else {
		logger.Info().Msg("Offline mode: send, translate and reindex endpoints disabled")
	}

	// Create and initialize server
	srv := server.New(cfg, store, sender, translator, reindexer, logger)
	srv.Initialize()

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
}
