// Command seed-kb loads knowledge base entries from a JSON file and
// optionally builds their embeddings so the retriever starts warm.
//
// The input file is an array of {"title": ..., "content": ...} objects.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"mailcoach/internal/config"
	"mailcoach/internal/database"
	"mailcoach/internal/kb"
	"mailcoach/internal/openai"
)

type seedEntry struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func main() {
	file := flag.String("file", "kb_seed.json", "path to the JSON seed file")
	skipEmbed := flag.Bool("skip-embeddings", false, "insert entries without building embeddings")
	flag.Parse()

	cfg := config.Load()
	logger := cfg.SetupLogger()

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("Failed to read seed file")
	}
	var entries []seedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Fatal().Err(err).Msg("Failed to parse seed file")
	}
	if len(entries) == 0 {
		logger.Fatal().Msg("Seed file contains no entries")
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	ctx := context.Background()
	if err := database.EnsureSchema(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("Schema migration failed")
	}
	store := database.NewStore(db)

	inserted := 0
	for _, e := range entries {
		if e.Title == "" || e.Content == "" {
			logger.Warn().Str("title", e.Title).Msg("Skipping entry with missing title or content")
			continue
		}
		if _, err := store.InsertKBEntry(ctx, e.Title, e.Content); err != nil {
			logger.Error().Err(err).Str("title", e.Title).Msg("Failed to insert entry")
			continue
		}
		inserted++
	}
	logger.Info().Int("inserted", inserted).Int("total", len(entries)).Msg("Knowledge base seeded")

	if *skipEmbed || cfg.OfflineMode {
		logger.Info().Msg("Skipping embedding build")
		return
	}

	aiClient, err := openai.NewClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("OpenAI client initialization failed")
	}
	retriever := kb.NewRetriever(store, aiClient, logger)
	if err := retriever.Rebuild(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to build embeddings")
	}
	logger.Info().Uint64("generation", retriever.Generation()).Msg("Embeddings built")
}
