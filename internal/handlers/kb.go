package handlers

import (
	"context"
	"net/http"
	"strings"

	"mailcoach/internal/database"
	"mailcoach/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Reindexer rebuilds the knowledge index from stored entries.
type Reindexer interface {
	Rebuild(ctx context.Context) error
	Generation() uint64
}

// ListKBEntriesHandler returns all knowledge base entries.
func ListKBEntriesHandler(store *database.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		entries, err := store.ListKBEntries(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ActionResponse{
				Success: false,
				Message: "failed to list knowledge base entries",
				Error:   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, models.KBListResponse{
			Entries: entries,
			Count:   len(entries),
		})
	}
}

// CreateKBEntryHandler stores a new knowledge base entry and, when an
// index is available, rebuilds it so the entry is retrievable right away.
// A failed rebuild does not fail the create; the entry is picked up on the
// next rebuild.
func CreateKBEntryHandler(store *database.Store, reindexer Reindexer, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.CreateKBEntryRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ActionResponse{
				Success: false,
				Message: "invalid request body",
			})
		}
		if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
			return c.JSON(http.StatusBadRequest, models.ActionResponse{
				Success: false,
				Message: "title and content are required",
			})
		}

		ctx := c.Request().Context()
		entry, err := store.InsertKBEntry(ctx, req.Title, req.Content)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ActionResponse{
				Success: false,
				Message: "failed to create knowledge base entry",
				Error:   err.Error(),
			})
		}

		if reindexer != nil {
			if err := reindexer.Rebuild(ctx); err != nil {
				logger.Warn().Err(err).Int64("entry_id", entry.ID).Msg("knowledge index rebuild failed after entry create")
			}
		}
		return c.JSON(http.StatusCreated, entry)
	}
}

// ReindexKBHandler rebuilds the knowledge index from the current entries
// and reports the new index generation.
func ReindexKBHandler(reindexer Reindexer) echo.HandlerFunc {
	return func(c echo.Context) error {
		if reindexer == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ReindexResponse{
				Success: false,
				Error:   "knowledge index is not available in offline mode",
			})
		}

		if err := reindexer.Rebuild(c.Request().Context()); err != nil {
			return c.JSON(http.StatusInternalServerError, models.ReindexResponse{
				Success:    false,
				Generation: reindexer.Generation(),
				Error:      err.Error(),
			})
		}
		return c.JSON(http.StatusOK, models.ReindexResponse{
			Success:    true,
			Generation: reindexer.Generation(),
		})
	}
}
