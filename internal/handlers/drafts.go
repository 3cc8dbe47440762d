package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"mailcoach/internal/database"
	"mailcoach/internal/models"

	"github.com/labstack/echo/v4"
)

// DraftSender approves a draft and delivers it to the customer.
type DraftSender interface {
	ApproveAndSend(ctx context.Context, draftID int64) error
}

// DraftTranslator renders text in another language, returning the input
// unchanged when translation is not possible.
type DraftTranslator interface {
	Translate(ctx context.Context, text, targetLang string) string
}

// UpdateDraftHandler replaces the reply text of a pending draft. Drafts
// that were already sent cannot be edited.
func UpdateDraftHandler(store *database.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ActionResponse{
				Success: false,
				Message: "invalid draft id",
			})
		}

		var req models.UpdateDraftRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ActionResponse{
				Success: false,
				Message: "invalid request body",
			})
		}
		if strings.TrimSpace(req.ReplyText) == "" {
			return c.JSON(http.StatusBadRequest, models.ActionResponse{
				Success: false,
				Message: "reply_text must not be empty",
			})
		}

		err = store.UpdateDraftReply(c.Request().Context(), id, req.ReplyText)
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ActionResponse{
				Success: false,
				Message: "draft not found or already sent",
			})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ActionResponse{
				Success: false,
				Message: "failed to update draft",
				Error:   err.Error(),
			})
		}

		return c.JSON(http.StatusOK, models.ActionResponse{
			Success: true,
			Message: "Draft updated",
		})
	}
}

// SendDraftHandler approves the draft: the reply is emailed to the
// customer, the draft is marked sent and the thread resolved.
func SendDraftHandler(sender DraftSender) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ActionResponse{
				Success: false,
				Message: "invalid draft id",
			})
		}

		if sender == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ActionResponse{
				Success: false,
				Message: "draft sending is not available in offline mode",
			})
		}

		err = sender.ApproveAndSend(c.Request().Context(), id)
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ActionResponse{
				Success: false,
				Message: "draft not found",
			})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ActionResponse{
				Success: false,
				Message: "failed to send draft",
				Error:   err.Error(),
			})
		}

		return c.JSON(http.StatusOK, models.ActionResponse{
			Success: true,
			Message: "Draft sent and thread resolved",
		})
	}
}

// TranslateDraftHandler returns the draft reply rendered in the requested
// language. The stored draft keeps its original text.
func TranslateDraftHandler(store *database.Store, translator DraftTranslator) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ActionResponse{
				Success: false,
				Message: "invalid draft id",
			})
		}

		var req models.TranslateDraftRequest
		if err := c.Bind(&req); err != nil || strings.TrimSpace(req.TargetLanguage) == "" {
			return c.JSON(http.StatusBadRequest, models.ActionResponse{
				Success: false,
				Message: "target_language is required",
			})
		}

		if translator == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ActionResponse{
				Success: false,
				Message: "translation is not available in offline mode",
			})
		}

		ctx := c.Request().Context()
		draft, err := store.GetDraft(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ActionResponse{
				Success: false,
				Message: "draft not found",
			})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ActionResponse{
				Success: false,
				Message: "failed to load draft",
				Error:   err.Error(),
			})
		}

		translated := translator.Translate(ctx, draft.ReplyText, req.TargetLanguage)
		return c.JSON(http.StatusOK, models.TranslateDraftResponse{
			DraftID:        draft.ID,
			TargetLanguage: req.TargetLanguage,
			ReplyText:      translated,
		})
	}
}
