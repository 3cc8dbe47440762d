package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"mailcoach/internal/database"
	"mailcoach/internal/models"

	"github.com/labstack/echo/v4"
)

// defaultThreadLimit caps the queue page size when the client does not ask
// for one.
const defaultThreadLimit = 100

// ListThreadsHandler returns the thread queue ordered by priority score,
// highest first. An optional ?limit= query parameter caps the page.
func ListThreadsHandler(store *database.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := defaultThreadLimit
		if raw := c.QueryParam("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				return c.JSON(http.StatusBadRequest, models.ActionResponse{
					Success: false,
					Message: "invalid limit parameter",
				})
			}
			limit = parsed
		}

		threads, err := store.ListThreadsByPriority(c.Request().Context(), limit)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ActionResponse{
				Success: false,
				Message: "failed to list threads",
				Error:   err.Error(),
			})
		}

		return c.JSON(http.StatusOK, models.ThreadListResponse{
			Threads: threads,
			Count:   len(threads),
		})
	}
}

// GetThreadHandler returns one thread with its emails, draft reply and
// notification history.
func GetThreadHandler(store *database.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ActionResponse{
				Success: false,
				Message: "invalid thread id",
			})
		}

		ctx := c.Request().Context()
		thread, err := store.GetThread(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ActionResponse{
				Success: false,
				Message: "thread not found",
			})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ActionResponse{
				Success: false,
				Message: "failed to load thread",
				Error:   err.Error(),
			})
		}

		emails, err := store.ListEmailsByThread(ctx, id)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ActionResponse{
				Success: false,
				Message: "failed to load thread emails",
				Error:   err.Error(),
			})
		}

		response := models.ThreadDetailResponse{
			Thread: *thread,
			Emails: emails,
		}

		draft, err := store.GetDraftByThread(ctx, id)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusInternalServerError, models.ActionResponse{
				Success: false,
				Message: "failed to load draft",
				Error:   err.Error(),
			})
		}
		if err == nil {
			response.Draft = draft
		}

		notifications, err := store.ListNotificationsByThread(ctx, id)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ActionResponse{
				Success: false,
				Message: "failed to load notifications",
				Error:   err.Error(),
			})
		}
		response.Notifications = notifications

		return c.JSON(http.StatusOK, response)
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
