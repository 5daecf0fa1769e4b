package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/marianozunino/bucket/internal/middleware"
)

// HandleDownload serves a file through the download gate. The gate marks
// the record downloaded before the stream starts, so delete-on-download
// expiry never misses an interrupted transfer.
func (h *Handler) HandleDownload(c echo.Context) error {
	actor := middleware.ActorFrom(c)

	rec, rc, err := h.svc.RequestDownload(c.Request().Context(), c.Param("id"), actor, time.Now())
	if err != nil {
		return h.respondServiceError(c, err)
	}
	defer rc.Close()

	downloadsTotal.Inc()

	contentType := rec.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", rec.DisplayName))
	c.Response().Header().Set("Content-Length", fmt.Sprintf("%d", rec.SizeBytes))

	return c.Stream(http.StatusOK, contentType, rc)
}
