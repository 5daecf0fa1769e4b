package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/marianozunino/bucket/internal/middleware"
)

// HandleDelete removes a file for an actor holding the right capability.
func (h *Handler) HandleDelete(c echo.Context) error {
	actor := middleware.ActorFrom(c)

	if err := h.svc.Delete(c.Request().Context(), c.Param("id"), actor); err != nil {
		return h.respondServiceError(c, err)
	}

	return c.String(http.StatusOK, "File deleted.")
}

// HandleInfo describes the active retention and extension policy, with
// the admin-provided description tokens expanded.
func (h *Handler) HandleInfo(c echo.Context) error {
	pol := h.cfg.ExtensionPolicy()

	info := map[string]any{
		"description":        h.cfg.ExpandDescription(),
		"ttl_hours":          h.cfg.TTLHours,
		"delete_on_download": h.cfg.DeleteOnDownload,
		"max_filesize_mb":    h.cfg.MaxFileSizeMB,
		"policy_mode":        string(pol.Mode),
	}
	if h.cfg.UseBlocklist {
		info["blocked_extensions"] = h.cfg.BlockedExtensions
	} else {
		info["allowed_extensions"] = h.cfg.AllowedExtensions
	}

	return c.JSON(http.StatusOK, info)
}

// HandleHealth is a liveness probe.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
