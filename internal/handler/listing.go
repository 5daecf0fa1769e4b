package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/marianozunino/bucket/internal/cache"
	"github.com/marianozunino/bucket/internal/middleware"
	"github.com/marianozunino/bucket/internal/model"
)

type listItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OwnerID    string `json:"owner_id"`
	Size       int64  `json:"size"`
	SizeHuman  string `json:"size_human"`
	Age        string `json:"age"`
	Downloaded bool   `json:"downloaded"`
	URL        string `json:"url"`
}

type listResponse struct {
	Files []listItem `json:"files"`
}

// HandleListRecent serves the public newest-first listing, cached for a
// short TTL.
func (h *Handler) HandleListRecent(c echo.Context) error {
	ctx := c.Request().Context()

	resp, err := h.cachedListing(ctx, cache.AllKey(), func() ([]model.FileRecord, error) {
		return h.registry.ListRecent(ctx, h.cfg.ListPageLimit)
	})
	if err != nil {
		h.logger.Error("listing failed", zap.Error(err))
		return c.String(http.StatusInternalServerError, "Server error")
	}

	return c.JSON(http.StatusOK, resp)
}

// HandleListMine serves the authenticated actor's own files.
func (h *Handler) HandleListMine(c echo.Context) error {
	actor := middleware.ActorFrom(c)
	ctx := c.Request().Context()

	resp, err := h.cachedListing(ctx, cache.OwnerKey(actor.ID), func() ([]model.FileRecord, error) {
		return h.registry.ListByOwner(ctx, actor.ID, h.cfg.ListPageLimit)
	})
	if err != nil {
		h.logger.Error("owner listing failed", zap.Error(err))
		return c.String(http.StatusInternalServerError, "Server error")
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) cachedListing(ctx context.Context, key string, load func() ([]model.FileRecord, error)) (listResponse, error) {
	var resp listResponse

	err := h.listings.Get(ctx, key, &resp)
	if err == nil {
		return resp, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		h.logger.Warn("listing cache read failed", zap.String("key", key), zap.Error(err))
	}

	records, err := load()
	if err != nil {
		return listResponse{}, err
	}

	resp.Files = make([]listItem, 0, len(records))
	for _, rec := range records {
		resp.Files = append(resp.Files, listItem{
			ID:         rec.ID,
			Name:       rec.DisplayName,
			OwnerID:    rec.OwnerID,
			Size:       rec.SizeBytes,
			SizeHuman:  humanize.Bytes(uint64(rec.SizeBytes)),
			Age:        humanize.Time(rec.CreatedAt),
			Downloaded: rec.Downloaded,
			URL:        h.cfg.BaseURL + "files/" + rec.ID,
		})
	}

	if err := h.listings.Set(ctx, key, resp); err != nil {
		h.logger.Warn("listing cache write failed", zap.String("key", key), zap.Error(err))
	}

	return resp, nil
}
