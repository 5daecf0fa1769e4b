package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/marianozunino/bucket/internal/blob"
	"github.com/marianozunino/bucket/internal/cache"
	"github.com/marianozunino/bucket/internal/config"
	"github.com/marianozunino/bucket/internal/registry"
	"github.com/marianozunino/bucket/internal/service"
)

var (
	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bucket_uploads_total",
		Help: "Number of files uploaded",
	})

	uploadsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bucket_uploads_rejected_total",
		Help: "Number of files rejected by the extension policy",
	})

	downloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bucket_downloads_total",
		Help: "Number of file downloads served",
	})
)

// Handler handles HTTP requests.
type Handler struct {
	svc      *service.Service
	registry *registry.Registry
	blobs    blob.Store
	listings *cache.Listing
	cfg      *config.Config
	logger   *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, reg *registry.Registry, blobs blob.Store, listings *cache.Listing, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		svc:      svc,
		registry: reg,
		blobs:    blobs,
		listings: listings,
		cfg:      cfg,
		logger:   logger,
	}
}

// respondServiceError maps lifecycle errors onto HTTP responses. NotFound
// and namespace mismatches share one message on purpose.
func (h *Handler) respondServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.String(http.StatusNotFound, "File not found")
	case errors.Is(err, service.ErrForbidden):
		return c.String(http.StatusForbidden, "Forbidden")
	default:
		var storageErr *service.StorageError
		if errors.As(err, &storageErr) {
			h.logger.Error("storage failure", zap.Error(err))
			return c.String(http.StatusInternalServerError, "Storage error")
		}
		h.logger.Error("request failed", zap.Error(err))
		return c.String(http.StatusInternalServerError, "Server error")
	}
}
