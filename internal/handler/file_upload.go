package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/marianozunino/bucket/internal/blob"
	"github.com/marianozunino/bucket/internal/middleware"
	"github.com/marianozunino/bucket/internal/policy"
	"github.com/marianozunino/bucket/internal/service"
)

type uploadedFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

type uploadResponse struct {
	Uploaded int            `json:"uploaded"`
	Message  string         `json:"message"`
	Files    []uploadedFile `json:"files"`
}

// HandleUpload accepts one or more multipart files, applies the
// extension policy, stages each blob, and finalizes the batch.
func (h *Handler) HandleUpload(c echo.Context) error {
	actor := middleware.ActorFrom(c)

	form, err := c.MultipartForm()
	if err != nil {
		return c.String(http.StatusBadRequest, "Expected multipart form upload")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return c.String(http.StatusBadRequest, "No files provided")
	}

	pol := h.cfg.ExtensionPolicy()
	maxBytes := h.cfg.MaxFileSizeBytes()

	// Policy and size are checked for the whole batch before any blob is
	// staged, so a rejected batch leaves nothing behind.
	for _, fh := range headers {
		if res := policy.Evaluate(fh.Filename, pol); !res.OK {
			uploadsRejectedTotal.Inc()
			h.logger.Info("upload rejected by extension policy",
				zap.String("filename", fh.Filename),
				zap.String("extension", res.Extension),
				zap.String("ip", c.RealIP()),
			)
			return c.String(http.StatusBadRequest,
				fmt.Sprintf("The %s extension is not allowed for security reasons.", res.Extension))
		}
		if fh.Size > maxBytes {
			return c.String(http.StatusBadRequest,
				fmt.Sprintf("File too large (max %d bytes)", maxBytes))
		}
	}

	pending := make([]service.PendingFile, 0, len(headers))
	for _, fh := range headers {
		pf, err := h.stageFile(fh, maxBytes)
		if err != nil {
			h.logger.Error("failed to stage upload",
				zap.String("filename", fh.Filename),
				zap.Error(err),
			)
			h.discardStaged(pending)
			return c.String(http.StatusInternalServerError, "Failed to store file")
		}
		pending = append(pending, pf)
	}

	count, err := h.svc.Finalize(c.Request().Context(), pending, actor.ID, time.Now())
	if err != nil {
		h.discardStaged(pending)
		return h.respondServiceError(c, err)
	}
	uploadsTotal.Add(float64(count))

	resp := uploadResponse{
		Uploaded: count,
		Message:  fmt.Sprintf("Uploaded %d file(s).", count),
	}
	for _, pf := range pending {
		resp.Files = append(resp.Files, uploadedFile{
			ID:   pf.BlobID,
			Name: pf.DisplayName,
			Size: pf.SizeBytes,
			URL:  h.cfg.BaseURL + "files/" + pf.BlobID,
		})
	}

	return c.JSON(http.StatusOK, resp)
}

// discardStaged reclaims staged blobs after a failed batch. Blobs that
// finalization already promoted come back as NotFound, which is the
// desired outcome, not an error.
func (h *Handler) discardStaged(pending []service.PendingFile) {
	for _, pf := range pending {
		if err := h.blobs.DiscardStaged(pf.BlobID); err != nil && !errors.Is(err, blob.ErrNotFound) {
			h.logger.Warn("failed to discard staged blob",
				zap.String("blob_id", pf.BlobID),
				zap.Error(err),
			)
		}
	}
}

// stageFile writes one multipart file into the staging area, detecting
// its content type from the leading bytes without a second pass.
func (h *Handler) stageFile(fh *multipart.FileHeader, maxBytes int64) (service.PendingFile, error) {
	src, err := fh.Open()
	if err != nil {
		return service.PendingFile{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	header := &bytes.Buffer{}
	mtype, err := mimetype.DetectReader(io.TeeReader(src, header))
	if err != nil {
		return service.PendingFile{}, fmt.Errorf("detect content type: %w", err)
	}

	content := io.LimitReader(io.MultiReader(header, src), maxBytes)
	id, size, err := h.blobs.Store(content)
	if err != nil {
		return service.PendingFile{}, fmt.Errorf("stage blob: %w", err)
	}

	return service.PendingFile{
		BlobID:      id,
		DisplayName: fh.Filename,
		ContentType: mtype.String(),
		SizeBytes:   size,
	}, nil
}
