package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/media"
)

// FileHandler serves temporarily published attachments by opaque id.
// Entries disappear when their TTL lapses, after that the id is a 404.
type FileHandler struct {
	blobs  *media.TempStore
	logger *slog.Logger
}

func NewFileHandler(log *slog.Logger, blobs *media.TempStore) *FileHandler {
	return &FileHandler{
		blobs:  blobs,
		logger: log.With(slog.String("handler", "file")),
	}
}

func (h *FileHandler) Register(e *echo.Echo) {
	e.GET("/file/:id", h.Serve)
}

func (h *FileHandler) Serve(c echo.Context) error {
	id := c.Param("id")
	blob, err := h.blobs.Get(id)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "file not found or expired")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "file lookup failed")
	}

	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Response().Header().Set("Content-Disposition", `attachment; filename="`+blob.Filename+`"`)
	return c.Blob(http.StatusOK, contentType, blob.Data)
}
