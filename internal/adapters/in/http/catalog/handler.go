// Package catalog provides the HTTP adapter for entry downloads, digest
// status and uploads.
package catalog

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/bnema/zerowrap"
	"github.com/labstack/echo/v4"

	"github.com/bnema/catalogd/internal/adapters/dto"
	"github.com/bnema/catalogd/internal/adapters/in/http/middleware"
	"github.com/bnema/catalogd/internal/boundaries/in"
	"github.com/bnema/catalogd/internal/domain"
)

const (
	// multipartOverhead is the slack allowed on top of the upload limit for
	// multipart framing and the small form fields.
	multipartOverhead = 1 << 20
	maxFieldSize      = 4 << 10
)

// Handler serves the catalog API.
type Handler struct {
	svc           in.AccessService
	maxUploadSize int64
	log           zerowrap.Logger
}

// NewHandler creates a catalog handler. maxUploadSize of zero disables the
// request body cap.
func NewHandler(svc in.AccessService, maxUploadSize int64, log zerowrap.Logger) *Handler {
	return &Handler{
		svc:           svc,
		maxUploadSize: maxUploadSize,
		log:           log,
	}
}

// Register mounts the routes on e. protect guards uploads and admin
// operations; throttle limits digest triggers.
func (h *Handler) Register(e *echo.Echo, protect, throttle echo.MiddlewareFunc) {
	e.GET("/entries", h.listEntries)

	entries := e.Group("/entries/:id")
	entries.DELETE("", h.deleteEntry, protect)
	entries.GET("/download", h.download)
	entries.GET("/hash", h.pollHash)
	entries.POST("/hash", h.triggerHash, throttle)
	entries.GET("/hash/trigger", h.triggerHash, throttle)
	entries.DELETE("/hash", h.forgetHash, protect)

	e.POST("/uploads", h.upload, protect)
}

func (h *Handler) download(c echo.Context) error {
	ctx := c.Request().Context()

	dl, err := h.svc.DownloadEntry(ctx, c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}

	if dl.File == nil {
		target, err := url.Parse(dl.RedirectURL)
		if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
			h.log.Warn().
				Str(zerowrap.FieldLayer, "adapter").
				Str(zerowrap.FieldAdapter, "http").
				Str(zerowrap.FieldEntityID, dl.Entry.ID).
				Msg("entry url is not a redirectable http url")
			return h.writeError(c, domain.ErrNotFound)
		}
		return c.Redirect(http.StatusFound, target.String())
	}
	defer dl.File.Close()

	info, err := dl.File.Stat()
	if err != nil {
		return h.writeError(c, domain.ErrNotFound)
	}

	name := filepath.Base(dl.Entry.Source)
	header := c.Response().Header()
	header.Set(echo.HeaderContentType, echo.MIMEOctetStream)
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	http.ServeContent(c.Response(), c.Request(), name, info.ModTime(), dl.File)
	return nil
}

func (h *Handler) listEntries(c echo.Context) error {
	entries, err := h.svc.ListEntries(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewEntryListResponse(entries))
}

func (h *Handler) deleteEntry(c echo.Context) error {
	if err := h.svc.DeleteEntry(c.Request().Context(), c.Param("id")); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) pollHash(c echo.Context) error {
	status, err := h.svc.PollEntryHash(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewHashStatusResponse(status))
}

func (h *Handler) triggerHash(c echo.Context) error {
	force, _ := strconv.ParseBool(c.QueryParam("force"))

	status, err := h.svc.RequestEntryHash(c.Request().Context(), c.Param("id"), force)
	if err != nil {
		return h.writeError(c, err)
	}

	code := http.StatusOK
	if status.State == domain.JobProcessing {
		code = http.StatusAccepted
	}
	return c.JSON(code, dto.NewHashStatusResponse(status))
}

func (h *Handler) forgetHash(c echo.Context) error {
	if err := h.svc.ForgetEntryHash(c.Request().Context(), c.Param("id")); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// upload streams a multipart body. The optional "root" and "name" fields
// must precede the "file" part.
func (h *Handler) upload(c echo.Context) error {
	req := c.Request()
	if h.maxUploadSize > 0 {
		req.Body = http.MaxBytesReader(c.Response(), req.Body, h.maxUploadSize+multipartOverhead)
	}

	reader, err := req.MultipartReader()
	if err != nil {
		return h.writeError(c, domain.ErrInvalidUpload)
	}

	ingest := in.IngestRequest{}
	if uploader, ok := c.Get(middleware.UploaderKey).(string); ok {
		ingest.CreatedBy = uploader
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return h.writeError(c, domain.ErrInvalidUpload)
		}

		switch part.FormName() {
		case "root":
			ingest.Root, err = readField(part)
		case "name":
			ingest.Name, err = readField(part)
		case "file":
			ingest.Filename = part.FileName()
			ingest.Content = part
			entry, err := h.svc.IngestUpload(req.Context(), ingest)
			_ = part.Close()
			if err != nil {
				if errors.Is(err, domain.ErrPathDenied) {
					err = domain.ErrInvalidUpload
				}
				return h.writeError(c, err)
			}
			return c.JSON(http.StatusCreated, dto.UploadResponse{
				ID:       entry.ID,
				Name:     entry.Name,
				FileType: entry.FileType,
				Size:     entry.Size,
			})
		}
		_ = part.Close()
		if err != nil {
			return h.writeError(c, domain.ErrInvalidUpload)
		}
	}

	return h.writeError(c, domain.ErrInvalidUpload)
}

func readField(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxFieldSize+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxFieldSize {
		return "", domain.ErrInvalidUpload
	}
	return string(data), nil
}

// writeError maps domain errors to generic responses. Details only go to the
// server log.
func (h *Handler) writeError(c echo.Context, err error) error {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().
			Err(err).
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "http").
			Str(zerowrap.FieldMethod, c.Request().Method).
			Str(zerowrap.FieldPath, c.Request().URL.Path).
			Msg("request failed")
	}
	return c.JSON(status, dto.ErrorResponse{Error: msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrPathDenied),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNotHashable):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrInvalidUpload):
		return http.StatusBadRequest, "invalid upload"
	case errors.Is(err, domain.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "upload too large"
	case errors.Is(err, domain.ErrJobRunning):
		return http.StatusConflict, "digest computation in progress"
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable, "hashing is busy, retry later"
	case errors.Is(err, domain.ErrWriteFailure):
		return http.StatusInternalServerError, "failed to store upload"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
