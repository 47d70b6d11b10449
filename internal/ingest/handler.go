package ingest

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"mailsink/internal/constants"
	"mailsink/internal/logger"
	"mailsink/pkg/errors"
)

type Handler struct {
	service      Service
	logger       logger.Logger
	spoolDir     string
	maxBodyBytes int64
}

func NewHandler(service Service, log logger.Logger, spoolDir string, maxBodyBytes int64) *Handler {
	return &Handler{
		service:      service,
		logger:       log,
		spoolDir:     spoolDir,
		maxBodyBytes: maxBodyBytes,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/ingest", h.IngestMessage)

		messages := v1.Group("/messages")
		{
			messages.GET("/:id", h.GetMessage)
			messages.GET("/:id/attachments", h.ListAttachments)
		}
	}
}

// IngestMessage accepts one inbound email delivery as multipart/form-data.
// A malformed body is rejected before any persistence begins.
func (h *Handler) IngestMessage(c *gin.Context) {
	req, err := h.decodeRequest(c)
	if err != nil {
		h.handleError(c, err)
		return
	}

	receipt, err := h.service.Ingest(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) GetMessage(c *gin.Context) {
	rec, err := h.service.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListAttachments(c *gin.Context) {
	records, err := h.service.ListAttachments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// decodeRequest streams the multipart body into scalar fields and spooled
// file parts. Any parse failure discards everything already spooled so a
// rejected request leaves no local state behind.
func (h *Handler) decodeRequest(c *gin.Context) (*DecodedRequest, error) {
	body := c.Request.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxBodyBytes)
		c.Request.Body = body
	}

	reader, err := c.Request.MultipartReader()
	if err != nil {
		return nil, errors.ErrDecode.WithCause(err)
	}

	req := &DecodedRequest{
		Fields: make(map[string]string),
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.discardSpooled(req.Files)
			return nil, errors.ErrDecode.WithCause(err)
		}

		if part.FileName() == "" {
			value, err := io.ReadAll(part)
			if err != nil {
				h.discardSpooled(req.Files)
				return nil, errors.ErrDecode.WithCause(err)
			}
			req.Fields[part.FormName()] = string(value)
			continue
		}

		file, err := h.spoolPart(part)
		if err != nil {
			h.discardSpooled(req.Files)
			return nil, errors.ErrDecode.WithCause(err)
		}
		req.Files = append(req.Files, file)
	}

	return req, nil
}

func (h *Handler) spoolPart(part *multipart.Part) (*DecodedFile, error) {
	tmp, err := os.CreateTemp(h.spoolDir, constants.SpoolFilePattern)
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(tmp, part); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, err
	}

	return &DecodedFile{
		Name:        part.FormName(),
		Filename:    part.FileName(),
		Encoding:    part.Header.Get("Content-Transfer-Encoding"),
		ContentType: part.Header.Get("Content-Type"),
		TempPath:    tmp.Name(),
	}, nil
}

func (h *Handler) discardSpooled(files []*DecodedFile) {
	for _, file := range files {
		if err := os.Remove(file.TempPath); err != nil {
			h.logger.Warnw("Failed to discard spooled file", "path", file.TempPath, "error", err)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}
