package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"reportdesk/internal/middleware"
	"reportdesk/internal/repository"
	"reportdesk/internal/service"
	"reportdesk/internal/validation"
)

type ImportHandler struct {
	service         service.ImportService
	maxPayloadBytes int
	maxUploadBytes  int
}

func NewImportHandler(svc service.ImportService, maxPayloadBytes, maxUploadBytes int) *ImportHandler {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = 5 << 20
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 2 << 20
	}
	return &ImportHandler{
		service:         svc,
		maxPayloadBytes: maxPayloadBytes,
		maxUploadBytes:  maxUploadBytes,
	}
}

type jsonImportBody struct {
	Filename string          `json:"filename"`
	Payload  json.RawMessage `json:"payload"`
}

// CreateImport handles POST /api/v1/admin/imports. It accepts either a
// multipart file upload or a direct JSON body {filename, payload} and maps
// the pipeline result to a status code.
func (h *ImportHandler) CreateImport(c *gin.Context) {
	var (
		filename string
		raw      []byte
		maxBytes int
	)

	contentType := c.ContentType()
	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		maxBytes = h.maxUploadBytes
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(maxBytes))

		file, err := c.FormFile("file")
		if err != nil {
			if isTooLarge(err) {
				tooLarge(c, maxBytes)
				return
			}
			badRequest(c, "missing multipart field \"file\"")
			return
		}

		filename = c.PostForm("filename")
		if filename == "" {
			filename = file.Filename
		}

		f, err := file.Open()
		if err != nil {
			badRequest(c, "failed to open uploaded file")
			return
		}
		defer f.Close()

		raw, err = io.ReadAll(io.LimitReader(f, int64(maxBytes)+1))
		if err != nil {
			badRequest(c, "failed to read uploaded file")
			return
		}
		if len(raw) > maxBytes {
			tooLarge(c, maxBytes)
			return
		}

	case strings.HasPrefix(contentType, "application/json"):
		maxBytes = h.maxPayloadBytes
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(maxBytes))

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			if isTooLarge(err) {
				tooLarge(c, maxBytes)
				return
			}
			badRequest(c, "failed to read request body")
			return
		}

		var parsed jsonImportBody
		if err := json.Unmarshal(body, &parsed); err != nil {
			badRequest(c, "request body is not valid JSON")
			return
		}
		filename = parsed.Filename
		raw = parsed.Payload

	default:
		badRequest(c, "unsupported content type, use multipart/form-data or application/json")
		return
	}

	var uploader *string
	if id := c.GetString(middleware.ContextUploader); id != "" {
		uploader = &id
	}

	result, ierr := h.service.Import(c.Request.Context(), service.ImportRequest{
		Filename: filename,
		Raw:      raw,
		Uploader: uploader,
		MaxBytes: maxBytes,
	})
	if ierr != nil {
		c.JSON(statusForCode(ierr.Code), gin.H{
			"code":    ierr.Code,
			"message": ierr.Message,
		})
		return
	}

	c.JSON(http.StatusCreated, result)
}

// ListImports handles GET /api/v1/admin/imports with status, uploader and
// time-range filters.
func (h *ImportHandler) ListImports(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := repository.AuditFilter{
		Status:   c.Query("status"),
		Uploader: c.Query("uploader"),
		Page:     page,
		PageSize: pageSize,
	}

	if fromStr := c.Query("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			badRequest(c, "invalid \"from\" timestamp, expected RFC3339")
			return
		}
		filter.From = from
	}
	if toStr := c.Query("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			badRequest(c, "invalid \"to\" timestamp, expected RFC3339")
			return
		}
		filter.To = to
	}

	items, total, err := h.service.ListAudits(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    service.CodeServerError,
			"message": "failed to list import attempts",
		})
		return
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	c.JSON(http.StatusOK, service.NewPage(items, filter.Page, filter.PageSize, total))
}

func statusForCode(code string) int {
	switch code {
	case validation.CodeInvalidFilename, validation.CodeInvalidJSON, service.CodeBadRequest:
		return http.StatusBadRequest
	case validation.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case validation.CodeUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case service.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    service.CodeBadRequest,
		"message": message,
	})
}

func tooLarge(c *gin.Context, maxBytes int) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"code":    validation.CodePayloadTooLarge,
		"message": "payload exceeds the " + strconv.Itoa(maxBytes) + " byte limit",
	})
}

func isTooLarge(err error) bool {
	if err == nil {
		return false
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
