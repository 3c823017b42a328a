// Package server is the HTTP surface: thin gin handlers over the inbox,
// importer, and export services. Handlers translate transport concerns
// only; all business rules live in the services.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/common"
	"github.com/finparse-io/docinbox/internal/export"
	"github.com/finparse-io/docinbox/internal/importer"
	"github.com/finparse-io/docinbox/internal/inbox"
)

// maxUploadBytes caps multipart uploads.
const maxUploadBytes = 25 << 20

type Handler struct {
	inbox    *inbox.Service
	importer *importer.Service
	export   *export.Service
	logger   *slog.Logger
}

func NewHandler(inboxSvc *inbox.Service, importerSvc *importer.Service, exportSvc *export.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inbox: inboxSvc, importer: importerSvc, export: exportSvc, logger: logger}
}

// userID reads the already-authenticated user from the request. Auth
// itself happens upstream; an absent header is a client error here.
func userID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetHeader("X-User-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid X-User-ID header"})
		return uuid.Nil, false
	}
	return id, true
}

func fileID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) Upload(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	if fh.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", maxUploadBytes)})
		return
	}

	src, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		h.fail(c, err)
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	f, err := h.inbox.RegisterUpload(c.Request.Context(), uid, fh.Filename, mimeType, data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *Handler) GetFile(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}
	f, err := h.inbox.GetFile(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) Parse(c *gin.Context) {
	h.runParse(c, h.inbox.Parse)
}

func (h *Handler) Reparse(c *gin.Context) {
	h.runParse(c, h.inbox.Reparse)
}

func (h *Handler) Retry(c *gin.Context) {
	h.runParse(c, h.inbox.Retry)
}

func (h *Handler) runParse(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (*inbox.ParseOutcome, error)) {
	id, ok := fileID(c)
	if !ok {
		return
	}
	outcome, err := op(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if outcome.Queued {
		c.JSON(http.StatusAccepted, outcome)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *Handler) GetSummary(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}
	summary, err := h.inbox.GetSummary(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type importRequest struct {
	ItemIDs           []string          `json:"itemIds" binding:"required"`
	AccountID         uuid.UUID         `json:"accountId"`
	DefaultType       string            `json:"defaultType"`
	CategoryOverrides map[string]string `json:"categoryOverrides"`
}

func (h *Handler) ImportItems(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid import payload: " + err.Error()})
		return
	}

	res, err := h.importer.ImportItems(c.Request.Context(), id, req.ItemIDs, importer.Options{
		AccountID:         req.AccountID,
		DefaultType:       constants.TransactionType(req.DefaultType),
		CategoryOverrides: req.CategoryOverrides,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	from, to, ok := dateWindow(c)
	if !ok {
		return
	}
	txs, err := h.importer.ListTransactions(c.Request.Context(), uid, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *Handler) ExportTransactions(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	from, to, ok := dateWindow(c)
	if !ok {
		return
	}
	data, err := h.export.ExportTransactionsXLSX(c.Request.Context(), uid, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	name := fmt.Sprintf("transactions-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func dateWindow(c *gin.Context) (from, to *time.Time, ok bool) {
	parse := func(name string) (*time.Time, bool) {
		v := c.Query(name)
		if v == "" {
			return nil, true
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("query %q must be YYYY-MM-DD", name)})
			return nil, false
		}
		return &t, true
	}
	if from, ok = parse("from"); !ok {
		return nil, nil, false
	}
	if to, ok = parse("to"); !ok {
		return nil, nil, false
	}
	return from, to, true
}

// fail maps the error taxonomy onto HTTP statuses. AppError messages
// are written for clients; everything else is an opaque 500.
func (h *Handler) fail(c *gin.Context, err error) {
	code := common.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case common.CodeNotFound:
		status = http.StatusNotFound
	case common.CodeUnsupportedMimeType:
		status = http.StatusUnsupportedMediaType
	case common.CodeAlreadyProcessing, common.CodeInvalidState, common.CodeSummaryNotAvailable:
		status = http.StatusConflict
	case common.CodeEmptyDocument, common.CodeInvalidModelOutput:
		status = http.StatusUnprocessableEntity
	case common.CodeUnknownItemID:
		status = http.StatusBadRequest
	case common.CodeQueueFull:
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("http.request.failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
