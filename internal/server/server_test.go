package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/entity"
	"github.com/finparse-io/docinbox/internal/export"
	"github.com/finparse-io/docinbox/internal/importer"
	"github.com/finparse-io/docinbox/internal/inbox"
	"github.com/finparse-io/docinbox/internal/parse"
	"github.com/finparse-io/docinbox/internal/repository"
	"github.com/finparse-io/docinbox/internal/storage"
)

type cannedParser struct {
	format constants.Format
	raw    string
}

func (p *cannedParser) Format() constants.Format { return p.format }
func (p *cannedParser) Version() string          { return "canned-v1" }

func (p *cannedParser) Parse(_ context.Context, _ parse.Input) (*parse.Output, error) {
	out, err := parse.ValidateModelOutput(p.raw)
	if err != nil {
		return nil, err
	}
	out.ParserVersion = p.Version()
	return out, nil
}

func newTestRouter(t *testing.T, raw string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(context.Background(), db))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	files := repository.NewUploadedFileRepository(db, logger)
	summaries := repository.NewParsedSummaryRepository(db, logger)
	imports := repository.NewImportRepository(db, logger)

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	parsers := parse.Registry{constants.FormatPDF: &cannedParser{format: constants.FormatPDF, raw: raw}}

	inboxSvc := inbox.NewService(files, summaries, store, parsers, logger)
	importerSvc := importer.NewService(files, summaries, imports, logger)
	exportSvc := export.NewService(imports, logger)

	r := gin.New()
	RegisterRoutes(r, NewHandler(inboxSvc, importerSvc, exportSvc, logger))
	return r
}

func multipartUpload(t *testing.T, filename, mimeType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func doJSON(t *testing.T, r *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

const statementRaw = `{
	"documentType": "bank_statement",
	"currency": "usd",
	"rows": [
		{"date": "2024-01-05", "description": "COFFEE ROASTERS", "amount": -25.99},
		{"date": "2024-01-06", "description": "PAYROLL ACME", "amount": 1000.00, "isCredit": true}
	]
}`

func TestAPI_UploadParseImportFlow(t *testing.T) {
	r := newTestRouter(t, statementRaw)
	userID := uuid.NewString()

	// Upload.
	body, contentType := multipartUpload(t, "jan.pdf", "application/pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", userID)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var uploaded entity.UploadedFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	assert.Equal(t, constants.FileStatusStored, uploaded.Status)

	// Parse runs inline here because no queue is attached.
	rec = doJSON(t, r, http.MethodPost, "/api/files/"+uploaded.ID.String()+"/parse", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var outcome inbox.ParseOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	require.NotNil(t, outcome.Summary)
	assert.Equal(t, constants.DocTypeBankStatement, outcome.Summary.DocType)

	// Summary fetch.
	rec = doJSON(t, r, http.MethodGet, "/api/files/"+uploaded.ID.String()+"/summary", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary entity.ParsedSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	var st entity.BankStatement
	require.NoError(t, json.Unmarshal(summary.Payload, &st))
	require.Len(t, st.Rows, 2)

	// Import both rows.
	rec = doJSON(t, r, http.MethodPost, "/api/files/"+uploaded.ID.String()+"/import", userID, gin.H{
		"itemIds":   []string{st.Rows[0].ID, st.Rows[1].ID},
		"accountId": uuid.NewString(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res importer.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Imported, 2)
	assert.Empty(t, res.AlreadySkipped)

	// Re-import is idempotent.
	rec = doJSON(t, r, http.MethodPost, "/api/files/"+uploaded.ID.String()+"/import", userID, gin.H{
		"itemIds":   []string{st.Rows[0].ID, st.Rows[1].ID},
		"accountId": uuid.NewString(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Empty(t, res.Imported)
	assert.Len(t, res.AlreadySkipped, 2)

	// Transactions list and export.
	rec = doJSON(t, r, http.MethodGet, "/api/transactions", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/transactions/export", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
}

func TestAPI_ErrorMapping(t *testing.T) {
	r := newTestRouter(t, statementRaw)
	userID := uuid.NewString()

	t.Run("unsupported upload is 415", func(t *testing.T) {
		body, contentType := multipartUpload(t, "archive.zip", "application/zip", []byte("PK"))
		req := httptest.NewRequest(http.MethodPost, "/api/files", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-User-ID", userID)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("unknown file is 404", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodGet, "/api/files/"+uuid.NewString(), userID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("summary before parse is 409", func(t *testing.T) {
		body, contentType := multipartUpload(t, "jan.pdf", "application/pdf", []byte("%PDF"))
		req := httptest.NewRequest(http.MethodPost, "/api/files", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-User-ID", userID)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)

		var uploaded entity.UploadedFile
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))

		rec = doJSON(t, r, http.MethodGet, "/api/files/"+uploaded.ID.String()+"/summary", userID, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing user header is 400", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodGet, "/api/transactions", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad date window is 400", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodGet, "/api/transactions?from=notadate", userID, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
