// Package inbox owns the upload-to-summary lifecycle. It is the only
// place that moves a file between statuses; parsers and repositories
// never flip status on their own.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/async"
	"github.com/finparse-io/docinbox/internal/common"
	"github.com/finparse-io/docinbox/internal/entity"
	"github.com/finparse-io/docinbox/internal/parse"
	"github.com/finparse-io/docinbox/internal/repository"
	"github.com/finparse-io/docinbox/internal/storage"
)

// failureReasonLimit bounds what we persist; model snippets inside
// error messages can be long.
const failureReasonLimit = 500

// ParseOutcome reports how a parse request was handled. Image parses
// run inline and return the summary; heavier formats are queued and
// the caller polls for the completed status.
type ParseOutcome struct {
	Queued  bool                  `json:"queued"`
	Summary *entity.ParsedSummary `json:"summary,omitempty"`
}

type Service struct {
	files     repository.UploadedFileRepository
	summaries repository.ParsedSummaryRepository
	store     storage.Store
	parsers   parse.Registry
	queue     async.Queue
	logger    *slog.Logger
}

func NewService(
	files repository.UploadedFileRepository,
	summaries repository.ParsedSummaryRepository,
	store storage.Store,
	parsers parse.Registry,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		files:     files,
		summaries: summaries,
		store:     store,
		parsers:   parsers,
		logger:    logger,
	}
}

// SetQueue attaches the worker queue. Wired after construction because
// the queue needs the service as its processor.
func (s *Service) SetQueue(q async.Queue) { s.queue = q }

// RegisterUpload validates the MIME type, stores the document bytes,
// and creates the file row in stored state. Unsupported types are
// rejected here, before anything is persisted.
func (s *Service) RegisterUpload(ctx context.Context, userID uuid.UUID, filename, mimeType string, data []byte) (*entity.UploadedFile, error) {
	if _, err := parse.Classify(mimeType); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, common.NewAppErrorf(common.CodeEmptyDocument, "upload %q is empty", filename)
	}

	key, err := s.store.Put(ctx, userID, filename, data)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	now := time.Now().UTC()
	f := &entity.UploadedFile{
		ID:         uuid.New(),
		UserID:     userID,
		Filename:   filename,
		MimeType:   constants.NormalizeMIME(mimeType),
		SizeBytes:  int64(len(data)),
		StorageKey: key,
		Status:     constants.FileStatusStored,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.files.Create(ctx, f); err != nil {
		return nil, err
	}
	s.logger.Info("inbox.upload.registered", "file_id", f.ID, "user_id", userID, "mime_type", f.MimeType, "size", f.SizeBytes)
	return f, nil
}

// Parse starts a parse for a file in stored or failed state. Completed
// files go through Reparse so a stale client cannot re-run a parse by
// accident.
func (s *Service) Parse(ctx context.Context, fileID uuid.UUID) (*ParseOutcome, error) {
	return s.dispatch(ctx, fileID, func(f *entity.UploadedFile) error {
		if f.Status == constants.FileStatusCompleted {
			return common.NewAppErrorf(common.CodeInvalidState,
				"file %s is already completed, use reparse", f.ID)
		}
		return nil
	})
}

// Reparse re-runs extraction on a completed or failed file. The old
// summary stays; the new one supersedes it.
func (s *Service) Reparse(ctx context.Context, fileID uuid.UUID) (*ParseOutcome, error) {
	return s.dispatch(ctx, fileID, nil)
}

// Retry re-runs a parse and is only legal when the file is failed.
func (s *Service) Retry(ctx context.Context, fileID uuid.UUID) (*ParseOutcome, error) {
	return s.dispatch(ctx, fileID, func(f *entity.UploadedFile) error {
		if f.Status != constants.FileStatusFailed {
			return common.NewAppErrorf(common.CodeInvalidState,
				"file %s is %s, retry requires a failed file", f.ID, f.Status)
		}
		return nil
	})
}

func (s *Service) dispatch(ctx context.Context, fileID uuid.UUID, precheck func(*entity.UploadedFile) error) (*ParseOutcome, error) {
	f, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if precheck != nil {
		if err := precheck(f); err != nil {
			return nil, err
		}
	}

	format, err := parse.Classify(f.MimeType)
	if err != nil {
		return nil, err
	}

	// Images parse inline; the caller gets the summary back in the
	// same request. Heavier formats go to the worker pool.
	if format == constants.FormatImage || s.queue == nil {
		summary, err := s.processFile(ctx, f)
		if err != nil {
			return nil, err
		}
		return &ParseOutcome{Summary: summary}, nil
	}

	if err := s.queue.Enqueue(ctx, async.Job{FileID: f.ID, SubmittedAt: time.Now()}); err != nil {
		return nil, err
	}
	return &ParseOutcome{Queued: true}, nil
}

// GetSummary returns the most recent parsed summary for a file.
func (s *Service) GetSummary(ctx context.Context, fileID uuid.UUID) (*entity.ParsedSummary, error) {
	if _, err := s.files.GetByID(ctx, fileID); err != nil {
		return nil, err
	}
	return s.summaries.LatestByFileID(ctx, fileID)
}

// GetFile exposes current file metadata, including status and any
// failure reason.
func (s *Service) GetFile(ctx context.Context, fileID uuid.UUID) (*entity.UploadedFile, error) {
	return s.files.GetByID(ctx, fileID)
}

// ProcessFile runs one parse attempt end to end. Implements the queue
// worker contract.
func (s *Service) ProcessFile(ctx context.Context, fileID uuid.UUID) error {
	f, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	_, err = s.processFile(ctx, f)
	return err
}

func (s *Service) processFile(ctx context.Context, f *entity.UploadedFile) (*entity.ParsedSummary, error) {
	// BeginParse is the cross-process lock. Losing the race is an
	// expected outcome, surfaced to callers as ALREADY_PROCESSING
	// without touching the file.
	if err := s.files.BeginParse(ctx, f.ID); err != nil {
		return nil, err
	}

	summary, err := s.runParse(ctx, f)
	if err != nil {
		reason := failureReason(err)
		if markErr := s.files.MarkFailed(ctx, f.ID, reason); markErr != nil {
			s.logger.Error("inbox.mark_failed.error", "file_id", f.ID, "error", markErr)
		}
		s.logger.Warn("inbox.parse.failed", "file_id", f.ID, "reason", reason)
		return nil, err
	}

	if err := s.summaries.Create(ctx, summary); err != nil {
		if markErr := s.files.MarkFailed(ctx, f.ID, failureReason(err)); markErr != nil {
			s.logger.Error("inbox.mark_failed.error", "file_id", f.ID, "error", markErr)
		}
		return nil, err
	}
	if err := s.files.MarkCompleted(ctx, f.ID); err != nil {
		return nil, err
	}

	s.logger.Info("inbox.parse.completed",
		"file_id", f.ID,
		"doc_type", summary.DocType,
		"parser_version", summary.ParserVersion,
		"confidence", summary.Confidence,
	)
	return summary, nil
}

func (s *Service) runParse(ctx context.Context, f *entity.UploadedFile) (*entity.ParsedSummary, error) {
	parser, err := s.parsers.ForMIME(f.MimeType)
	if err != nil {
		return nil, err
	}

	data, err := s.store.GetBytes(ctx, f.StorageKey)
	if err != nil {
		return nil, err
	}

	out, err := parser.Parse(ctx, parse.Input{
		FileID:   f.ID,
		Filename: f.Filename,
		MimeType: f.MimeType,
		Data:     data,
	})
	if err != nil {
		return nil, err
	}

	return &entity.ParsedSummary{
		ID:            uuid.New(),
		FileID:        f.ID,
		DocType:       out.DocType,
		ParserVersion: out.ParserVersion,
		Payload:       out.Payload,
		Confidence:    out.Confidence,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// failureReason keeps the stored reason short and user-presentable.
// AppError messages are written for end users; anything else keeps its
// error text so operators can diagnose adapter failures.
func failureReason(err error) string {
	msg := err.Error()
	if len(msg) > failureReasonLimit {
		msg = msg[:failureReasonLimit]
	}
	return msg
}
