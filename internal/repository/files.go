package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/common"
	"github.com/finparse-io/docinbox/internal/entity"
)

type UploadedFileRepository interface {
	Create(ctx context.Context, f *entity.UploadedFile) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.UploadedFile, error)
	// BeginParse is the cross-process lock: a compare-and-set on the
	// status column that moves any non-processing file to processing
	// and clears the previous failure reason. Returns
	// ALREADY_PROCESSING when another parse holds the row.
	BeginParse(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type uploadedFileRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewUploadedFileRepository(db *sql.DB, log *slog.Logger) UploadedFileRepository {
	return &uploadedFileRepo{db: db, log: log}
}

func (r *uploadedFileRepo) Create(ctx context.Context, f *entity.UploadedFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	now := time.Now().UTC()
	f.Status = constants.FileStatusStored
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO uploaded_files
			(id, user_id, filename, mime_type, size_bytes, storage_key, status, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		f.ID.String(), f.UserID.String(), f.Filename, f.MimeType, f.SizeBytes,
		f.StorageKey, string(f.Status), nil, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		r.log.Error("uploaded file create failed", "file_id", f.ID, "err", err)
		return err
	}
	r.log.Info("uploaded file registered", "file_id", f.ID, "filename", f.Filename, "mime_type", f.MimeType)
	return nil
}

func (r *uploadedFileRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.UploadedFile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, filename, mime_type, size_bytes, storage_key, status, failure_reason, created_at, updated_at
		FROM uploaded_files
		WHERE id = $1`, id.String())

	var f entity.UploadedFile
	var status string
	err := row.Scan(&f.ID, &f.UserID, &f.Filename, &f.MimeType, &f.SizeBytes,
		&f.StorageKey, &status, &f.FailureReason, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppErrorf(common.CodeNotFound, "file %s not found", id)
	}
	if err != nil {
		r.log.Error("uploaded file get failed", "file_id", id, "err", err)
		return nil, err
	}
	f.Status = constants.FileStatus(status)
	return &f, nil
}

func (r *uploadedFileRepo) BeginParse(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE uploaded_files
		SET status = $1, failure_reason = NULL, updated_at = $2
		WHERE id = $3 AND status <> $4`,
		string(constants.FileStatusProcessing), time.Now().UTC(),
		id.String(), string(constants.FileStatusProcessing),
	)
	if err != nil {
		r.log.Error("begin parse failed", "file_id", id, "err", err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the row does not exist or another parse holds it.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		r.log.Warn("begin parse rejected, already processing", "file_id", id)
		return common.NewAppErrorf(common.CodeAlreadyProcessing, "file %s is already being parsed", id)
	}
	r.log.Info("parse started", "file_id", id)
	return nil
}

func (r *uploadedFileRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, constants.FileStatusCompleted, nil)
}

func (r *uploadedFileRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.setStatus(ctx, id, constants.FileStatusFailed, &reason)
}

func (r *uploadedFileRepo) setStatus(ctx context.Context, id uuid.UUID, status constants.FileStatus, reason *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE uploaded_files
		SET status = $1, failure_reason = $2, updated_at = $3
		WHERE id = $4`,
		string(status), reason, time.Now().UTC(), id.String(),
	)
	if err != nil {
		r.log.Error("status update failed", "file_id", id, "status", status, "err", err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NewAppErrorf(common.CodeNotFound, "file %s not found", id)
	}
	if status == constants.FileStatusFailed {
		r.log.Warn("parse failed", "file_id", id, "reason", derefOrEmpty(reason))
	} else {
		r.log.Info("parse completed", "file_id", id)
	}
	return nil
}

func derefOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
