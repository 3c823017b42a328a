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

type ParsedSummaryRepository interface {
	Create(ctx context.Context, s *entity.ParsedSummary) error
	// LatestByFileID returns the most recent summary for a file, or a
	// SUMMARY_NOT_AVAILABLE error when the file has never completed a
	// parse.
	LatestByFileID(ctx context.Context, fileID uuid.UUID) (*entity.ParsedSummary, error)
}

type parsedSummaryRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewParsedSummaryRepository(db *sql.DB, log *slog.Logger) ParsedSummaryRepository {
	return &parsedSummaryRepo{db: db, log: log}
}

func (r *parsedSummaryRepo) Create(ctx context.Context, s *entity.ParsedSummary) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO parsed_summaries
			(id, file_id, doc_type, parser_version, payload, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID.String(), s.FileID.String(), string(s.DocType), s.ParserVersion,
		string(s.Payload), s.Confidence, s.CreatedAt,
	)
	if err != nil {
		r.log.Error("parsed summary create failed", "file_id", s.FileID, "err", err)
		return err
	}
	r.log.Info("parsed summary stored",
		"summary_id", s.ID, "file_id", s.FileID,
		"doc_type", s.DocType, "parser_version", s.ParserVersion,
		"confidence", s.Confidence,
	)
	return nil
}

func (r *parsedSummaryRepo) LatestByFileID(ctx context.Context, fileID uuid.UUID) (*entity.ParsedSummary, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, file_id, doc_type, parser_version, payload, confidence, created_at
		FROM parsed_summaries
		WHERE file_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, fileID.String())

	var s entity.ParsedSummary
	var docType, payload string
	err := row.Scan(&s.ID, &s.FileID, &docType, &s.ParserVersion, &payload, &s.Confidence, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppErrorf(common.CodeSummaryNotAvailable, "no parsed summary for file %s", fileID)
	}
	if err != nil {
		r.log.Error("parsed summary lookup failed", "file_id", fileID, "err", err)
		return nil, err
	}
	s.DocType = constants.DocType(docType)
	s.Payload = []byte(payload)
	return &s, nil
}
