package repository

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/common"
	"github.com/finparse-io/docinbox/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func newStoredFile(t *testing.T, repo UploadedFileRepository) *entity.UploadedFile {
	t.Helper()
	now := time.Now().UTC()
	f := &entity.UploadedFile{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Filename:   "jan.pdf",
		MimeType:   "application/pdf",
		SizeBytes:  1024,
		StorageKey: "u/jan.pdf",
		Status:     constants.FileStatusStored,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, repo.Create(context.Background(), f))
	return f
}

func TestUploadedFileRepository_CreateAndGet(t *testing.T) {
	repo := NewUploadedFileRepository(openTestDB(t), testLogger())
	f := newStoredFile(t, repo)

	got, err := repo.GetByID(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, constants.FileStatusStored, got.Status)
	assert.Nil(t, got.FailureReason)

	_, err = repo.GetByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, common.IsCode(err, common.CodeNotFound))
}

func TestUploadedFileRepository_BeginParseCAS(t *testing.T) {
	ctx := context.Background()

	t.Run("locks a stored file", func(t *testing.T) {
		repo := NewUploadedFileRepository(openTestDB(t), testLogger())
		f := newStoredFile(t, repo)

		require.NoError(t, repo.BeginParse(ctx, f.ID))

		got, err := repo.GetByID(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, constants.FileStatusProcessing, got.Status)

		err = repo.BeginParse(ctx, f.ID)
		require.Error(t, err)
		assert.True(t, common.IsCode(err, common.CodeAlreadyProcessing))
	})

	t.Run("exactly one concurrent caller wins", func(t *testing.T) {
		repo := NewUploadedFileRepository(openTestDB(t), testLogger())
		f := newStoredFile(t, repo)

		const callers = 8
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = repo.BeginParse(ctx, f.ID)
			}(i)
		}
		wg.Wait()

		won, lost := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				won++
			case common.IsCode(err, common.CodeAlreadyProcessing):
				lost++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, won)
		assert.Equal(t, callers-1, lost)
	})

	t.Run("relocks after failure and clears the reason", func(t *testing.T) {
		repo := NewUploadedFileRepository(openTestDB(t), testLogger())
		f := newStoredFile(t, repo)

		require.NoError(t, repo.BeginParse(ctx, f.ID))
		require.NoError(t, repo.MarkFailed(ctx, f.ID, "INVALID_MODEL_OUTPUT: bad json"))

		got, err := repo.GetByID(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, constants.FileStatusFailed, got.Status)
		require.NotNil(t, got.FailureReason)

		require.NoError(t, repo.BeginParse(ctx, f.ID))
		got, err = repo.GetByID(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, constants.FileStatusProcessing, got.Status)
		assert.Nil(t, got.FailureReason)
	})

	t.Run("missing file is NOT_FOUND, not a lock conflict", func(t *testing.T) {
		repo := NewUploadedFileRepository(openTestDB(t), testLogger())
		err := repo.BeginParse(ctx, uuid.New())
		require.Error(t, err)
		assert.True(t, common.IsCode(err, common.CodeNotFound))
	})
}

func TestUploadedFileRepository_StatusUpdatesTouchUpdatedAt(t *testing.T) {
	ctx := context.Background()
	repo := NewUploadedFileRepository(openTestDB(t), testLogger())
	f := newStoredFile(t, repo)

	before, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.BeginParse(ctx, f.ID))
	require.NoError(t, repo.MarkCompleted(ctx, f.ID))

	after, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.FileStatusCompleted, after.Status)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}
