package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/entity"
)

func ledgered(userID, accountID uuid.UUID, itemID, desc string, amountMinor int64, txDate time.Time) LedgeredTransaction {
	return LedgeredTransaction{
		ItemID: itemID,
		Transaction: entity.Transaction{
			ID:          uuid.New(),
			UserID:      userID,
			AccountID:   accountID,
			TxDate:      txDate,
			Description: desc,
			AmountMinor: amountMinor,
			Currency:    "USD",
			Type:        constants.TransactionTypeExpense,
			CreatedAt:   time.Now().UTC(),
		},
	}
}

func TestImportRepository_LedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	files := NewUploadedFileRepository(db, testLogger())
	imports := NewImportRepository(db, testLogger())

	f := newStoredFile(t, files)
	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, imports.CreateImports(ctx, f.ID, []LedgeredTransaction{
		ledgered(f.UserID, uuid.New(), "row_1", "coffee", -2599, day),
		ledgered(f.UserID, uuid.New(), "row_2", "payroll", 100000, day.AddDate(0, 0, 1)),
	}))

	ids, err := imports.ListImportedItemIDs(ctx, f.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "row_1")
	assert.Contains(t, ids, "row_2")

	txs, err := imports.ListTransactions(ctx, f.UserID, nil, nil)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "coffee", txs[0].Description)
	assert.Equal(t, int64(-2599), txs[0].AmountMinor)
	assert.Equal(t, constants.TransactionTypeExpense, txs[0].Type)
}

func TestImportRepository_CreateImportsIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	files := NewUploadedFileRepository(db, testLogger())
	imports := NewImportRepository(db, testLogger())

	f := newStoredFile(t, files)
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, imports.CreateImports(ctx, f.ID, []LedgeredTransaction{
		ledgered(f.UserID, uuid.New(), "row_1", "first", -100, day),
	}))

	// Second batch: one fresh item plus a ledger collision on row_1.
	// The primary key rejects the batch and nothing from it survives.
	err := imports.CreateImports(ctx, f.ID, []LedgeredTransaction{
		ledgered(f.UserID, uuid.New(), "row_2", "fresh", -200, day),
		ledgered(f.UserID, uuid.New(), "row_1", "collision", -300, day),
	})
	require.Error(t, err)

	ids, err := imports.ListImportedItemIDs(ctx, f.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	txs, err := imports.ListTransactions(ctx, f.UserID, nil, nil)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "first", txs[0].Description)
}

func TestImportRepository_ListTransactionsDateFilter(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	files := NewUploadedFileRepository(db, testLogger())
	imports := NewImportRepository(db, testLogger())

	f := newStoredFile(t, files)
	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, imports.CreateImports(ctx, f.ID, []LedgeredTransaction{
		ledgered(f.UserID, uuid.New(), "row_1", "january", -100, jan),
		ledgered(f.UserID, uuid.New(), "row_2", "february", -200, feb),
		ledgered(f.UserID, uuid.New(), "row_3", "march", -300, mar),
	}))

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	txs, err := imports.ListTransactions(ctx, f.UserID, &from, &to)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "february", txs[0].Description)

	txs, err = imports.ListTransactions(ctx, f.UserID, &from, nil)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	// Another user sees nothing.
	txs, err = imports.ListTransactions(ctx, uuid.New(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, txs)
}
