package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/entity"
)

// LedgeredTransaction pairs a new transaction with the parsed item id it
// was imported from.
type LedgeredTransaction struct {
	ItemID      string
	Transaction entity.Transaction
}

type ImportRepository interface {
	ListImportedItemIDs(ctx context.Context, fileID uuid.UUID) (map[string]struct{}, error)
	// CreateImports inserts every transaction and its ledger row inside
	// one database transaction: a crash can never leave an item counted
	// as imported without its transaction, or vice versa.
	CreateImports(ctx context.Context, fileID uuid.UUID, items []LedgeredTransaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]entity.Transaction, error)
}

type importRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewImportRepository(db *sql.DB, log *slog.Logger) ImportRepository {
	return &importRepo{db: db, log: log}
}

func (r *importRepo) ListImportedItemIDs(ctx context.Context, fileID uuid.UUID) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id FROM imported_items WHERE file_id = $1`, fileID.String())
	if err != nil {
		r.log.Error("imported items lookup failed", "file_id", fileID, "err", err)
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (r *importRepo) CreateImports(ctx context.Context, fileID uuid.UUID, items []LedgeredTransaction) (err error) {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, it := range items {
		t := it.Transaction
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transactions
				(id, user_id, account_id, tx_date, description, amount_minor, currency, tx_type, category, cleared, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			t.ID.String(), t.UserID.String(), t.AccountID.String(), t.TxDate,
			t.Description, t.AmountMinor, t.Currency, string(t.Type), t.Category, t.Cleared, t.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert transaction for item %q: %w", it.ItemID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO imported_items (file_id, item_id, transaction_id, created_at)
			VALUES ($1, $2, $3, $4)`,
			fileID.String(), it.ItemID, t.ID.String(), now,
		)
		if err != nil {
			return fmt.Errorf("insert ledger row for item %q: %w", it.ItemID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit import tx: %w", err)
	}
	r.log.Info("import committed", "file_id", fileID, "items", len(items))
	return nil
}

func (r *importRepo) ListTransactions(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]entity.Transaction, error) {
	q := `
		SELECT id, user_id, account_id, tx_date, description, amount_minor, currency, tx_type, category, cleared, created_at
		FROM transactions
		WHERE user_id = $1`
	args := []any{userID.String()}
	if from != nil {
		args = append(args, *from)
		q += fmt.Sprintf(" AND tx_date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		q += fmt.Sprintf(" AND tx_date <= $%d", len(args))
	}
	q += " ORDER BY tx_date, created_at"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		r.log.Error("transactions lookup failed", "user_id", userID, "err", err)
		return nil, err
	}
	defer rows.Close()

	var out []entity.Transaction
	for rows.Next() {
		var t entity.Transaction
		var txType string
		if err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &t.TxDate, &t.Description,
			&t.AmountMinor, &t.Currency, &txType, &t.Category, &t.Cleared, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = constants.TransactionType(txType)
		out = append(out, t)
	}
	return out, rows.Err()
}
