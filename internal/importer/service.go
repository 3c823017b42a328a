// Package importer converts selected parsed rows into durable
// transactions, guarded by the imported-items ledger so the same row
// can never be imported twice.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/common"
	"github.com/finparse-io/docinbox/internal/entity"
	"github.com/finparse-io/docinbox/internal/repository"
)

// Options carries caller choices for one import call.
type Options struct {
	// AccountID is the target account for every created transaction.
	AccountID uuid.UUID
	// DefaultType is used when neither the receipt convention nor the
	// row's credit flag decides the type. Empty means expense.
	DefaultType constants.TransactionType
	// CategoryOverrides maps item id to a caller-chosen category. An
	// override beats the parser's category guess.
	CategoryOverrides map[string]string
}

// Result reports what one import call did.
type Result struct {
	Imported       []entity.Transaction `json:"imported"`
	AlreadySkipped []string             `json:"alreadySkipped"`
}

// selectable is the common shape of an importable parsed item.
type selectable struct {
	description string
	date        *string
	amount      float64 // signed major units
	isCredit    bool
	category    string
	currency    string
}

type Service struct {
	files     repository.UploadedFileRepository
	summaries repository.ParsedSummaryRepository
	imports   repository.ImportRepository
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(
	files repository.UploadedFileRepository,
	summaries repository.ParsedSummaryRepository,
	imports repository.ImportRepository,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		files:     files,
		summaries: summaries,
		imports:   imports,
		logger:    logger,
		now:       time.Now,
	}
}

// ImportItems creates one transaction per selected item id that is not
// already in the ledger. Unknown ids fail the whole call before any
// side effect; known-but-already-imported ids are skipped and reported.
func (s *Service) ImportItems(ctx context.Context, fileID uuid.UUID, itemIDs []string, opts Options) (*Result, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	summary, err := s.summaries.LatestByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	available, err := selectableItems(summary)
	if err != nil {
		return nil, err
	}
	for _, id := range itemIDs {
		if _, ok := available[id]; !ok {
			return nil, common.NewAppErrorf(common.CodeUnknownItemID,
				"item %q does not exist in the latest summary of file %s", id, fileID)
		}
	}

	ledger, err := s.imports.ListImportedItemIDs(ctx, fileID)
	if err != nil {
		return nil, err
	}

	res := &Result{Imported: []entity.Transaction{}, AlreadySkipped: []string{}}
	var pending []repository.LedgeredTransaction
	seen := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if _, done := ledger[id]; done {
			res.AlreadySkipped = append(res.AlreadySkipped, id)
			continue
		}
		tx := s.buildTransaction(file, available[id], opts, id)
		pending = append(pending, repository.LedgeredTransaction{ItemID: id, Transaction: tx})
	}

	if len(pending) > 0 {
		if err := s.imports.CreateImports(ctx, fileID, pending); err != nil {
			return nil, err
		}
		for _, p := range pending {
			res.Imported = append(res.Imported, p.Transaction)
		}
	}

	s.logger.Info("import.ok",
		"file_id", fileID,
		"requested", len(itemIDs),
		"imported", len(res.Imported),
		"skipped", len(res.AlreadySkipped),
	)
	return res, nil
}

// ListTransactions exposes the user's imported transactions, newest
// first, optionally bounded by date.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]entity.Transaction, error) {
	return s.imports.ListTransactions(ctx, userID, from, to)
}

func (s *Service) buildTransaction(file *entity.UploadedFile, item selectable, opts Options, itemID string) entity.Transaction {
	// The row's credit flag decides the type; the caller's default only
	// matters for zero amounts, where the sign carries no signal.
	var txType constants.TransactionType
	switch {
	case item.isCredit:
		txType = constants.TransactionTypeIncome
	case item.amount != 0:
		txType = constants.TransactionTypeExpense
	case opts.DefaultType != "":
		txType = opts.DefaultType
	default:
		txType = constants.TransactionTypeExpense
	}

	amountMinor := toMinorUnits(item.amount, item.currency)
	// Sign follows the type regardless of how the source row was
	// signed: expenses negative, income positive.
	if txType == constants.TransactionTypeExpense && amountMinor > 0 {
		amountMinor = -amountMinor
	}
	if txType == constants.TransactionTypeIncome && amountMinor < 0 {
		amountMinor = -amountMinor
	}

	txDate := s.now().UTC().Truncate(24 * time.Hour)
	if item.date != nil {
		if t, err := time.Parse("2006-01-02", *item.date); err == nil {
			txDate = t
		}
	}

	var category *string
	if c, ok := opts.CategoryOverrides[itemID]; ok && strings.TrimSpace(c) != "" {
		c = strings.TrimSpace(c)
		category = &c
	} else if item.category != "" {
		c := item.category
		category = &c
	}

	now := s.now().UTC()
	return entity.Transaction{
		ID:          uuid.New(),
		UserID:      file.UserID,
		AccountID:   opts.AccountID,
		TxDate:      txDate,
		Description: item.description,
		AmountMinor: amountMinor,
		Currency:    item.currency,
		Type:        txType,
		Category:    category,
		Cleared:     false,
		CreatedAt:   now,
	}
}

// selectableItems flattens the summary payload into importable items
// keyed by item id. Receipts expose exactly one item under the fixed
// "main" id; statements expose one per surviving row.
func selectableItems(summary *entity.ParsedSummary) (map[string]selectable, error) {
	switch summary.DocType {
	case constants.DocTypeReceipt:
		r, err := summary.DecodeReceipt()
		if err != nil {
			return nil, fmt.Errorf("decode receipt payload: %w", err)
		}
		// Receipt amounts are stored unsigned; the expense convention
		// is applied here.
		return map[string]selectable{
			entity.ReceiptItemID: {
				description: r.MainTransaction.Merchant,
				date:        r.MainTransaction.Date,
				amount:      -r.MainTransaction.Amount,
				isCredit:    false,
				category:    r.MainTransaction.CategoryGuess,
				currency:    r.Currency,
			},
		}, nil
	case constants.DocTypeBankStatement:
		st, err := summary.DecodeBankStatement()
		if err != nil {
			return nil, fmt.Errorf("decode bank statement payload: %w", err)
		}
		items := make(map[string]selectable, len(st.Rows))
		for _, row := range st.Rows {
			items[row.ID] = selectable{
				description: row.Description,
				date:        row.Date,
				amount:      row.Amount,
				isCredit:    row.IsCredit,
				category:    row.CategoryGuess,
				currency:    st.Currency,
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unknown document type %q", summary.DocType)
	}
}

// toMinorUnits converts a signed major-unit amount into the currency's
// minor units, honoring zero-decimal currencies like JPY.
func toMinorUnits(amount float64, currencyCode string) int64 {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(money.USD)
	}
	d := decimal.NewFromFloat(amount)
	return d.Mul(decimal.New(1, int32(currency.Fraction))).Round(0).IntPart()
}
