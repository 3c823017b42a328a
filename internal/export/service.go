package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/finparse-io/docinbox/internal/repository"
)

// Service is a tiny façade over the import repository that produces
// XLSX bytes for transaction exports.
type Service struct {
	imports repository.ImportRepository
	logger  *slog.Logger
}

func NewService(imports repository.ImportRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{imports: imports, logger: logger}
}

// ExportTransactionsXLSX returns an XLSX workbook (as bytes) for the
// given user and date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all transactions for the user.
func (s *Service) ExportTransactionsXLSX(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}

	txs, err := s.imports.ListTransactions(ctx, userID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Transactions"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// The default sheet is noise once ours exists.
	_ = f.DeleteSheet("Sheet1")

	headers := []string{
		"Date",
		"Description",
		"Amount",
		"Currency",
		"Type",
		"Category",
		"Cleared",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, tx := range txs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, tx.TxDate.Format("2006-01-02"))
		write(2, truncate(tx.Description, 140))
		write(3, money.New(tx.AmountMinor, tx.Currency).Display())
		write(4, tx.Currency)
		write(5, string(tx.Type))
		if tx.Category != nil {
			write(6, *tx.Category)
		} else {
			write(6, "")
		}
		write(7, tx.Cleared)

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 12)
	_ = f.SetColWidth(sheet, "B", "B", 48)
	_ = f.SetColWidth(sheet, "C", "C", 14)
	_ = f.SetColWidth(sheet, "D", "E", 10)
	_ = f.SetColWidth(sheet, "F", "F", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"user_id", userID.String(),
		"rows", len(txs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
