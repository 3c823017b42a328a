package parse

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/extrame/xls"
	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/common"
	"github.com/finparse-io/docinbox/internal/entity"
)

const spreadsheetParserVersion = "spreadsheet-v1"

// csvRow is unmarshaled by header name; one semantic field may arrive
// under several common column names, picked with coalesce.
type csvRow struct {
	Date   string `csv:"date"`
	TxDate string `csv:"transaction date"`
	Posted string `csv:"posted"`

	Description string `csv:"description"`
	Merchant    string `csv:"merchant"`
	Payee       string `csv:"payee"`
	Memo        string `csv:"memo"`
	Details     string `csv:"details"`

	Amount string `csv:"amount"`
	Value  string `csv:"value"`
	Debit  string `csv:"debit"`
	Credit string `csv:"credit"`

	Category string `csv:"category"`
	Type     string `csv:"type"`
}

// SpreadsheetParser extracts statement rows from CSV and XLSX files
// deterministically, without any model call.
type SpreadsheetParser struct {
	logger *slog.Logger
}

func NewSpreadsheetParser(logger *slog.Logger) *SpreadsheetParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpreadsheetParser{logger: logger}
}

func (p *SpreadsheetParser) Format() constants.Format { return constants.FormatSpreadsheet }
func (p *SpreadsheetParser) Version() string          { return spreadsheetParserVersion }

func (p *SpreadsheetParser) Parse(_ context.Context, in Input) (*Output, error) {
	var (
		rows  []entity.StatementRow
		total int
		err   error
	)
	mime := constants.NormalizeMIME(in.MimeType)
	if _, isCSV := constants.CSVMIMETypes[mime]; isCSV {
		rows, total, err = p.parseCSV(in.Data)
	} else if mime == constants.MIMETypeXLS {
		rows, total, err = p.parseXLS(in.Data)
	} else {
		rows, total, err = p.parseXLSX(in.Data)
	}
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, common.NewAppErrorf(common.CodeEmptyDocument, "%q has no data rows", in.Filename)
	}

	payload := entity.BankStatement{
		DocumentType: string(constants.DocTypeBankStatement),
		Currency:     "USD",
		Rows:         rows,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal statement payload: %w", err)
	}

	out := &Output{
		DocType:       constants.DocTypeBankStatement,
		Payload:       b,
		Confidence:    rowConfidence(len(rows), total),
		ParserVersion: spreadsheetParserVersion,
	}
	p.logger.Info("parse.spreadsheet.ok",
		"file_id", in.FileID,
		"rows_total", total,
		"rows_kept", len(rows),
		"confidence", out.Confidence,
	)
	return out, nil
}

func (p *SpreadsheetParser) parseCSV(data []byte) ([]entity.StatementRow, int, error) {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.LazyQuotes = true
		r.TrimLeadingSpace = true
		r.FieldsPerRecord = -1
		return r
	})

	var raw []csvRow
	if err := gocsv.UnmarshalBytes(data, &raw); err != nil {
		return nil, 0, common.NewAppError(common.CodeInvalidModelOutput, "file is not parseable as CSV", err)
	}

	rows := make([]entity.StatementRow, 0, len(raw))
	for i, r := range raw {
		row, ok := convertCSVRow(r, i)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows, len(raw), nil
}

func convertCSVRow(r csvRow, idx int) (entity.StatementRow, bool) {
	var amount float64
	var found bool
	if s := coalesce(r.Amount, r.Value); s != "" {
		amount, found = parseAmount(s)
	} else if r.Debit != "" || r.Credit != "" {
		// Double-entry layout: debit and credit in separate columns,
		// both given as positive magnitudes.
		if d, ok := parseAmount(r.Debit); ok && d != 0 {
			amount, found = -abs(d), true
		} else if c, ok := parseAmount(r.Credit); ok && c != 0 {
			amount, found = abs(c), true
		}
	}
	if !found {
		return entity.StatementRow{}, false
	}

	row := entity.StatementRow{
		ID:            fmt.Sprintf("row_%d", idx+1),
		Description:   coalesce(r.Description, r.Merchant, r.Payee, r.Memo, r.Details),
		Amount:        amount,
		IsCredit:      amount > 0,
		CategoryGuess: coalesce(r.Category, r.Type),
	}
	if d := coalesce(r.Date, r.TxDate, r.Posted); d != "" {
		row.Date = NormalizeDate(d)
	}
	return row, true
}

// columnRoles maps the header of each column to a semantic role.
type columnRoles struct {
	date, desc, amount, debit, credit, category int
}

func (p *SpreadsheetParser) parseXLSX(data []byte) ([]entity.StatementRow, int, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, 0, common.NewAppError(common.CodeInvalidModelOutput, "file is not a readable workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, 0, nil
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, 0, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rowsFromRecords(records)
}

// parseXLS reads legacy binary workbooks and feeds them through the
// same record pipeline as OOXML sheets.
func (p *SpreadsheetParser) parseXLS(data []byte) ([]entity.StatementRow, int, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, 0, common.NewAppError(common.CodeInvalidModelOutput, "file is not a readable legacy workbook", err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, 0, nil
	}

	var records [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		rec := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			if j < row.FirstCol() {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, row.Col(j))
		}
		records = append(records, rec)
	}
	return rowsFromRecords(records)
}

func rowsFromRecords(records [][]string) ([]entity.StatementRow, int, error) {
	if len(records) == 0 {
		return nil, 0, nil
	}

	roles, headered := detectColumns(records[0])
	start := 0
	if headered {
		start = 1
	}

	var rows []entity.StatementRow
	total := 0
	for i := start; i < len(records); i++ {
		rec := records[i]
		if isBlankRecord(rec) {
			continue
		}
		total++

		var row entity.StatementRow
		var ok bool
		if headered {
			row, ok = convertMappedRecord(rec, roles)
		} else {
			row, ok = convertHeuristicRecord(rec)
		}
		if !ok {
			continue
		}
		row.ID = fmt.Sprintf("row_%d", len(rows)+1)
		row.IsCredit = row.Amount > 0
		rows = append(rows, row)
	}
	return rows, total, nil
}

// detectColumns matches headers case-insensitively and reports whether
// the first record looks like a header row at all.
func detectColumns(header []string) (columnRoles, bool) {
	roles := columnRoles{date: -1, desc: -1, amount: -1, debit: -1, credit: -1, category: -1}
	matched := false
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date", "transaction date", "posted":
			roles.date, matched = i, true
		case "description", "merchant", "payee", "memo", "details":
			if roles.desc == -1 {
				roles.desc, matched = i, true
			}
		case "amount", "value":
			roles.amount, matched = i, true
		case "debit":
			roles.debit, matched = i, true
		case "credit":
			roles.credit, matched = i, true
		case "category", "type":
			if roles.category == -1 {
				roles.category, matched = i, true
			}
		}
	}
	return roles, matched
}

func convertMappedRecord(rec []string, roles columnRoles) (entity.StatementRow, bool) {
	var amount float64
	var found bool
	if s := cellAt(rec, roles.amount); s != "" {
		amount, found = parseAmount(s)
	}
	if !found {
		if d, ok := parseAmount(cellAt(rec, roles.debit)); ok && d != 0 {
			amount, found = -abs(d), true
		} else if c, ok := parseAmount(cellAt(rec, roles.credit)); ok && c != 0 {
			amount, found = abs(c), true
		}
	}
	if !found {
		return entity.StatementRow{}, false
	}

	row := entity.StatementRow{
		Amount:        amount,
		Description:   strings.TrimSpace(cellAt(rec, roles.desc)),
		CategoryGuess: strings.TrimSpace(cellAt(rec, roles.category)),
	}
	if d := cellAt(rec, roles.date); d != "" {
		row.Date = NormalizeDate(d)
	}
	return row, true
}

// convertHeuristicRecord handles headerless sheets: the first cell that
// normalizes as a date is the date, the first cell that parses as a
// number is the amount, and the longest remaining text is the
// description.
func convertHeuristicRecord(rec []string) (entity.StatementRow, bool) {
	var row entity.StatementRow
	var found bool
	for _, cell := range rec {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if row.Date == nil {
			if d := NormalizeDate(cell); d != nil {
				row.Date = d
				continue
			}
		}
		if !found {
			if a, ok := parseAmount(cell); ok {
				row.Amount, found = a, true
				continue
			}
		}
		if len(cell) > len(row.Description) {
			row.Description = cell
		}
	}
	if !found {
		return entity.StatementRow{}, false
	}
	return row, true
}

func cellAt(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func isBlankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
