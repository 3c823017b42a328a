package parse

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/common"
	"github.com/finparse-io/docinbox/internal/entity"
	"github.com/finparse-io/docinbox/internal/llm"
)

// MaxAbsAmount guards against misread decimal points: any row whose
// absolute amount exceeds this is treated as malformed.
const MaxAbsAmount = 1_000_000_000

const snippetLen = 200

var (
	reISODate   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)
	reSlashDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})`)
)

// fallbackDateLayouts are tried, in order, when neither the ISO prefix
// nor the M/D/YYYY slash form matches.
var fallbackDateLayouts = []string{
	"2006-01-02 15:04:05",
	"02-01-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

// NormalizeDate turns a model-supplied date string into YYYY-MM-DD, or
// nil when it cannot be understood. A bad date never fails a row.
func NormalizeDate(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if m := reISODate.FindStringSubmatch(s); m != nil {
		if _, err := time.Parse("2006-01-02", m[1]); err == nil {
			d := m[1]
			return &d
		}
		return nil
	}
	if m := reSlashDate.FindStringSubmatch(s); m != nil {
		t, err := time.Parse("1/2/2006", fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3]))
		if err != nil {
			return nil
		}
		d := t.Format("2006-01-02")
		return &d
	}
	for _, layout := range fallbackDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := t.Format("2006-01-02")
			return &d
		}
	}
	return nil
}

// parseAmount accepts a JSON number or a string amount (possibly with
// currency symbols and thousands separators) and returns major units.
func parseAmount(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return checkAmount(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return checkAmount(f)
	case string:
		s := strings.TrimSpace(t)
		for _, sym := range []string{"$", "€", "£", "¥", ","} {
			s = strings.ReplaceAll(s, sym, "")
		}
		if s == "" {
			return 0, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, false
		}
		return checkAmount(d.InexactFloat64())
	default:
		return 0, false
	}
}

func checkAmount(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if math.Abs(f) > MaxAbsAmount {
		return 0, false
	}
	return f, true
}

// CleanModelJSON strips Markdown fences and surrounding junk that
// models emit despite instructions, keeping the outermost JSON value.
func CleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

// ValidateModelOutput converts the model's untrusted text into one of
// the two canonical payload shapes. This is the single trust boundary:
// downstream code never re-checks shapes.
//
// BankStatement is the default shape and is row-tolerant: one garbled
// OCR row among dozens of good ones must not discard the document.
// Receipt is a single transaction, so it is validated strictly.
func ValidateModelOutput(raw string) (*Output, error) {
	clean := CleanModelJSON(raw)

	var doc map[string]any
	if err := json.Unmarshal([]byte(clean), &doc); err != nil {
		return nil, common.NewAppError(common.CodeInvalidModelOutput,
			fmt.Sprintf("model output is not valid JSON: %s", snippet(raw)), err)
	}

	docType, _ := doc["documentType"].(string)
	switch strings.ToLower(strings.TrimSpace(docType)) {
	case "receipt", "invoice":
		return validateReceipt(clean, doc)
	default:
		return validateBankStatement(doc)
	}
}

func validateReceipt(clean string, doc map[string]any) (*Output, error) {
	if err := llm.ValidateJSONAgainstSchema(llm.BuildReceiptPayloadSchema(), []byte(clean)); err != nil {
		return nil, common.NewAppError(common.CodeInvalidModelOutput,
			fmt.Sprintf("receipt payload rejected: %s", snippet(clean)), err)
	}

	main := doc["mainTransaction"].(map[string]any)

	merchant := ""
	if m, ok := main["merchant"].(string); ok {
		merchant = strings.TrimSpace(m)
	}
	if merchant == "" {
		return nil, common.NewAppErrorf(common.CodeInvalidModelOutput,
			"receipt is missing a merchant name: %s", snippet(clean))
	}

	amount, ok := parseAmount(main["amount"])
	if !ok {
		return nil, common.NewAppErrorf(common.CodeInvalidModelOutput,
			"receipt amount is not a finite number: %s", snippet(clean))
	}

	tx := entity.ReceiptTx{
		ID:       entity.ReceiptItemID,
		Merchant: merchant,
		// Receipts are expenses by convention; the sign is reattached
		// by the import reconciler.
		Amount: math.Abs(amount),
	}
	if d, ok := main["date"].(string); ok {
		tx.Date = NormalizeDate(d)
	}
	if c, ok := main["categoryGuess"].(string); ok {
		tx.CategoryGuess = strings.TrimSpace(c)
	}
	if n, ok := main["notes"].(string); ok {
		tx.Notes = strings.TrimSpace(n)
	}

	payload := entity.Receipt{
		DocumentType:    string(constants.DocTypeReceipt),
		Currency:        normalizeCurrency(doc["currency"]),
		MainTransaction: tx,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal receipt payload: %w", err)
	}
	return &Output{
		DocType:    constants.DocTypeReceipt,
		Payload:    b,
		Confidence: 0.9,
	}, nil
}

func validateBankStatement(doc map[string]any) (*Output, error) {
	rowsAny, _ := doc["rows"].([]any)
	if rowsAny == nil {
		// Some models emit "transactions" instead of "rows".
		rowsAny, _ = doc["transactions"].([]any)
	}

	payload := entity.BankStatement{
		DocumentType: string(constants.DocTypeBankStatement),
		Currency:     normalizeCurrency(doc["currency"]),
		Rows:         make([]entity.StatementRow, 0, len(rowsAny)),
	}
	if name, ok := doc["accountName"].(string); ok {
		payload.AccountName = strings.TrimSpace(name)
	}
	if p, ok := doc["statementPeriod"].(map[string]any); ok {
		from, _ := p["from"].(string)
		to, _ := p["to"].(string)
		if from != "" || to != "" {
			payload.Period = &entity.StatementPeriod{From: from, To: to}
		}
	}

	seen := make(map[string]struct{}, len(rowsAny))
	for _, rowAny := range rowsAny {
		obj, ok := rowAny.(map[string]any)
		if !ok {
			continue
		}
		amount, ok := parseAmount(obj["amount"])
		if !ok {
			// Partial extraction is the expected common case, not an
			// error: drop the row, keep the document.
			continue
		}

		row := entity.StatementRow{Amount: amount}
		if d, ok := obj["description"].(string); ok {
			row.Description = strings.TrimSpace(d)
		}
		if d, ok := obj["date"].(string); ok {
			row.Date = NormalizeDate(d)
		}
		if c, ok := obj["isCredit"].(bool); ok {
			row.IsCredit = c
		} else {
			row.IsCredit = amount > 0
		}
		if c, ok := obj["categoryGuess"].(string); ok {
			row.CategoryGuess = strings.TrimSpace(c)
		}
		if r, ok := obj["rawRow"].(string); ok {
			row.RawRow = r
		}

		// Keep a model-supplied id when it is unique within the
		// summary; otherwise assign a sequential fallback. The
		// fallback itself can collide with a model-supplied id, so
		// advance the counter until the slot is free.
		id, _ := obj["id"].(string)
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; id == "" || dup {
			for n := len(payload.Rows) + 1; ; n++ {
				id = fmt.Sprintf("row_%d", n)
				if _, taken := seen[id]; !taken {
					break
				}
			}
		}
		seen[id] = struct{}{}
		row.ID = id

		payload.Rows = append(payload.Rows, row)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal bank statement payload: %w", err)
	}
	return &Output{
		DocType:    constants.DocTypeBankStatement,
		Payload:    b,
		Confidence: rowConfidence(len(payload.Rows), len(rowsAny)),
	}, nil
}

func rowConfidence(kept, total int) float32 {
	if total == 0 {
		return 0.5
	}
	return float32(kept) / float32(total)
}

func normalizeCurrency(v any) string {
	s, _ := v.(string)
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "USD"
	}
	return s
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > snippetLen {
		return s[:snippetLen]
	}
	return s
}
