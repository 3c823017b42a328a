package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finparse-io/docinbox/constants"
)

// ParsedSummary is the validated extraction result of one parse attempt.
// Immutable once created; a reparse inserts a new row and the most
// recent row wins.
type ParsedSummary struct {
	ID            uuid.UUID          `json:"id"`
	FileID        uuid.UUID          `json:"file_id"`
	DocType       constants.DocType  `json:"doc_type"`
	ParserVersion string             `json:"parser_version"`
	Payload       json.RawMessage    `json:"payload"`
	Confidence    float32            `json:"confidence"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Receipt is the single-transaction canonical payload.
type Receipt struct {
	DocumentType    string    `json:"documentType"`
	Currency        string    `json:"currency"`
	MainTransaction ReceiptTx `json:"mainTransaction"`
}

// ReceiptTx is the one transaction a receipt summarizes. Amount is a
// positive decimal in major units; the sign convention (receipts are
// expenses) is reattached at import time.
type ReceiptTx struct {
	ID            string  `json:"id"` // always "main"
	Date          *string `json:"date"`
	Merchant      string  `json:"merchant"`
	Amount        float64 `json:"amount"`
	CategoryGuess string  `json:"categoryGuess,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// BankStatement is the multi-row canonical payload.
type BankStatement struct {
	DocumentType string           `json:"documentType"`
	Currency     string           `json:"currency"`
	AccountName  string           `json:"accountName,omitempty"`
	Period       *StatementPeriod `json:"statementPeriod,omitempty"`
	Rows         []StatementRow   `json:"rows"`
}

// StatementPeriod is the optional covered date range.
type StatementPeriod struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StatementRow is one transaction candidate inside a bank statement.
// Amount is signed: negative = debit/expense, positive = credit.
type StatementRow struct {
	ID            string  `json:"id"`
	Date          *string `json:"date"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	IsCredit      bool    `json:"isCredit"`
	CategoryGuess string  `json:"categoryGuess,omitempty"`
	RawRow        string  `json:"rawRow,omitempty"`
}

// ReceiptItemID is the fixed item id of a receipt's main transaction.
const ReceiptItemID = "main"

// DecodeReceipt decodes the summary payload as a Receipt.
func (s *ParsedSummary) DecodeReceipt() (*Receipt, error) {
	if s.DocType != constants.DocTypeReceipt {
		return nil, fmt.Errorf("summary %s is %s, not a receipt", s.ID, s.DocType)
	}
	var r Receipt
	if err := json.Unmarshal(s.Payload, &r); err != nil {
		return nil, fmt.Errorf("decode receipt payload: %w", err)
	}
	return &r, nil
}

// DecodeBankStatement decodes the summary payload as a BankStatement.
func (s *ParsedSummary) DecodeBankStatement() (*BankStatement, error) {
	if s.DocType != constants.DocTypeBankStatement {
		return nil, fmt.Errorf("summary %s is %s, not a bank statement", s.ID, s.DocType)
	}
	var b BankStatement
	if err := json.Unmarshal(s.Payload, &b); err != nil {
		return nil, fmt.Errorf("decode bank statement payload: %w", err)
	}
	return &b, nil
}
