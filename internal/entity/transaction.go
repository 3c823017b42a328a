package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/finparse-io/docinbox/constants"
)

// Transaction is a durable transaction created by the import reconciler.
// AmountMinor is signed integer minor units (cents).
type Transaction struct {
	ID          uuid.UUID                 `json:"id"`
	UserID      uuid.UUID                 `json:"user_id"`
	AccountID   uuid.UUID                 `json:"account_id"`
	TxDate      time.Time                 `json:"tx_date"`
	Description string                    `json:"description"`
	AmountMinor int64                     `json:"amount_minor"`
	Currency    string                    `json:"currency"`
	Type        constants.TransactionType `json:"type"`
	Category    *string                   `json:"category,omitempty"`
	Cleared     bool                      `json:"cleared"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// ImportedItem is one row of the append-only import ledger. The
// composite key (FileID, ItemID) prevents a parsed row from producing
// more than one transaction.
type ImportedItem struct {
	FileID        uuid.UUID `json:"file_id"`
	ItemID        string    `json:"item_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
}
