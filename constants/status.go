package constants

// FileStatus is the canonical status for rows in uploaded_files.
type FileStatus string

// Stable values (store these exact strings in DB).
const (
	FileStatusStored     FileStatus = "stored"     // registered, never parsed
	FileStatusProcessing FileStatus = "processing" // a parse is in flight
	FileStatusCompleted  FileStatus = "completed"  // latest parse produced a summary
	FileStatusFailed     FileStatus = "failed"     // latest parse failed, retryable
)

// DocType tags the canonical payload shape of a parsed summary.
type DocType string

const (
	DocTypeReceipt       DocType = "receipt"
	DocTypeBankStatement DocType = "bank_statement"
)

// TransactionType is the sign class of a durable transaction.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)
