package parse

import "strings"

// The prompts pin the model to the canonical payload shapes so the
// validator has a fighting chance. Keep the field list here in sync
// with the entity payload types.

const payloadSchemaPrompt = `Output STRICT JSON only (no comments, no trailing commas, no extra text).
Do NOT wrap the response in code fences. Do NOT use Markdown.

If the document is a single purchase receipt or invoice, return:
{
  "documentType": "receipt",
  "currency": "USD",
  "mainTransaction": {
    "id": "main",
    "date": "YYYY-MM-DD or null",
    "merchant": "merchant name",
    "amount": 12.34,
    "categoryGuess": "short category label",
    "notes": "anything notable"
  }
}

Otherwise treat it as a bank or credit-card statement and return:
{
  "documentType": "bank_statement",
  "currency": "USD",
  "accountName": "account name or omit",
  "statementPeriod": {"from": "YYYY-MM-DD", "to": "YYYY-MM-DD"},
  "rows": [
    {
      "id": "row_1",
      "date": "YYYY-MM-DD or null",
      "description": "transaction description",
      "amount": -25.99,
      "isCredit": false,
      "categoryGuess": "short category label",
      "rawRow": "the original line as seen"
    }
  ]
}

Rules:
- "amount" is a number in major units. Negative = money out (debit),
  positive = money in (credit).
- Use ISO-8601 dates (YYYY-MM-DD). If a date cannot be read, use null.
- Currency must be a 3-letter ISO 4217 code; default to USD if uncertain.
- Include EVERY transaction you can read. Never invent transactions.
- If a value cannot be read, omit the field rather than guessing.`

// BuildVisionPrompt is the fixed prompt the image parser sends with
// the image bytes.
func BuildVisionPrompt() string {
	return strings.Join([]string{
		"You are a financial document parser.",
		"The attached image is a receipt, an invoice, or a screenshot of a bank or credit-card statement.",
		"Extract the transactions it shows.",
		"",
		payloadSchemaPrompt,
	}, "\n")
}

// BuildTextSystemPrompt is the system prompt for text extracted from
// PDFs. The document text itself goes in the user message.
func BuildTextSystemPrompt() string {
	return strings.Join([]string{
		"You are a financial document parser.",
		"The user message contains the plain text of a financial document:",
		"a bank statement, a credit-card statement, a receipt, or an invoice.",
		"The text may be truncated; parse what is present.",
		"Extract the transactions it shows.",
		"",
		payloadSchemaPrompt,
	}, "\n")
}
