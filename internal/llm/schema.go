package llm

// BuildReceiptPayloadSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// It is the strict gate for receipt-shaped model output: a receipt is a
// single transaction, so unlike bank statements there is no row-level
// tolerance to degrade into.
func BuildReceiptPayloadSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"mainTransaction"},
		"properties": map[string]any{
			"documentType": map[string]any{"type": "string"},
			"currency":     map[string]any{"type": "string"},
			"mainTransaction": map[string]any{
				"type":     "object",
				"required": []string{"merchant", "amount"},
				"properties": map[string]any{
					"merchant":      map[string]any{"type": "string", "minLength": 1},
					"amount":        map[string]any{"type": []string{"number", "string"}},
					"date":          map[string]any{"type": []string{"string", "null"}},
					"categoryGuess": map[string]any{"type": []string{"string", "null"}},
					"notes":         map[string]any{"type": []string{"string", "null"}},
				},
			},
		},
	}
}
