package llm

import "context"

// Usage is the token accounting reported by the model provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is the raw outcome of a single model call. No business logic
// lives at this boundary; the parsers hand Text to validation.
type Result struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// VisionModel is the adapter for one image+prompt model call.
type VisionModel interface {
	CallVisionModel(ctx context.Context, image []byte, mimeType, prompt string) (Result, error)
}

// TextModel is the adapter for one text completion model call.
type TextModel interface {
	CallTextModel(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (Result, error)
}
