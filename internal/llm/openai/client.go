package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finparse-io/docinbox/internal/llm"
)

// chatResponse is the subset of the chat/completions response we read.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// CallTextModel implements llm.TextModel over chat/completions.
func (c *Client) CallTextModel(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (llm.Result, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.text.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"system_len", len(systemPrompt),
		"user_len", len(userPrompt),
		"max_tokens", maxTokens,
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	if maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}

	return c.send(ctx, rid, start, body)
}

// CallVisionModel implements llm.VisionModel over chat/completions
// using an inline data-URL image part.
func (c *Client) CallVisionModel(ctx context.Context, image []byte, mimeType, prompt string) (llm.Result, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.vision.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"image_bytes", len(image),
		"mime_type", mimeType,
	)

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
				},
			},
		},
	}

	return c.send(ctx, rid, start, body)
}

func (c *Client) send(ctx context.Context, rid string, start time.Time, body map[string]any) (llm.Result, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, _, err := c.caller.PostJSON(ctx, endpoint, body, headers)
	if err != nil {
		c.logger.Error("llm.call.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Result{}, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.call.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Result{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.call.no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Result{}, fmt.Errorf("no choices in openai response")
	}

	res := llm.Result{
		Text: strings.TrimSpace(cc.Choices[0].Message.Content),
		Usage: llm.Usage{
			InputTokens:  cc.Usage.PromptTokens,
			OutputTokens: cc.Usage.CompletionTokens,
		},
	}
	c.logger.Info("llm.call.ok",
		"req_id", rid,
		"text_len", len(res.Text),
		"tokens_in", res.Usage.InputTokens,
		"tokens_out", res.Usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
