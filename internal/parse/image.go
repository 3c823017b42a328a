package parse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/llm"
)

const imageParserVersion = "image-v1"

// ImageParser drives the vision adapter once per image and validates
// the raw output. Images are small enough to parse synchronously in
// the triggering request.
type ImageParser struct {
	vision llm.VisionModel
	logger *slog.Logger
}

func NewImageParser(vision llm.VisionModel, logger *slog.Logger) *ImageParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageParser{vision: vision, logger: logger}
}

func (p *ImageParser) Format() constants.Format { return constants.FormatImage }
func (p *ImageParser) Version() string          { return imageParserVersion }

func (p *ImageParser) Parse(ctx context.Context, in Input) (*Output, error) {
	mime := constants.NormalizeMIME(in.MimeType)
	res, err := p.vision.CallVisionModel(ctx, in.Data, mime, BuildVisionPrompt())
	if err != nil {
		return nil, fmt.Errorf("vision model call: %w", err)
	}

	out, err := ValidateModelOutput(res.Text)
	if err != nil {
		return nil, err
	}
	out.ParserVersion = imageParserVersion
	out.Usage = res.Usage

	p.logger.Info("parse.image.ok",
		"file_id", in.FileID,
		"doc_type", out.DocType,
		"confidence", out.Confidence,
		"tokens_in", res.Usage.InputTokens,
		"tokens_out", res.Usage.OutputTokens,
	)
	return out, nil
}
