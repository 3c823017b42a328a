package parse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/common"
	"github.com/finparse-io/docinbox/internal/llm"
)

const pdfParserVersion = "pdf-v1"

// MaxDocumentChars bounds how much extracted text goes to the model.
// Truncation is lossy by design and is surfaced via lower confidence,
// not as an error.
const MaxDocumentChars = 50_000

const truncationMarker = "\n\n[document truncated]"

// truncationPenalty scales the confidence of summaries parsed from
// truncated text.
const truncationPenalty = 0.75

// TextExtractor is the PDF-to-text step that runs before the model.
type TextExtractor interface {
	Text(ctx context.Context, pdf []byte) (string, error)
}

// FitzExtractor extracts text with MuPDF (go-fitz).
type FitzExtractor struct{}

func (FitzExtractor) Text(_ context.Context, pdf []byte) (string, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i+1, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// PDFParser extracts the document text, bounds it, and sends it to the
// text adapter with a fixed system prompt.
type PDFParser struct {
	extractor TextExtractor
	model     llm.TextModel
	maxTokens int
	logger    *slog.Logger
}

func NewPDFParser(extractor TextExtractor, model llm.TextModel, maxTokens int, logger *slog.Logger) *PDFParser {
	if extractor == nil {
		extractor = FitzExtractor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFParser{extractor: extractor, model: model, maxTokens: maxTokens, logger: logger}
}

func (p *PDFParser) Format() constants.Format { return constants.FormatPDF }
func (p *PDFParser) Version() string          { return pdfParserVersion }

func (p *PDFParser) Parse(ctx context.Context, in Input) (*Output, error) {
	text, err := p.extractor.Text(ctx, in.Data)
	if err != nil {
		return nil, fmt.Errorf("pdf text extraction: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		// Nothing to send; do not burn a model call.
		return nil, common.NewAppErrorf(common.CodeEmptyDocument, "no text could be extracted from %q", in.Filename)
	}

	truncated := false
	if len(text) > MaxDocumentChars {
		text = text[:MaxDocumentChars] + truncationMarker
		truncated = true
		p.logger.Warn("parse.pdf.truncated", "file_id", in.FileID, "kept_chars", MaxDocumentChars)
	}

	res, err := p.model.CallTextModel(ctx, BuildTextSystemPrompt(), text, p.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("text model call: %w", err)
	}

	out, err := ValidateModelOutput(res.Text)
	if err != nil {
		return nil, err
	}
	if truncated {
		out.Confidence *= truncationPenalty
	}
	out.ParserVersion = pdfParserVersion
	out.Usage = res.Usage

	p.logger.Info("parse.pdf.ok",
		"file_id", in.FileID,
		"doc_type", out.DocType,
		"confidence", out.Confidence,
		"truncated", truncated,
		"tokens_in", res.Usage.InputTokens,
		"tokens_out", res.Usage.OutputTokens,
	)
	return out, nil
}
