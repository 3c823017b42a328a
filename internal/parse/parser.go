// Package parse turns raw document bytes into canonical parsed
// summaries. Parsers own their prompt templates and drive the
// extraction adapters; all model output passes through the validator
// in normalize.go before anything downstream sees it.
package parse

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/llm"
)

// Input is everything a parser needs about one stored document.
type Input struct {
	FileID   uuid.UUID
	Filename string
	MimeType string
	Data     []byte
}

// Output is a validated canonical payload plus extraction metadata.
type Output struct {
	DocType       constants.DocType
	Payload       json.RawMessage
	Confidence    float32
	ParserVersion string
	Usage         llm.Usage
}

// Parser is a pure function of (document bytes, metadata) -> Output.
// Expected failure modes (empty input, model returning garbage) come
// back as AppError codes; only infrastructure failures (adapter I/O)
// surface as other error values. The lifecycle manager records both as
// a failed parse.
type Parser interface {
	Format() constants.Format
	Version() string
	Parse(ctx context.Context, in Input) (*Output, error)
}
