package parse

import (
	"strings"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/common"
)

// Classify maps a MIME type to a parser format. The mapping is fixed
// and total: anything not matched is rejected before any lifecycle
// transition happens, so unsupported files never reach processing.
func Classify(mimeType string) (constants.Format, error) {
	mime := constants.NormalizeMIME(mimeType)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return constants.FormatImage, nil
	case mime == "application/pdf":
		return constants.FormatPDF, nil
	default:
		if _, ok := constants.SpreadsheetMIMETypes[mime]; ok {
			return constants.FormatSpreadsheet, nil
		}
		return "", common.NewAppErrorf(common.CodeUnsupportedMimeType, "unsupported mime type %q", mimeType)
	}
}

// Registry holds one parser per format and dispatches by MIME type.
type Registry map[constants.Format]Parser

// ForMIME returns the parser responsible for the given MIME type.
func (r Registry) ForMIME(mimeType string) (Parser, error) {
	format, err := Classify(mimeType)
	if err != nil {
		return nil, err
	}
	p, ok := r[format]
	if !ok {
		return nil, common.NewAppErrorf(common.CodeUnsupportedMimeType, "no parser registered for format %s", format)
	}
	return p, nil
}
