package constants

import "strings"

// Format is the parser family a file is dispatched to.
type Format string

const (
	FormatImage       Format = "IMAGE"
	FormatPDF         Format = "PDF"
	FormatSpreadsheet Format = "SPREADSHEET"
)

// MIMETypeXLS is the legacy binary Excel format, read by a BIFF
// parser rather than the OOXML one.
const MIMETypeXLS = "application/vnd.ms-excel"

// SpreadsheetMIMETypes holds the tabular MIME types we accept.
var SpreadsheetMIMETypes = map[string]struct{}{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {}, // xlsx
	MIMETypeXLS:       {},
	"text/csv":        {},
	"application/csv": {},
}

// CSVMIMETypes is the subset of SpreadsheetMIMETypes parsed as CSV.
var CSVMIMETypes = map[string]struct{}{
	"text/csv":        {},
	"application/csv": {},
}

// NormalizeMIME lowercases a MIME type and strips any parameters
// ("text/csv; charset=utf-8" -> "text/csv").
func NormalizeMIME(mime string) string {
	mime = strings.TrimSpace(strings.ToLower(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}
