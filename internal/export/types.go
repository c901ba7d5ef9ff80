// Package export renders decision documents into portable formats. Markdown
// export is the round-trip-safe raw bytes; HTML and PDF are presentation
// renderings derived from them.
package export

import "errors"

// Format is a supported export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

var (
	ErrUnsupportedFormat    = errors.New("unsupported export format")
	ErrPDFDependencyMissing = errors.New("pdf export dependency missing")
)

// Request describes one export.
type Request struct {
	CycleID string
	Title   string
	Content string // markdown bytes, metadata already stripped
	Version int64
	Format  Format
}

// Result is a generated export artifact.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}
