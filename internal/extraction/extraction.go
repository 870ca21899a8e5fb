// Package extraction defines the external extraction collaborator that
// turns a document into positioned raw tokens.
package extraction

import (
	"context"
	"errors"

	"github.com/finbase/receipt-insights/internal/token"
)

// ErrFailed is returned when the extraction collaborator could not
// process the document.
var ErrFailed = errors.New("extraction failed")

// ErrTimeout is returned when the caller-supplied deadline expired during
// extraction. It is recoverable: the pipeline stays at its last
// successful state for retry.
var ErrTimeout = errors.New("extraction timed out")

// Document is one submitted receipt document.
type Document struct {
	// SourceRef points at the originating upload (local path or GCS URI)
	// and is carried onto the assembled receipt.
	SourceRef string `json:"source_ref"`
	MIMEType  string `json:"mime_type"`
	Data      []byte `json:"-"`
}

// Extractor yields raw tokens with positions for a document. The core
// consumes this output; OCR itself happens behind this interface.
type Extractor interface {
	Extract(ctx context.Context, doc Document) ([]token.RawToken, error)
}
