// Package extract turns uploaded documents into plain text for
// classification.
package extract

import (
	"context"
	"errors"
	"strings"
)

// MinTextLength is the minimum number of characters a document must
// yield to be classifiable. Shorter extractions fail the job with a
// no-text error rather than producing a low-quality classification.
const MinTextLength = 50

var (
	// ErrUnsupportedFormat is returned when the document's MIME type has
	// no registered extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrNoText is returned when extraction succeeds mechanically but
	// yields too little text to classify.
	ErrNoText = errors.New("document contains insufficient extractable text")
)

// SupportedMIMETypes lists every document format accepted at submission
// time, whether or not the binary formats have an extractor wired in
// this build.
var SupportedMIMETypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"text/plain": true,
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// Extractor converts raw document bytes into classifiable text.
type Extractor interface {
	// Extract returns the document's text. It returns
	// ErrUnsupportedFormat for MIME types it cannot handle and ErrNoText
	// when the result falls short of MinTextLength.
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// ValidateText checks that extracted text is long enough to classify.
func ValidateText(text string) error {
	if len(strings.TrimSpace(text)) < MinTextLength {
		return ErrNoText
	}
	return nil
}
