package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// TextExtractor handles plain-text documents. Binary formats (PDF,
// Office, images) are routed to dedicated extraction backends in
// deployment; this extractor rejects them so misrouted documents fail
// with a stable error instead of garbage text.
type TextExtractor struct{}

// NewTextExtractor creates a TextExtractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

var _ Extractor = (*TextExtractor)(nil)

// Extract decodes the bytes as UTF-8 text, stripping a BOM if present.
func (e *TextExtractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	base := mimeType
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if base != "text/plain" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}

	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: document is not valid UTF-8", ErrNoText)
	}

	text := strings.TrimSpace(string(data))
	if err := ValidateText(text); err != nil {
		return "", err
	}

	return text, nil
}
