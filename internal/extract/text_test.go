package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextExtractor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := NewTextExtractor()
	longText := strings.Repeat("the quick brown fox jumps over the lazy dog ", 3)

	t.Run("plain text passes through", func(t *testing.T) {
		t.Parallel()

		got, err := e.Extract(ctx, []byte("  "+longText+"  "), "text/plain")
		require.NoError(t, err)
		assert.Equal(t, strings.TrimSpace(longText), got)
	})

	t.Run("charset parameter is tolerated", func(t *testing.T) {
		t.Parallel()

		_, err := e.Extract(ctx, []byte(longText), "text/plain; charset=utf-8")
		assert.NoError(t, err)
	})

	t.Run("BOM is stripped", func(t *testing.T) {
		t.Parallel()

		data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(longText)...)
		got, err := e.Extract(ctx, data, "text/plain")
		require.NoError(t, err)
		assert.Equal(t, strings.TrimSpace(longText), got)
	})

	t.Run("binary formats are rejected", func(t *testing.T) {
		t.Parallel()

		_, err := e.Extract(ctx, []byte("%PDF-1.7"), "application/pdf")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("short documents yield no text", func(t *testing.T) {
		t.Parallel()

		_, err := e.Extract(ctx, []byte("too short"), "text/plain")
		assert.ErrorIs(t, err, ErrNoText)
	})

	t.Run("invalid utf8 yields no text", func(t *testing.T) {
		t.Parallel()

		_, err := e.Extract(ctx, []byte{0xFF, 0xFE, 0x00, 0x01}, "text/plain")
		assert.ErrorIs(t, err, ErrNoText)
	})
}

func TestValidateText(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, ValidateText(strings.Repeat(" ", 100)), ErrNoText)
	assert.ErrorIs(t, ValidateText("short"), ErrNoText)
	assert.NoError(t, ValidateText(strings.Repeat("a", MinTextLength)))
}
