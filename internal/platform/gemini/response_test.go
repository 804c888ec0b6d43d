package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/classifier-api/internal/classify"
	"github.com/phrazzld/classifier-api/internal/domain"
)

func TestParseResponse(t *testing.T) {
	t.Parallel()

	t.Run("flattens groups in fixed order", func(t *testing.T) {
		t.Parallel()

		raw := []byte(`{
			"horizon": [{"text": "Solve", "confidence": 0.9}],
			"practice": [{"text": "Cybersecurity", "confidence": 0.85}],
			"topics": [{"text": "Zero Trust", "confidence": 0.7}],
			"vendors": [{"text": "Acme Corp", "confidence": 0.6}]
		}`)

		candidates, err := parseResponse(raw)
		require.NoError(t, err)

		// Vendors come before topics regardless of JSON key order.
		assert.Equal(t, domain.RawCandidates{
			{Text: "Solve", Confidence: 0.9},
			{Text: "Cybersecurity", Confidence: 0.85},
			{Text: "Acme Corp", Confidence: 0.6},
			{Text: "Zero Trust", Confidence: 0.7},
		}, candidates)
	})

	t.Run("drops empty text entries", func(t *testing.T) {
		t.Parallel()

		raw := []byte(`{
			"horizon": [{"text": "", "confidence": 0.9}, {"text": "Plan", "confidence": 0.8}],
			"practice": [{"text": "Data & AI", "confidence": 0.75}]
		}`)

		candidates, err := parseResponse(raw)
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		assert.Equal(t, "Plan", candidates[0].Text)
	})

	t.Run("preserves in-group order", func(t *testing.T) {
		t.Parallel()

		raw := []byte(`{
			"horizon": [
				{"text": "Explore", "confidence": 0.5},
				{"text": "Solve", "confidence": 0.5}
			]
		}`)

		candidates, err := parseResponse(raw)
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		assert.Equal(t, "Explore", candidates[0].Text)
		assert.Equal(t, "Solve", candidates[1].Text)
	})

	t.Run("malformed JSON is an invalid response", func(t *testing.T) {
		t.Parallel()

		_, err := parseResponse([]byte(`{"horizon": [`))
		assert.ErrorIs(t, err, classify.ErrInvalidResponse)
	})

	t.Run("empty candidate set is an invalid response", func(t *testing.T) {
		t.Parallel()

		_, err := parseResponse([]byte(`{"horizon": [], "practice": []}`))
		assert.ErrorIs(t, err, classify.ErrInvalidResponse)
	})
}
