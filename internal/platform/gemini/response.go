package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/phrazzld/classifier-api/internal/classify"
	"github.com/phrazzld/classifier-api/internal/domain"
)

// responseCandidate is one tag suggestion as the model emits it.
type responseCandidate struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// responseSchema is the JSON shape the prompt instructs the model to
// produce: one array per tag type.
type responseSchema struct {
	Horizon  []responseCandidate `json:"horizon"`
	Practice []responseCandidate `json:"practice"`
	Streams  []responseCandidate `json:"streams"`
	Roles    []responseCandidate `json:"roles"`
	Vendors  []responseCandidate `json:"vendors"`
	Products []responseCandidate `json:"products"`
	Topics   []responseCandidate `json:"topics"`
}

// parseResponse decodes the model's JSON into an ordered candidate set.
// Grouping order is fixed (horizon, practice, then the optional types)
// so the validator's first-listed tie-break is deterministic across
// calls. Candidates with empty text are dropped; the validator judges
// everything else.
func parseResponse(raw []byte) (domain.RawCandidates, error) {
	var schema responseSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", classify.ErrInvalidResponse, err)
	}

	groups := [][]responseCandidate{
		schema.Horizon,
		schema.Practice,
		schema.Streams,
		schema.Roles,
		schema.Vendors,
		schema.Products,
		schema.Topics,
	}

	var candidates domain.RawCandidates
	for _, group := range groups {
		for _, c := range group {
			if c.Text == "" {
				continue
			}
			candidates = append(candidates, domain.RawCandidate{
				Text:       c.Text,
				Confidence: c.Confidence,
			})
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates in response", classify.ErrInvalidResponse)
	}

	return candidates, nil
}
