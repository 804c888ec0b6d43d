package classify

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/classifier-api/internal/domain"
	"github.com/phrazzld/classifier-api/internal/tagcache"
)

// Validator resolves raw candidate tags against a snapshot and
// enforces the cardinality rules: exactly one Horizon, exactly one
// Practice, everything else optional.
type Validator struct {
	// StrictConfidence rejects out-of-range confidence scores instead
	// of clamping them into [0, 1].
	StrictConfidence bool

	logger *slog.Logger
}

// NewValidator creates a Validator with clamping semantics.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger}
}

// resolved is one candidate that matched a tag in the snapshot.
// Candidates stay in raw input order within each type group, which is
// what makes confidence tie-breaks deterministic.
type resolved struct {
	tag        domain.Tag
	via        domain.MatchVia
	confidence float64
}

// Validate resolves each candidate by name then alias, partitions the
// matches by tag type, and enforces the cardinality rules. Candidates
// that resolve to no tag are dropped silently (logged for
// diagnostics). Missing Horizon or Practice is a validation failure,
// never a silent default.
func (v *Validator) Validate(raw domain.RawCandidates, snap *tagcache.Snapshot) (*domain.ClassificationResult, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{
			Code:    CodeEmptyCandidateSet,
			Message: "classifier returned no candidate tags",
		}
	}

	byType := make(map[domain.TagType][]resolved)
	dropped := 0

	for _, candidate := range raw {
		tag, via, ok := snap.Resolve(candidate.Text)
		if !ok {
			dropped++
			continue
		}
		byType[tag.Type] = append(byType[tag.Type], resolved{
			tag:        tag,
			via:        via,
			confidence: candidate.Confidence,
		})
	}

	if dropped > 0 {
		v.logger.Debug("dropped unresolvable candidates",
			"dropped", dropped,
			"total", len(raw))
	}

	horizon, err := v.selectMandatory(byType[domain.TagTypeHorizon], CodeNoHorizonTag, "Horizon")
	if err != nil {
		return nil, err
	}

	practice, err := v.selectMandatory(byType[domain.TagTypePractice], CodeNoPracticeTag, "Practice")
	if err != nil {
		return nil, err
	}

	result := &domain.ClassificationResult{
		Horizon:  *horizon,
		Practice: *practice,
	}

	if result.Streams, err = v.collect(byType[domain.TagTypeStream]); err != nil {
		return nil, err
	}
	if result.Roles, err = v.collect(byType[domain.TagTypeRole]); err != nil {
		return nil, err
	}
	if result.Vendors, err = v.collect(byType[domain.TagTypeVendor]); err != nil {
		return nil, err
	}
	if result.Products, err = v.collect(byType[domain.TagTypeProduct]); err != nil {
		return nil, err
	}
	if result.Topics, err = v.collect(byType[domain.TagTypeTopic]); err != nil {
		return nil, err
	}

	return result, nil
}

// selectMandatory enforces the exactly-one rule: zero resolved
// candidates is a validation failure; more than one keeps the
// highest-confidence candidate, ties broken by raw input order.
func (v *Validator) selectMandatory(candidates []resolved, failCode, typeName string) (*domain.TagRef, error) {
	if len(candidates) == 0 {
		return nil, &ValidationError{
			Code:    failCode,
			Message: fmt.Sprintf("no valid %s tag resolved from classifier output", typeName),
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.confidence > best.confidence {
			best = c
		}
	}

	ref, err := v.toRef(best)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// collect keeps every resolved candidate of an optional type.
func (v *Validator) collect(candidates []resolved) ([]domain.TagRef, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	refs := make([]domain.TagRef, 0, len(candidates))
	for _, c := range candidates {
		ref, err := v.toRef(c)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (v *Validator) toRef(c resolved) (domain.TagRef, error) {
	confidence := c.confidence
	if confidence < 0 || confidence > 1 {
		if v.StrictConfidence {
			return domain.TagRef{}, &ValidationError{
				Code: CodeConfidenceOutOfRange,
				Message: fmt.Sprintf("confidence %v for tag %q is outside [0, 1]",
					c.confidence, c.tag.Name),
			}
		}
		if confidence < 0 {
			confidence = 0
		} else {
			confidence = 1
		}
	}

	return domain.TagRef{
		Name:       c.tag.Name,
		ShortForm:  c.tag.ShortForm,
		Confidence: confidence,
		MatchedVia: c.via,
	}, nil
}
