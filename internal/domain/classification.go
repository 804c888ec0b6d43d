package domain

// MatchVia records how a raw candidate was resolved to a canonical tag.
type MatchVia string

// Possible match resolution paths
const (
	MatchPrimary MatchVia = "primary"
	MatchAlias   MatchVia = "alias"
)

// RawCandidate is a single untrusted tag suggestion from the upstream
// classifier: free text plus a confidence score. Order within a
// candidate set is significant; it is the tie-break for cardinality
// enforcement.
type RawCandidate struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// RawCandidates is an ordered set of untrusted classifier suggestions.
type RawCandidates []RawCandidate

// TagRef is a validated reference to a tag in the snapshot the
// classification was checked against.
type TagRef struct {
	Name       string   `json:"name"`
	ShortForm  string   `json:"short_form"`
	Confidence float64  `json:"confidence"`
	MatchedVia MatchVia `json:"matched_via"`
}

// ClassificationResult is the validated outcome of classifying one
// document: exactly one Horizon, exactly one Practice, and zero or
// more tags of every other type.
type ClassificationResult struct {
	Horizon  TagRef   `json:"horizon"`
	Practice TagRef   `json:"practice"`
	Streams  []TagRef `json:"streams"`
	Roles    []TagRef `json:"roles"`
	Vendors  []TagRef `json:"vendors"`
	Products []TagRef `json:"products"`
	Topics   []TagRef `json:"topics"`
}
