// Package classify defines the classification boundary and the
// validator that turns raw, untrusted model output into a result
// satisfying the hard cardinality rules.
package classify

import (
	"context"

	"github.com/phrazzld/classifier-api/internal/domain"
	"github.com/phrazzld/classifier-api/internal/tagcache"
)

// Classifier is the opaque AI capability: given extracted document
// text and the snapshot describing the available tags, it returns an
// ordered set of raw candidate tags. Implementations must honor the
// caller's context for timeout and cancellation.
type Classifier interface {
	Classify(ctx context.Context, text string, snap *tagcache.Snapshot) (domain.RawCandidates, error)
}
