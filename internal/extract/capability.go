package extract

import (
	"context"

	"github.com/medx/lab-extractor/internal/ingest"
)

// Capability is the boundary to the external AI service: given a document
// and the declared output contract, return a structured result or fail
// with a classified error.
type Capability interface {
	// Extract runs full field extraction against one model.
	Extract(ctx context.Context, model string, doc ingest.Payload) (*Result, error)

	// CheckRelevance asks a strict yes/no question: is this a
	// recognizable lab report? Ambiguous answers report true; the
	// downstream extraction carries the stronger validity signal.
	CheckRelevance(ctx context.Context, model string, doc ingest.Payload) (bool, error)
}
