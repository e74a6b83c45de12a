package reports

import "context"

// System defines the stored-report operations. The identifier scoping
// history is an opaque, client-generated correlation key; it is never
// validated here.
type System interface {
	// Append files a new report under the identifier, stamped with the
	// current time. Reports accumulate; nothing is overwritten.
	Append(ctx context.Context, userID string, results any, meta Metadata) (*StoredReport, error)

	// History returns the identifier's reports ordered newest-first.
	// An identifier with no reports yields ErrNoHistory.
	History(ctx context.Context, userID string) ([]StoredReport, error)
}
