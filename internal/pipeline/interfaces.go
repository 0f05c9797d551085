package pipeline

import (
	"context"

	"github.com/wpratama/meta-billing-sync/internal/graph"
)

// ActivitySource produces raw activities for an account. *graph.Client is
// the production implementation; tests substitute func-field mocks.
type ActivitySource interface {
	// ProbeVersion resolves a working API version for the account and
	// returns the account details fetched by the probe.
	ProbeVersion(ctx context.Context, accountID string) (*graph.Account, string, error)

	// SelectActivities drains the activities endpoint for the window,
	// trying query strategies in order and keeping only records accepted
	// by inWindow.
	SelectActivities(ctx context.Context, accountID, version string, w graph.Window, inWindow func(graph.RawActivity) bool) []graph.RawActivity
}

// Sink is the persisted tabular store. Implementations must be append-only;
// rows are never mutated or removed by this pipeline.
type Sink interface {
	// ExistingIDs returns the transaction ids already stored, loaded once
	// per run as a read-only snapshot.
	ExistingIDs(ctx context.Context) (map[string]struct{}, error)

	// EnsureCapacity makes a best-effort attempt to reserve room for at
	// least minRows more rows. Failure is non-fatal.
	EnsureCapacity(ctx context.Context, minRows int) error

	// AppendRow appends one row after all existing rows.
	AppendRow(ctx context.Context, row Row) error
}
