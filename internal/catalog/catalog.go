// Package catalog talks to the remote dataset catalog: searching for
// datasets by scan status and patching verification results back. The
// catalog owns all scan state; this package never caches it.
package catalog

import (
	"context"
	"fmt"

	"github.com/lsst-dm/imgcrawl/internal/domain"
)

// QueryUnscanned is the status predicate the crawler searches with.
const QueryUnscanned = "scanStatus = 'UNSCANNED'"

// SearchRequest describes one catalog search.
type SearchRequest struct {
	// Path is the catalog folder to search under.
	Path string
	// Version selects the dataset version ("current" in normal operation).
	Version string
	// Site filters locations; "all" returns every replica.
	Site string
	// Query is the status predicate, e.g. QueryUnscanned.
	Query string
	// MaxResults bounds the result set. Results beyond the bound are not
	// lost; they stay eligible for the next search.
	MaxResults int
}

// Client is the catalog operation surface the crawler depends on.
// Patch must be idempotent: re-applying the same OK result is a no-op
// from the caller's perspective.
type Client interface {
	Search(ctx context.Context, req SearchRequest) ([]domain.Dataset, error)
	Patch(ctx context.Context, datasetPath string, result domain.ScanResult, versionID int, site string) error
}

// TransportError is a cycle-scoped catalog failure: the service was
// unreachable, timed out, or returned a non-success status. It carries
// enough context for an operator to diagnose the call.
type TransportError struct {
	Op         string // "search" or "patch"
	StatusCode int    // zero when the request never completed
	Message    string
	Cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("catalog %s failed: %s (status %d)", e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("catalog %s failed: %s", e.Op, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}
