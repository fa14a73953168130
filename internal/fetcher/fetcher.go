// Package fetcher downloads remote catalog responses and product assets over
// HTTP with retry, per-host rate limiting, and crash-safe file placement.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Get fetches the URL and returns the response body.
	Get(ctx context.Context, url string) (io.ReadCloser, error)

	// FetchToFile streams the URL to a temporary sibling of path and renames
	// it into place only on full success, so an interrupted download never
	// leaves a partial file at the final path. Returns bytes written.
	FetchToFile(ctx context.Context, url string, path string) (int64, error)
}
