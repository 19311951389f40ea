package downloader

import "context"

// Fetcher retrieves the full body of one HTTP resource.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return f(ctx, rawURL)
}

// ProgressFunc receives cumulative counters after every appended segment.
// It runs on the pipeline goroutine and must return promptly.
type ProgressFunc func(segmentsCompleted int, totalBytes int64)

// CancelFlag is polled before each segment. *atomic.Bool satisfies it.
type CancelFlag interface {
	Load() bool
}
