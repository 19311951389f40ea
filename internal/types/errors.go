package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoMatchingVariant indicates that no variant has the requested bandwidth.
	ErrNoMatchingVariant = errors.New("no matching variant")

	// ErrFileExists indicates that the output path exists and overwrite was not requested.
	ErrFileExists = errors.New("output file exists")

	// ErrCancelled indicates that cancellation was observed at a segment boundary.
	ErrCancelled = errors.New("download cancelled")
)

// ParseError reports a malformed manifest line.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("manifest parse error line=%d: %s: %q", e.Line, e.Reason, e.Text)
}

// NoMatchingVariantError carries the requested bandwidth and what was offered.
type NoMatchingVariantError struct {
	Bandwidth int
	Available []int
}

func (e *NoMatchingVariantError) Error() string {
	return fmt.Sprintf("no variant with bandwidth=%d bps (available=%v)", e.Bandwidth, e.Available)
}

func (e *NoMatchingVariantError) Unwrap() error { return ErrNoMatchingVariant }

// TransportError indicates a failed HTTP exchange: non-success status,
// connection failure, or an unusable response body.
type TransportError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("http status=%d url=%s", e.StatusCode, e.URL)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport failure url=%s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("transport failure url=%s", e.URL)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RequestTimeoutError indicates a request exceeded its timeout ceiling.
type RequestTimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s url=%s", e.Timeout, e.URL)
}

// DecryptError indicates a segment could not be decrypted.
type DecryptError struct {
	Segment int
	Reason  string
}

func (e *DecryptError) Error() string {
	if e.Segment > 0 {
		return fmt.Sprintf("decrypt segment=%d: %s", e.Segment, e.Reason)
	}
	return "decrypt: " + e.Reason
}

// FileExistsError is returned before any network activity when the output
// path already exists.
type FileExistsError struct {
	Path string
}

func (e *FileExistsError) Error() string {
	return fmt.Sprintf("output file exists: %s", e.Path)
}

func (e *FileExistsError) Unwrap() error { return ErrFileExists }

// WriteError wraps a failure to create or append to the output file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
