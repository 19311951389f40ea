package client

import (
	"errors"

	"github.com/famomatic/tvdl/internal/types"
)

var (
	// ErrNoMatchingVariant indicates the requested bitrate is not offered.
	ErrNoMatchingVariant = types.ErrNoMatchingVariant
	// ErrFileExists indicates the output path exists and overwrite was not requested.
	ErrFileExists = types.ErrFileExists
	// ErrCancelled indicates cooperative cancellation at a segment boundary.
	ErrCancelled = types.ErrCancelled
	// ErrJobStarted indicates Start was called on a job that already ran.
	ErrJobStarted = errors.New("job already started")

	errNilJob = errors.New("nil job")
)

// Typed errors re-exported for errors.As.
type (
	ParseError             = types.ParseError
	NoMatchingVariantError = types.NoMatchingVariantError
	TransportError         = types.TransportError
	RequestTimeoutError    = types.RequestTimeoutError
	DecryptError           = types.DecryptError
	FileExistsError        = types.FileExistsError
	WriteError             = types.WriteError
)

// ErrorCategory is a stable, coarse classification of returned errors.
type ErrorCategory string

const (
	ErrorCategoryNone              ErrorCategory = ""
	ErrorCategoryParse             ErrorCategory = "parse"
	ErrorCategoryNoMatchingVariant ErrorCategory = "no_matching_variant"
	ErrorCategoryTransport         ErrorCategory = "transport"
	ErrorCategoryTimeout           ErrorCategory = "timeout"
	ErrorCategoryDecrypt           ErrorCategory = "decrypt"
	ErrorCategoryFileExists        ErrorCategory = "file_exists"
	ErrorCategoryCancelled         ErrorCategory = "cancelled"
	ErrorCategoryWrite             ErrorCategory = "write"
	ErrorCategoryUnknown           ErrorCategory = "unknown"
)

// ClassifyError maps err to its category.
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	var (
		parseErr   *types.ParseError
		timeoutErr *types.RequestTimeoutError
		transErr   *types.TransportError
		decryptErr *types.DecryptError
		writeErr   *types.WriteError
	)
	switch {
	case errors.Is(err, types.ErrCancelled):
		return ErrorCategoryCancelled
	case errors.Is(err, types.ErrFileExists):
		return ErrorCategoryFileExists
	case errors.Is(err, types.ErrNoMatchingVariant):
		return ErrorCategoryNoMatchingVariant
	case errors.As(err, &parseErr):
		return ErrorCategoryParse
	case errors.As(err, &timeoutErr):
		return ErrorCategoryTimeout
	case errors.As(err, &transErr):
		return ErrorCategoryTransport
	case errors.As(err, &decryptErr):
		return ErrorCategoryDecrypt
	case errors.As(err, &writeErr):
		return ErrorCategoryWrite
	default:
		return ErrorCategoryUnknown
	}
}

// IsRetryable reports whether a caller-level retry could succeed: timeouts
// and transport failures qualify, everything else is permanent.
func IsRetryable(err error) bool {
	switch ClassifyError(err) {
	case ErrorCategoryTimeout, ErrorCategoryTransport:
		return true
	default:
		return false
	}
}
