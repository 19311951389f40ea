package client

import (
	"net/http"
	"time"

	"github.com/famomatic/tvdl/internal/downloader"
	"github.com/famomatic/tvdl/internal/metrics"
)

// DefaultPlaylistEndpoint is the JSON service that maps a media id to its
// master playlist URL.
const DefaultPlaylistEndpoint = "https://services.radio-canada.ca/media/validation/v2/"

// DefaultPlaylistParams are sent with every playlist lookup alongside idMedia.
var DefaultPlaylistParams = map[string]string{
	"appCode":        "toutv",
	"deviceType":     "ipad",
	"connectionType": "wifi",
	"output":         "json",
}

// Config holds configuration for the downloader. It is copied at
// construction; mutating it afterwards has no effect.
type Config struct {
	// HTTPClient is the base client for every request. Each job uses a
	// shallow copy with its own cookie jar. If nil, a client honoring
	// ProxyURL is built.
	HTTPClient *http.Client

	// ProxyURL is the optional proxy URL to use for requests.
	// If HTTPClient is provided, this field is ignored.
	ProxyURL string

	// Headers are sent with every manifest, key and segment request.
	// A default User-Agent is added when none is set.
	Headers http.Header

	// RequestTimeout bounds each request (default 20s).
	RequestTimeout time.Duration

	// RateLimit caps requests per second within a job. Zero disables it.
	RateLimit float64

	// PlaylistEndpoint and PlaylistParams configure the default resolver.
	PlaylistEndpoint string
	PlaylistParams   map[string]string

	// Resolver overrides the playlist URL lookup.
	Resolver PlaylistResolver

	// Cookies seed every job's cookie jar, e.g. from a cookies.txt file.
	Cookies []*http.Cookie

	// Retry wraps manifest and key fetches. Segment fetches are wrapped only
	// when RetrySegments is set; by default a failed segment aborts the job.
	Retry         downloader.RetryConfig
	RetrySegments bool

	// StripPadding removes PKCS#7 padding from every decrypted segment.
	StripPadding bool

	// MaxParallel bounds concurrently running jobs in a Manager (default 2).
	MaxParallel int

	// Logger receives operational messages. Defaults to a no-op logger.
	Logger Logger

	// Metrics records job and segment counters. Nil disables metrics.
	Metrics *metrics.Recorder
}

const defaultMaxParallel = 2

func (c Config) normalize() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = defaultHTTPClient(c.ProxyURL)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = downloader.DefaultRequestTimeout
	}
	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
	c.Headers = downloader.RequestHeaders(c.Headers)
	if c.PlaylistEndpoint == "" {
		c.PlaylistEndpoint = DefaultPlaylistEndpoint
	}
	if c.PlaylistParams == nil {
		c.PlaylistParams = DefaultPlaylistParams
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = defaultMaxParallel
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	return c
}
