package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/famomatic/tvdl/client"
	"github.com/famomatic/tvdl/internal/cookies"
	"github.com/famomatic/tvdl/internal/downloader"
)

// Options holds all command-line options.
type Options struct {
	// Episode
	MediaID          int64
	Title            string
	ShowTitle        string
	SeasonAndEpisode string // --sae
	Bitrate          int    // -b, --bitrate

	// Download / Filesystem
	OutputDir string // -o, --output
	Filename  string // --filename
	Overwrite bool   // --overwrite
	Strip     bool   // --strip-padding

	// Network
	ProxyURL     string
	CookiesFile  string // --cookies
	Endpoint     string // --endpoint
	TimeoutSec   int    // --timeout
	RateLimit    float64
	Retries      int // --retries
	RetrySleepMS int

	// Observability
	MetricsAddr string // --metrics-addr
	Trace       bool   // --trace
	Verbose     bool
	NoProgress  bool
}

// ErrUsage reports invalid or missing arguments.
var ErrUsage = errors.New("usage error")

// ParseFlags parses os.Args, exiting on -h.
func ParseFlags() (Options, error) {
	return Parse(os.Args[1:], os.Stderr)
}

// Parse parses args into Options. Usage is written to out.
func Parse(args []string, out io.Writer) (Options, error) {
	opts := Options{}
	fs := flag.NewFlagSet("tvdl", flag.ContinueOnError)
	fs.SetOutput(out)

	var bitrateShort, bitrateLong int
	var outputShort, outputLong string

	fs.Int64Var(&opts.MediaID, "media", 0, "Media id of the episode")
	fs.StringVar(&opts.Title, "title", "", "Episode title (used for the output filename)")
	fs.StringVar(&opts.ShowTitle, "show", "", "Show title (used for the output filename)")
	fs.StringVar(&opts.SeasonAndEpisode, "sae", "", "Season and episode marker, e.g. S01E02")
	fs.IntVar(&bitrateShort, "b", 0, "Variant bandwidth in bits per second")
	fs.IntVar(&bitrateLong, "bitrate", 0, "Variant bandwidth in bits per second")

	fs.StringVar(&outputShort, "o", ".", "Output directory")
	fs.StringVar(&outputLong, "output", ".", "Output directory")
	fs.StringVar(&opts.Filename, "filename", "", "Output filename (derived from the episode when empty)")
	fs.BoolVar(&opts.Overwrite, "overwrite", false, "Replace an existing output file")
	fs.BoolVar(&opts.Strip, "strip-padding", false, "Remove PKCS#7 padding from decrypted segments")

	fs.StringVar(&opts.ProxyURL, "proxy", "", "Use the specified HTTP/HTTPS/SOCKS proxy")
	fs.StringVar(&opts.CookiesFile, "cookies", "", "Netscape formatted cookies file")
	fs.StringVar(&opts.Endpoint, "endpoint", "", "Playlist lookup endpoint override")
	fs.IntVar(&opts.TimeoutSec, "timeout", 20, "Per-request timeout in seconds")
	fs.Float64Var(&opts.RateLimit, "rate", 0, "Maximum requests per second (0 disables)")
	fs.IntVar(&opts.Retries, "retries", 0, "Retry count for playlist and key requests")
	fs.IntVar(&opts.RetrySleepMS, "retry-sleep-ms", -1, "Retry initial backoff in milliseconds (-1 keeps defaults)")

	fs.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	fs.BoolVar(&opts.Trace, "trace", false, "Wrap HTTP requests with OpenTelemetry instrumentation")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Print debugging information")
	fs.BoolVar(&opts.NoProgress, "no-progress", false, "Do not draw a progress bar")

	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: tvdl -media ID -b BITRATE [OPTIONS]\n\n")
		fmt.Fprintln(out, "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.Bitrate = pickInt(bitrateShort, bitrateLong)
	opts.OutputDir = pickValue(outputShort, outputLong, ".")

	if opts.MediaID <= 0 {
		return opts, fmt.Errorf("%w: -media is required", ErrUsage)
	}
	if opts.Bitrate <= 0 {
		return opts, fmt.Errorf("%w: -b/--bitrate is required", ErrUsage)
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("%w: unexpected arguments %v", ErrUsage, fs.Args())
	}
	return opts, nil
}

func pickValue(v1, v2, def string) string {
	if v1 != def {
		return v1
	}
	if v2 != def {
		return v2
	}
	return def
}

func pickInt(v1, v2 int) int {
	if v1 != 0 {
		return v1
	}
	return v2
}

// Episode returns the episode described by opts.
func (o Options) Episode() client.Episode {
	return client.Episode{
		MediaID:          o.MediaID,
		Title:            o.Title,
		ShowTitle:        o.ShowTitle,
		SeasonAndEpisode: o.SeasonAndEpisode,
	}
}

// ToClientConfig converts Options to client.Config. Logger and Metrics are
// left for the caller.
func ToClientConfig(opts Options) (client.Config, error) {
	cfg := client.Config{
		ProxyURL:         opts.ProxyURL,
		PlaylistEndpoint: strings.TrimSpace(opts.Endpoint),
		RateLimit:        opts.RateLimit,
		StripPadding:     opts.Strip,
	}
	if opts.TimeoutSec > 0 {
		cfg.RequestTimeout = time.Duration(opts.TimeoutSec) * time.Second
	}
	if opts.Retries > 0 {
		cfg.Retry = downloader.RetryConfig{MaxRetries: opts.Retries}
	}
	if opts.RetrySleepMS >= 0 {
		cfg.Retry.InitialBackoff = time.Duration(opts.RetrySleepMS) * time.Millisecond
	}

	if opts.Trace {
		base := http.DefaultTransport
		if proxied := proxyTransport(opts.ProxyURL); proxied != nil {
			base = proxied
		}
		cfg.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(base)}
	}

	if opts.CookiesFile != "" {
		list, err := cookies.LoadFile(opts.CookiesFile)
		if err != nil {
			return cfg, fmt.Errorf("failed to load cookies file: %w", err)
		}
		cfg.Cookies = list
	}
	return cfg, nil
}

func proxyTransport(proxyURL string) http.RoundTripper {
	if strings.TrimSpace(proxyURL) == "" {
		return nil
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil
	}
	t := base.Clone()
	t.Proxy = http.ProxyURL(parsed)
	return t
}
