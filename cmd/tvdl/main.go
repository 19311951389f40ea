package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/famomatic/tvdl/client"
	"github.com/famomatic/tvdl/internal/cli"
	"github.com/famomatic/tvdl/internal/metrics"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitCancelled = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	opts, err := cli.ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	cfg, err := cli.ToClientConfig(opts)
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return exitUsage
	}
	cfg.Logger = client.NewZerologLogger(logger)

	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		rec, err := metrics.NewRecorder(reg)
		if err != nil {
			logger.Error().Err(err).Msg("metrics registration failed")
			return exitFailure
		}
		cfg.Metrics = rec
		srv := serveMetrics(opts.MetricsAddr, reg, logger)
		defer srv.Close()
	}

	d := client.New(cfg)

	var bar *progressbar.ProgressBar
	jobOpts := []client.JobOption{}
	if !opts.NoProgress {
		jobOpts = append(jobOpts,
			client.WithStartFunc(func(filename string, total int) {
				bar = newProgressBar(filename, total)
			}),
			client.WithProgressFunc(func(segments int, _ int64) {
				if bar != nil {
					_ = bar.Set(segments)
				}
			}),
		)
	}

	job, err := d.NewJob(opts.Episode(), opts.Bitrate, opts.OutputDir, opts.Filename, opts.Overwrite, jobOpts...)
	if err != nil {
		logger.Error().Err(err).Msg("cannot prepare download")
		return exitFailure
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	watchSignals(ctx, job, stop, logger)

	logger.Info().Str("output", job.OutputPath()).Int("bitrate", opts.Bitrate).Msg("starting download")
	res, err := d.Start(ctx, job)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	return report(logger, res, err)
}

// watchSignals cancels the job cooperatively on the first interrupt and
// aborts in-flight requests on the second.
func watchSignals(ctx context.Context, job *client.Job, abort context.CancelFunc, logger zerolog.Logger) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			logger.Warn().Msg("interrupt received, stopping after the current segment")
			job.Cancel()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigs:
			abort()
		case <-ctx.Done():
		}
	}()
}

func newProgressBar(filename string, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(filename),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	return srv
}

func report(logger zerolog.Logger, res *client.Result, err error) int {
	code := exitCode(err)
	if res == nil {
		logger.Error().Err(err).Msg("download failed")
		return code
	}
	ev := logger.Info()
	switch code {
	case exitOK:
	case exitCancelled:
		ev = logger.Warn()
	default:
		ev = logger.Error().Err(err).Str("category", string(client.ClassifyError(err)))
	}
	ev.Str("path", res.OutputPath).
		Str("status", res.Status.String()).
		Int("segments", res.Segments).
		Int("total", res.TotalSegments).
		Int64("bytes", res.Bytes).
		Msg("download finished")
	return code
}

func exitCode(err error) int {
	switch client.ClassifyError(err) {
	case client.ErrorCategoryNone:
		return exitOK
	case client.ErrorCategoryCancelled:
		return exitCancelled
	default:
		return exitFailure
	}
}
