package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/famomatic/tvdl/internal/downloader"
	"github.com/famomatic/tvdl/internal/m3u8"
	"github.com/famomatic/tvdl/internal/metrics"
	"github.com/famomatic/tvdl/internal/selector"
	"github.com/famomatic/tvdl/internal/types"
)

// Downloader creates and runs download jobs. It holds no per-job state and
// is safe for concurrent use by independent jobs.
type Downloader struct {
	config   Config
	resolver PlaylistResolver
}

// New creates a new Downloader with the given configuration.
func New(config Config) *Downloader {
	config = config.normalize()
	resolver := config.Resolver
	if resolver == nil {
		resolver = &JSONResolver{
			Endpoint: config.PlaylistEndpoint,
			Params:   config.PlaylistParams,
			Metrics:  config.Metrics,
		}
	}
	return &Downloader{config: config, resolver: resolver}
}

// Config returns the normalized configuration.
func (d *Downloader) Config() Config {
	return d.config
}

// JobOption customizes a job created by NewJob.
type JobOption func(*Job)

// WithStartFunc registers the start notification.
func WithStartFunc(fn StartFunc) JobOption {
	return func(j *Job) { j.onStart = fn }
}

// WithProgressFunc registers the per-segment progress notification.
func WithProgressFunc(fn ProgressFunc) JobOption {
	return func(j *Job) { j.onProgress = fn }
}

// Job is the state of one download. A job runs at most once.
type Job struct {
	id        string
	episode   Episode
	bitrate   int
	outputDir string
	filename  string
	overwrite bool

	onStart    StartFunc
	onProgress ProgressFunc

	started   atomic.Bool
	cancelled atomic.Bool

	mu       sync.RWMutex
	status   JobStatus
	total    int
	segments int
	bytes    int64
}

// NewJob prepares a job. An empty filename is derived from the episode and
// bitrate. outputDir is created when missing; an existing directory is not
// an error.
func (d *Downloader) NewJob(episode Episode, bitrate int, outputDir, filename string, overwrite bool, opts ...JobOption) (*Job, error) {
	if bitrate <= 0 {
		return nil, fmt.Errorf("invalid bitrate %d", bitrate)
	}
	if strings.TrimSpace(outputDir) == "" {
		outputDir = "."
	}
	if filename == "" {
		filename = GenerateFilename(episode, bitrate)
	}
	if filepath.Base(filename) != filename {
		return nil, fmt.Errorf("filename %q must not contain a path separator", filename)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, &types.WriteError{Path: outputDir, Err: err}
	}

	job := &Job{
		id:        uuid.NewString(),
		episode:   episode,
		bitrate:   bitrate,
		outputDir: outputDir,
		filename:  filename,
		overwrite: overwrite,
		status:    JobStatusPending,
	}
	for _, opt := range opts {
		opt(job)
	}
	return job, nil
}

// ID returns the job's unique identifier.
func (j *Job) ID() string { return j.id }

// Episode returns the episode the job downloads.
func (j *Job) Episode() Episode { return j.episode }

// Bitrate returns the requested variant bandwidth.
func (j *Job) Bitrate() int { return j.bitrate }

func (j *Job) Filename() string  { return j.filename }
func (j *Job) OutputDir() string { return j.outputDir }

// OutputPath returns the resolved output file path.
func (j *Job) OutputPath() string {
	return filepath.Join(j.outputDir, j.filename)
}

// Cancel requests cooperative cancellation. It takes effect before the next
// segment; the segment in flight completes first. Cancel is idempotent.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (j *Job) Cancelled() bool {
	return j.cancelled.Load()
}

// Status returns the current lifecycle state.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Progress returns completed segments, the total segment count (0 until
// known) and bytes written.
func (j *Job) Progress() (segments, total int, bytes int64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.segments, j.total, j.bytes
}

func (j *Job) setStatus(s JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// Cancel cancels job. See Job.Cancel.
func (d *Downloader) Cancel(job *Job) {
	if job != nil {
		job.Cancel()
	}
}

// jobObserver receives notifications in addition to the job's own callbacks.
type jobObserver struct {
	onStart    StartFunc
	onProgress ProgressFunc
}

// Start runs job to completion on the calling goroutine. The returned Result
// is never nil, even on error; on cancellation its status is cancelled and
// the error wraps ErrCancelled. Partial output is left on disk.
func (d *Downloader) Start(ctx context.Context, job *Job) (*Result, error) {
	return d.start(ctx, job, jobObserver{})
}

func (d *Downloader) start(ctx context.Context, job *Job, obs jobObserver) (*Result, error) {
	if job == nil {
		return nil, errNilJob
	}
	if !job.started.CompareAndSwap(false, true) {
		return &Result{JobID: job.id, OutputPath: job.OutputPath(), Status: job.Status(), Bitrate: job.bitrate}, ErrJobStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log := withJobFields(d.config.Logger, job.id, job.episode.MediaID)
	res := &Result{
		JobID:      job.id,
		OutputPath: job.OutputPath(),
		Status:     JobStatusFailed,
		Bitrate:    job.bitrate,
	}
	job.setStatus(JobStatusStarting)

	err := d.run(ctx, job, obs, log, res)
	switch {
	case err == nil:
		res.Status = JobStatusCompleted
		log.Infof("download completed: %s (%d segments, %d bytes)", res.OutputPath, res.Segments, res.Bytes)
	case errors.Is(err, ErrCancelled):
		res.Status = JobStatusCancelled
		log.Infof("download cancelled after %d of %d segments", res.Segments, res.TotalSegments)
	default:
		res.Status = JobStatusFailed
		log.Warnf("download failed (%s): %v", ClassifyError(err), err)
	}
	job.setStatus(res.Status)
	d.config.Metrics.JobFinished(string(res.Status))
	return res, err
}

func (d *Downloader) run(ctx context.Context, job *Job, obs jobObserver, log Logger, res *Result) (err error) {
	path := res.OutputPath
	if !job.overwrite {
		if _, err := os.Stat(path); err == nil {
			return &types.FileExistsError{Path: path}
		}
	}
	if job.Cancelled() {
		return ErrCancelled
	}

	httpClient := jobHTTPClient(d.config.HTTPClient, d.config.Cookies)
	base := downloader.NewHTTPFetcher(httpClient, d.config.Headers, d.config.RequestTimeout, d.config.RateLimit)
	control := downloader.Retrying(base, d.config.Retry)
	segmentFetcher := downloader.Fetcher(base)
	if d.config.RetrySegments {
		segmentFetcher = control
	}

	masterURL, err := d.resolver.ResolvePlaylist(ctx, control, job.episode)
	if err != nil {
		return err
	}
	log.Debugf("master playlist: %s", masterURL)

	master, err := d.fetchPlaylist(ctx, control, masterURL)
	if err != nil {
		return err
	}
	variant, err := selector.Select(master.Variants, job.bitrate)
	if err != nil {
		return err
	}
	log.Debugf("selected variant %d: %s", variant.Bandwidth, variant.URI)

	media, err := d.fetchPlaylist(ctx, control, variant.URI)
	if err != nil {
		return err
	}
	if len(media.Segments) == 0 {
		return &types.ParseError{Text: variant.URI, Reason: "media playlist has no segments"}
	}

	var key []byte
	if keys := media.Segments.KeyURIs(); len(keys) > 0 {
		if len(keys) > 1 {
			log.Warnf("playlist references %d keys, using %s for every segment", len(keys), keys[0])
		}
		started := time.Now()
		key, err = control.Fetch(ctx, keys[0])
		d.config.Metrics.ObserveFetch(metrics.FetchKey, time.Since(started))
		if err != nil {
			return err
		}
		if len(key) != downloader.KeySize {
			return &types.DecryptError{Reason: fmt.Sprintf("key is %d bytes, want %d", len(key), downloader.KeySize)}
		}
	}

	file, err := openOutput(path, job.overwrite)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = &types.WriteError{Path: path, Err: cerr}
		}
	}()

	total := len(media.Segments)
	res.TotalSegments = total
	job.mu.Lock()
	job.total = total
	job.status = JobStatusDownloading
	job.mu.Unlock()

	if job.onStart != nil {
		job.onStart(job.filename, total)
	}
	if obs.onStart != nil {
		obs.onStart(job.filename, total)
	}
	progress := func(segments int, bytes int64) {
		job.mu.Lock()
		job.segments = segments
		job.bytes = bytes
		job.mu.Unlock()
		if job.onProgress != nil {
			job.onProgress(segments, bytes)
		}
		if obs.onProgress != nil {
			obs.onProgress(segments, bytes)
		}
	}
	progress(0, 0)

	pipeline := &downloader.Pipeline{
		Fetcher:      segmentFetcher,
		StripPadding: d.config.StripPadding,
		Metrics:      d.config.Metrics,
	}
	out, runErr := pipeline.Run(ctx, media.Segments, key, file, progress, &job.cancelled)
	res.Segments = out.Segments
	res.Bytes = out.Bytes
	return runErr
}

func (d *Downloader) fetchPlaylist(ctx context.Context, f downloader.Fetcher, rawURL string) (*m3u8.Playlist, error) {
	started := time.Now()
	body, err := f.Fetch(ctx, rawURL)
	d.config.Metrics.ObserveFetch(metrics.FetchManifest, time.Since(started))
	if err != nil {
		return nil, err
	}
	return m3u8.Parse(string(body), rawURL)
}

// openOutput creates path exclusively unless overwrite is set, so a file
// appearing after the pre-flight check is still reported as existing.
func openOutput(path string, overwrite bool) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, &types.FileExistsError{Path: path}
		}
		return nil, &types.WriteError{Path: path, Err: err}
	}
	return f, nil
}
