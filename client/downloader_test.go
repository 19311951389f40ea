package client

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testEpisode = Episode{MediaID: 42, Title: "Le retour", ShowTitle: "District 31", SeasonAndEpisode: "S01E02"}

func TestStart_DownloadsAndDecryptsInOrder(t *testing.T) {
	fs := newFakeService(t, 4)
	d := New(fs.config())
	dir := t.TempDir()

	var starts []string
	var progress [][2]int64
	job, err := d.NewJob(testEpisode, 1200000, dir, "", false,
		WithStartFunc(func(filename string, total int) {
			starts = append(starts, filename)
			if total != 4 {
				t.Errorf("start total = %d, want 4", total)
			}
		}),
		WithProgressFunc(func(segments int, bytes int64) {
			progress = append(progress, [2]int64{int64(segments), bytes})
		}),
	)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}

	res, err := d.Start(context.Background(), job)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.Status != JobStatusCompleted || res.Segments != 4 || res.TotalSegments != 4 {
		t.Fatalf("result = %+v", res)
	}
	want := fs.plaintext()
	got, err := os.ReadFile(job.OutputPath())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("output mismatch: got %d bytes, want %d", len(got), len(want))
	}
	if res.Bytes != int64(len(want)) {
		t.Fatalf("Bytes = %d, want %d", res.Bytes, len(want))
	}
	if !reflect.DeepEqual(starts, []string{job.Filename()}) {
		t.Fatalf("start notifications = %v", starts)
	}
	if len(progress) != 5 || progress[0] != [2]int64{0, 0} {
		t.Fatalf("progress = %v, want initial (0,0) plus one per segment", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i][0] < progress[i-1][0] || progress[i][1] < progress[i-1][1] {
			t.Fatalf("progress not monotonic: %v", progress)
		}
	}
	if last := progress[len(progress)-1]; last[0] != 4 {
		t.Fatalf("final segments = %d, want 4", last[0])
	}
	if job.Status() != JobStatusCompleted {
		t.Fatalf("Status() = %s", job.Status())
	}
	if segs, total, n := job.Progress(); segs != 4 || total != 4 || n != res.Bytes {
		t.Fatalf("Progress() = %d, %d, %d", segs, total, n)
	}
}

func TestStart_OverwriteGateMakesNoRequests(t *testing.T) {
	fs := newFakeService(t, 2)
	d := New(fs.config())
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.ts")
	if err := os.WriteFile(path, []byte("keep"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	job, err := d.NewJob(testEpisode, 800000, dir, "existing.ts", false)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	res, err := d.Start(context.Background(), job)
	if !errors.Is(err, ErrFileExists) {
		t.Fatalf("Start() error = %v, want ErrFileExists", err)
	}
	var existsErr *FileExistsError
	if !errors.As(err, &existsErr) || existsErr.Path != path {
		t.Fatalf("error = %#v, want FileExistsError for %s", err, path)
	}
	if got := fs.requests.Load(); got != 0 {
		t.Fatalf("requests = %d, want 0", got)
	}
	if res.Status != JobStatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if data, _ := os.ReadFile(path); string(data) != "keep" {
		t.Fatalf("existing file modified: %q", data)
	}
}

func TestStart_OverwriteReplacesFile(t *testing.T) {
	fs := newFakeService(t, 2)
	d := New(fs.config())
	dir := t.TempDir()
	path := filepath.Join(dir, "out.ts")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 4096), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	job, err := d.NewJob(testEpisode, 800000, dir, "out.ts", true)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	if _, err := d.Start(context.Background(), job); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, fs.plaintext()) {
		t.Fatalf("overwritten file has %d bytes, want %d", len(got), len(fs.plaintext()))
	}
}

func TestNewJob_CreatesOutputDirIdempotently(t *testing.T) {
	d := New(Config{})
	dir := filepath.Join(t.TempDir(), "a", "b")
	for i := 0; i < 2; i++ {
		if _, err := d.NewJob(testEpisode, 800000, dir, "", false); err != nil {
			t.Fatalf("NewJob() #%d error = %v", i, err)
		}
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("output dir not created: %v", err)
	}
}

func TestNewJob_Validation(t *testing.T) {
	d := New(Config{})
	if _, err := d.NewJob(testEpisode, 0, t.TempDir(), "", false); err == nil {
		t.Fatalf("NewJob(bitrate=0) error = nil")
	}
	if _, err := d.NewJob(testEpisode, 1, t.TempDir(), "../x.ts", false); err == nil {
		t.Fatalf("NewJob(path filename) error = nil")
	}
	job, err := d.NewJob(testEpisode, 1200000, t.TempDir(), "", false)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	if job.Filename() != "District.31.S01E02.Le.retour.1200kbps.ts" {
		t.Fatalf("Filename() = %q", job.Filename())
	}
	if job.ID() == "" || job.Status() != JobStatusPending {
		t.Fatalf("job = id %q status %s", job.ID(), job.Status())
	}
}

func TestStart_CancelAtSegmentBoundary(t *testing.T) {
	fs := newFakeService(t, 5)
	d := New(fs.config())
	var job *Job
	job, err := d.NewJob(testEpisode, 800000, t.TempDir(), "", false,
		WithProgressFunc(func(segments int, _ int64) {
			if segments == 2 {
				job.Cancel()
			}
		}),
	)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}

	res, err := d.Start(context.Background(), job)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Start() error = %v, want ErrCancelled", err)
	}
	if res.Status != JobStatusCancelled || res.Segments != 2 {
		t.Fatalf("result = %+v, want cancelled after 2 segments", res)
	}
	for i := 3; i <= 5; i++ {
		if n := fs.hits(i); n != 0 {
			t.Fatalf("segment %d fetched %d times after cancel", i, n)
		}
	}
	got, _ := os.ReadFile(job.OutputPath())
	want := append(append([]byte(nil), fs.plain[0]...), fs.plain[1]...)
	if !bytes.Equal(got, want) {
		t.Fatalf("partial output = %d bytes, want %d", len(got), len(want))
	}
	if job.Status() != JobStatusCancelled {
		t.Fatalf("Status() = %s", job.Status())
	}
}

func TestStart_CancelIsIdempotentAndHonoredBeforeStart(t *testing.T) {
	fs := newFakeService(t, 2)
	d := New(fs.config())
	job, err := d.NewJob(testEpisode, 800000, t.TempDir(), "", false)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	d.Cancel(job)
	d.Cancel(job)
	if _, err := d.Start(context.Background(), job); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Start() error = %v, want ErrCancelled", err)
	}
	if got := fs.requests.Load(); got != 0 {
		t.Fatalf("requests = %d, want 0", got)
	}
}

func TestStart_NoMatchingVariant(t *testing.T) {
	fs := newFakeService(t, 2, 800000, 1200000)
	d := New(fs.config())
	job, err := d.NewJob(testEpisode, 1000000, t.TempDir(), "", false)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	_, err = d.Start(context.Background(), job)
	var nm *NoMatchingVariantError
	if !errors.As(err, &nm) {
		t.Fatalf("Start() error = %v, want NoMatchingVariantError", err)
	}
	if !reflect.DeepEqual(nm.Available, []int{800000, 1200000}) {
		t.Fatalf("Available = %v", nm.Available)
	}
	if _, statErr := os.Stat(job.OutputPath()); !os.IsNotExist(statErr) {
		t.Fatalf("output file created on selection failure: %v", statErr)
	}
	if ClassifyError(err) != ErrorCategoryNoMatchingVariant {
		t.Fatalf("ClassifyError() = %s", ClassifyError(err))
	}
}

func TestStart_RequestTimeout(t *testing.T) {
	fs := newFakeService(t, 2)
	fs.segDelay = 300 * time.Millisecond
	cfg := fs.config()
	cfg.RequestTimeout = 50 * time.Millisecond
	d := New(cfg)
	job, err := d.NewJob(testEpisode, 800000, t.TempDir(), "", false)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	res, err := d.Start(context.Background(), job)
	var timeoutErr *RequestTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Start() error = %v, want RequestTimeoutError", err)
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		t.Fatalf("timeout must not be reported as TransportError")
	}
	if res.Status != JobStatusFailed || res.Segments != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestStart_CookiesFollowTheJob(t *testing.T) {
	fs := newFakeService(t, 1)
	d := New(fs.config())
	job, err := d.NewJob(testEpisode, 800000, t.TempDir(), "", false)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	if _, err := d.Start(context.Background(), job); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	fs.mu.Lock()
	seen := append([]string(nil), fs.cookieSeen...)
	fs.mu.Unlock()
	if len(seen) == 0 || !strings.HasPrefix(seen[0], "/master.m3u8=s-42") {
		t.Fatalf("session cookie not replayed: %v", seen)
	}

	// A second job starts with a fresh jar.
	job2, _ := d.NewJob(Episode{MediaID: 7, Title: "x"}, 800000, t.TempDir(), "", false)
	fs.mu.Lock()
	fs.cookieSeen = nil
	fs.mu.Unlock()
	if _, err := d.Start(context.Background(), job2); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, c := range fs.cookieSeen {
		if strings.HasSuffix(c, "=s-42") {
			t.Fatalf("cookie leaked across jobs: %v", fs.cookieSeen)
		}
	}
}

func TestStart_RunsOnlyOnce(t *testing.T) {
	fs := newFakeService(t, 1)
	d := New(fs.config())
	job, _ := d.NewJob(testEpisode, 800000, t.TempDir(), "", false)
	if _, err := d.Start(context.Background(), job); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := d.Start(context.Background(), job); !errors.Is(err, ErrJobStarted) {
		t.Fatalf("second Start() error = %v, want ErrJobStarted", err)
	}
}

func TestStartAsync_DeliversEventsInOrder(t *testing.T) {
	fs := newFakeService(t, 3)
	d := New(fs.config())
	job, _ := d.NewJob(testEpisode, 800000, t.TempDir(), "", false)

	var kinds []EventType
	var last Event
	for ev := range d.StartAsync(context.Background(), job) {
		kinds = append(kinds, ev.Type)
		last = ev
	}
	want := []EventType{EventStart, EventProgress, EventProgress, EventProgress, EventProgress, EventDone}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	if last.Err != nil || last.Result.Status != JobStatusCompleted {
		t.Fatalf("done event = %+v", last)
	}
}

func TestStart_FetchesKeyOnce(t *testing.T) {
	fs := newFakeService(t, 5)
	d := New(fs.config())
	job, _ := d.NewJob(testEpisode, 800000, t.TempDir(), "", false)
	if _, err := d.Start(context.Background(), job); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := fs.keyHits.Load(); got != 1 {
		t.Fatalf("key requests = %d, want 1", got)
	}
	// lookup, master, media, key and one request per segment.
	if got := fs.requests.Load(); got != 4+5 {
		t.Fatalf("requests = %d, want 9", got)
	}
}

func TestStart_MultipleKeysUsesFirstAndWarns(t *testing.T) {
	fs := newFakeService(t, 4)
	fs.rotateKey = true
	var logs bytes.Buffer
	cfg := fs.config()
	cfg.Logger = NewZerologLogger(zerolog.New(&logs))
	d := New(cfg)

	job, _ := d.NewJob(testEpisode, 800000, t.TempDir(), "", false)
	if _, err := d.Start(context.Background(), job); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := fs.keyHits.Load(); got != 1 {
		t.Fatalf("key requests = %d, want 1", got)
	}
	if !strings.Contains(logs.String(), `"level":"warn"`) || !strings.Contains(logs.String(), "references 2 keys") {
		t.Fatalf("missing multiple-key warning in logs: %s", logs.String())
	}
	got, _ := os.ReadFile(job.OutputPath())
	if !bytes.Equal(got, fs.plaintext()) {
		t.Fatalf("output mismatch with first key applied to every segment")
	}
}

func TestStart_NilJob(t *testing.T) {
	d := New(Config{})
	if _, err := d.Start(context.Background(), nil); err == nil {
		t.Fatalf("Start(nil) error = nil")
	}
	var events []Event
	for ev := range d.StartAsync(context.Background(), nil) {
		events = append(events, ev)
	}
	if len(events) != 1 || events[0].Type != EventDone || events[0].Err == nil {
		t.Fatalf("StartAsync(nil) events = %+v", events)
	}
}
