// Package metrics exposes Prometheus collectors for download jobs.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tvdl"

// Fetch kinds used as the "kind" label of the fetch duration histogram.
const (
	FetchManifest = "manifest"
	FetchKey      = "key"
	FetchSegment  = "segment"
)

// Recorder groups the collectors. A nil *Recorder records nothing.
type Recorder struct {
	jobs          *prometheus.CounterVec
	segments      prometheus.Counter
	bytesWritten  prometheus.Counter
	fetchDuration *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg.
// Collectors already registered on reg are reused.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Download jobs by terminal status.",
		}, []string{"status"}),
		segments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Segments decrypted and written.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Plaintext bytes appended to output files.",
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "HTTP fetch latency by resource kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		return r, nil
	}

	var err error
	if r.jobs, err = register(reg, r.jobs); err != nil {
		return nil, err
	}
	if r.segments, err = register(reg, r.segments); err != nil {
		return nil, err
	}
	if r.bytesWritten, err = register(reg, r.bytesWritten); err != nil {
		return nil, err
	}
	if r.fetchDuration, err = register(reg, r.fetchDuration); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// JobFinished counts one job in its terminal status.
func (r *Recorder) JobFinished(status string) {
	if r == nil {
		return
	}
	r.jobs.WithLabelValues(status).Inc()
}

// SegmentWritten counts one appended segment of n plaintext bytes.
func (r *Recorder) SegmentWritten(n int) {
	if r == nil {
		return
	}
	r.segments.Inc()
	r.bytesWritten.Add(float64(n))
}

// ObserveFetch records the latency of one fetch of the given kind.
func (r *Recorder) ObserveFetch(kind string, d time.Duration) {
	if r == nil {
		return
	}
	r.fetchDuration.WithLabelValues(kind).Observe(d.Seconds())
}
