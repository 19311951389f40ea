package client

import "context"

// EventType identifies an Event.
type EventType string

const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventDone     EventType = "done"
)

// Event is one notification of an asynchronous job. Result and Err are set
// only on EventDone.
type Event struct {
	Type          EventType
	JobID         string
	Filename      string
	TotalSegments int
	Segments      int
	Bytes         int64
	Result        *Result
	Err           error
}

// StartAsync runs job on a new goroutine and delivers its notifications in
// order. The channel is closed after the single EventDone. The job's own
// callbacks still run. Sends block, so the caller must drain the channel.
func (d *Downloader) StartAsync(ctx context.Context, job *Job) <-chan Event {
	events := make(chan Event, 16)
	if job == nil {
		events <- Event{Type: EventDone, Err: errNilJob}
		close(events)
		return events
	}
	go func() {
		defer close(events)
		obs := jobObserver{
			onStart: func(filename string, total int) {
				events <- Event{Type: EventStart, JobID: job.id, Filename: filename, TotalSegments: total}
			},
			onProgress: func(segments int, bytes int64) {
				events <- Event{Type: EventProgress, JobID: job.id, Segments: segments, Bytes: bytes}
			},
		}
		res, err := d.start(ctx, job, obs)
		events <- Event{Type: EventDone, JobID: job.id, Result: res, Err: err}
	}()
	return events
}
