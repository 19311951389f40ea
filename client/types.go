package client

import (
	"github.com/famomatic/tvdl/internal/downloader"
	"github.com/famomatic/tvdl/internal/types"
)

// Episode identifies the asset to download. MediaID is the numeric media
// playlist identifier; SeasonAndEpisode (e.g. "S01E02") is optional.
type Episode struct {
	MediaID          int64
	Title            string
	ShowTitle        string
	SeasonAndEpisode string
}

// JobStatus is the lifecycle state of a job.
type JobStatus = types.JobStatus

const (
	JobStatusPending     = types.JobStatusPending
	JobStatusStarting    = types.JobStatusStarting
	JobStatusDownloading = types.JobStatusDownloading
	JobStatusCompleted   = types.JobStatusCompleted
	JobStatusCancelled   = types.JobStatusCancelled
	JobStatusFailed      = types.JobStatusFailed
)

// Fetcher retrieves one HTTP resource body. Resolvers receive the job's
// fetcher so lookups share its cookies, headers and timeout.
type Fetcher = downloader.Fetcher

// StartFunc is notified once the segment count is known, before the first
// segment fetch.
type StartFunc func(filename string, totalSegments int)

// ProgressFunc is notified after every appended segment with cumulative
// counters. It runs on the job's goroutine and must return promptly.
type ProgressFunc func(segmentsCompleted int, totalBytes int64)

// Result is the terminal outcome of a job.
type Result struct {
	JobID         string
	OutputPath    string
	Status        JobStatus
	Bitrate       int
	TotalSegments int
	Segments      int
	Bytes         int64
}
