package types

// JobStatus is the lifecycle state of a download job.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusStarting    JobStatus = "starting"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusCancelled   JobStatus = "cancelled"
	JobStatusFailed      JobStatus = "failed"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsFinished reports whether the job reached a terminal state.
func (s JobStatus) IsFinished() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled || s == JobStatusFailed
}
