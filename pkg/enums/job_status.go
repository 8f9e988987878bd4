package enums

// JobStatus describes where a processing job sits in its lifecycle:
// pending -> processing -> completed | failed, with pending -> failed when
// dispatch is refused.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

var jobStatuses = []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}

func (s JobStatus) String() string { return string(s) }
func (s JobStatus) IsValid() bool  { return oneOf(s, jobStatuses) }

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanMoveTo reports whether next is a legal successor of s. Repeating the
// current status is not a move.
func (s JobStatus) CanMoveTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

func ParseJobStatus(value string) (JobStatus, error) {
	return parse(value, jobStatuses, "job status")
}
