package constants

// JobStatus is the canonical status for rows in qc_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending   JobStatus = "PENDING"   // written, not yet submitted
	JobStatusSubmitted JobStatus = "SUBMITTED" // handed to the scheduler
	JobStatusRunning   JobStatus = "RUNNING"   // seen in a status snapshot
	JobStatusFinished  JobStatus = "FINISHED"  // output parsed
	JobStatusFailed    JobStatus = "FAILED"    // terminal failure
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFinished || s == JobStatusFailed
}
