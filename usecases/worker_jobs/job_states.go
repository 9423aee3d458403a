package worker_jobs

import "github.com/riverqueue/river/rivertype"

// a sweep that already ran does not prevent the next one
var pendingJobStates = []rivertype.JobState{
	rivertype.JobStateAvailable,
	rivertype.JobStatePending,
	rivertype.JobStateRunning,
	rivertype.JobStateRetryable,
	rivertype.JobStateScheduled,
}
