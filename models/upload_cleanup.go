package models

import "time"

type UploadCleanupOutcome string

const (
	// the file or its study is gone or queued for deletion
	UploadCleanupAborted UploadCleanupOutcome = "aborted"
	// the local copy disappeared before it could be verified
	UploadCleanupNoLocalCopy UploadCleanupOutcome = "no_local_copy"
	UploadCleanupPersisted   UploadCleanupOutcome = "persisted"
	UploadCleanupHealed      UploadCleanupOutcome = "generation_healed"
	UploadCleanupRescheduled UploadCleanupOutcome = "rescheduled"
	UploadCleanupExhausted   UploadCleanupOutcome = "exhausted"
)

type FailedUploadResult string

const (
	FailedUploadHealed  FailedUploadResult = "healed"
	FailedUploadRemoved FailedUploadResult = "removed"
	FailedUploadSkipped FailedUploadResult = "skipped"
)

// UploadCleanupDelay is the linear backoff before the given attempt: 2 minutes, then 4 minutes
func UploadCleanupDelay(attempt int) time.Duration {
	return time.Duration(attempt) * UploadCleanupBackoffUnit
}
