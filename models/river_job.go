package models

import "time"

const (
	// Upload cleanup attempts beyond the first one before the reconciliation is terminal
	UploadCleanupMaxRetries = 2
	// Unit of the linear backoff between two upload cleanup attempts
	UploadCleanupBackoffUnit = 2 * time.Minute
)

// push a study file to the ingestion engine, or to the precomputed scores/analysis output extraction paths
type IngestStudyFileArgs struct {
	Action        IngestAction `json:"action"`
	StudyId       string       `json:"study_id"`
	StudyFileId   string       `json:"study_file_id"`
	UserId        string       `json:"user_id"`
	Reparse       bool         `json:"reparse"`
	PersistOnFail bool         `json:"persist_on_fail"`
	SkipPush      bool         `json:"skip_push"`
	LeaseHolderId string       `json:"lease_holder_id"`
}

func (IngestStudyFileArgs) Kind() string { return "ingest_study_file" }

func NewIngestStudyFileArgs(job IngestJob) IngestStudyFileArgs {
	return IngestStudyFileArgs{
		Action:        job.Action,
		StudyId:       job.StudyId,
		StudyFileId:   job.StudyFileId,
		UserId:        job.UserId,
		Reparse:       job.Reparse,
		PersistOnFail: job.PersistOnFail,
		SkipPush:      job.SkipPush,
		LeaseHolderId: job.LeaseHolderId,
	}
}

func (a IngestStudyFileArgs) IngestJob() IngestJob {
	return IngestJob{
		Action:        a.Action,
		StudyId:       a.StudyId,
		StudyFileId:   a.StudyFileId,
		UserId:        a.UserId,
		Reparse:       a.Reparse,
		PersistOnFail: a.PersistOnFail,
		SkipPush:      a.SkipPush,
		LeaseHolderId: a.LeaseHolderId,
	}
}

// run the parse dispatcher for a file at a later time
type DispatchStudyFileArgs struct {
	StudyFileId   string `json:"study_file_id"`
	UserId        string `json:"user_id"`
	Reparse       bool   `json:"reparse"`
	PersistOnFail bool   `json:"persist_on_fail"`
}

func (DispatchStudyFileArgs) Kind() string { return "dispatch_study_file" }

// copy the local copy of a study file to the study bucket
type PushStudyFileArgs struct {
	StudyId     string `json:"study_id"`
	StudyFileId string `json:"study_file_id"`
}

func (PushStudyFileArgs) Kind() string { return "push_study_file" }

// verify that a study file reached the study bucket, then remove its local copy
type UploadCleanupArgs struct {
	StudyId     string `json:"study_id"`
	StudyFileId string `json:"study_file_id"`
	RetryCount  int    `json:"retry_count"`
}

func (UploadCleanupArgs) Kind() string { return "upload_cleanup" }

type FailedUploadSweepArgs struct{}

func (FailedUploadSweepArgs) Kind() string { return "failed_upload_sweep" }
