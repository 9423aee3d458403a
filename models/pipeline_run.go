package models

type PipelineRunStatus string

const (
	PipelineRunQueued    PipelineRunStatus = "queued"
	PipelineRunRunning   PipelineRunStatus = "running"
	PipelineRunSucceeded PipelineRunStatus = "succeeded"
	PipelineRunFailed    PipelineRunStatus = "failed"
)

func PipelineRunStatusFrom(s string) PipelineRunStatus {
	switch s {
	case "queued", "QUEUED":
		return PipelineRunQueued
	case "succeeded", "SUCCEEDED", "done", "DONE":
		return PipelineRunSucceeded
	case "failed", "FAILED", "error", "ERROR":
		return PipelineRunFailed
	}
	return PipelineRunRunning
}

func (s PipelineRunStatus) Terminal() bool {
	return s == PipelineRunSucceeded || s == PipelineRunFailed
}

// PipelineRunRequest is sent to the ingestion engine. The run name is the parse lease holder id, so that a
// resubmission of the same ingestion is recognized by the engine.
type PipelineRunRequest struct {
	RunName            string       `json:"run_name"`
	Action             IngestAction `json:"action"`
	StudyId            string       `json:"study_id"`
	StudyAccession     string       `json:"study_accession"`
	StudyFileId        string       `json:"study_file_id"`
	FileType           string       `json:"file_type"`
	FileUrl            string       `json:"file_url"`
	UserId             string       `json:"user_id"`
	Reparse            bool         `json:"reparse"`
	PersistOnFail      bool         `json:"persist_on_fail"`
	FirecloudProject   string       `json:"firecloud_project"`
	FirecloudWorkspace string       `json:"firecloud_workspace"`
}

type PipelineRun struct {
	Name   string
	Status PipelineRunStatus
	Error  string
}
