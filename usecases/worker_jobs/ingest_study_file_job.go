package worker_jobs

import (
	"context"
	"time"

	"github.com/riverqueue/river"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

const (
	INGEST_POLL_INTERVAL = 30 * time.Second
	INGEST_JOB_TIMEOUT   = 2 * time.Minute
)

type ingestRunner interface {
	RunIngestJob(ctx context.Context, job models.IngestJob) (models.PipelineRunStatus, error)
}

// IngestStudyFileWorker submits a file to the ingestion engine, then polls the run by snoozing the job until the
// run reaches a terminal status.
type IngestStudyFileWorker struct {
	river.WorkerDefaults[models.IngestStudyFileArgs]

	runner       ingestRunner
	pollInterval time.Duration
}

func NewIngestStudyFileWorker(runner ingestRunner) *IngestStudyFileWorker {
	return &IngestStudyFileWorker{
		runner:       runner,
		pollInterval: INGEST_POLL_INTERVAL,
	}
}

// Timeout covers the copy to the study bucket when the first attempt pushes the local copy before submitting
func (w *IngestStudyFileWorker) Timeout(job *river.Job[models.IngestStudyFileArgs]) time.Duration {
	if job.Args.SkipPush {
		return INGEST_JOB_TIMEOUT
	}
	return PUSH_JOB_TIMEOUT + INGEST_JOB_TIMEOUT
}

func (w *IngestStudyFileWorker) Work(ctx context.Context, job *river.Job[models.IngestStudyFileArgs]) error {
	status, err := w.runner.RunIngestJob(ctx, job.Args.IngestJob())
	if err != nil {
		return err
	}

	if !status.Terminal() {
		utils.LoggerFromContext(ctx).DebugContext(ctx, "ingestion run still ongoing",
			"study_file_id", job.Args.StudyFileId, "run_name", job.Args.LeaseHolderId, "status", status)
		return river.JobSnooze(w.pollInterval)
	}
	return nil
}
