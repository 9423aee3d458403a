package worker_jobs

import (
	"context"
	"time"

	"github.com/riverqueue/river"

	"github.com/singlecellportal/ingest-orchestrator/models"
)

const UPLOAD_CLEANUP_TIMEOUT = 5 * time.Minute

type uploadReconciler interface {
	RunUploadCleanup(ctx context.Context, args models.UploadCleanupArgs) (models.UploadCleanupOutcome, error)
}

// UploadCleanupWorker runs one attempt of the upload reconciliation. The next attempts are scheduled by the
// reconciler itself as new jobs, with the retry count in their arguments.
type UploadCleanupWorker struct {
	river.WorkerDefaults[models.UploadCleanupArgs]

	reconciler uploadReconciler
}

func NewUploadCleanupWorker(reconciler uploadReconciler) *UploadCleanupWorker {
	return &UploadCleanupWorker{reconciler: reconciler}
}

func (w *UploadCleanupWorker) Timeout(job *river.Job[models.UploadCleanupArgs]) time.Duration {
	return UPLOAD_CLEANUP_TIMEOUT
}

func (w *UploadCleanupWorker) Work(ctx context.Context, job *river.Job[models.UploadCleanupArgs]) error {
	_, err := w.reconciler.RunUploadCleanup(ctx, job.Args)
	return err
}
