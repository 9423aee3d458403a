package worker_jobs

import (
	"context"
	"time"

	"github.com/riverqueue/river"

	"github.com/singlecellportal/ingest-orchestrator/models"
)

const PUSH_JOB_TIMEOUT = 30 * time.Minute

type studyFilePusher interface {
	PushStudyFile(ctx context.Context, args models.PushStudyFileArgs) error
}

type PushStudyFileWorker struct {
	river.WorkerDefaults[models.PushStudyFileArgs]

	pusher studyFilePusher
}

func NewPushStudyFileWorker(pusher studyFilePusher) *PushStudyFileWorker {
	return &PushStudyFileWorker{pusher: pusher}
}

// large uploads take a while to copy
func (w *PushStudyFileWorker) Timeout(job *river.Job[models.PushStudyFileArgs]) time.Duration {
	return PUSH_JOB_TIMEOUT
}

func (w *PushStudyFileWorker) Work(ctx context.Context, job *river.Job[models.PushStudyFileArgs]) error {
	return w.pusher.PushStudyFile(ctx, job.Args)
}
