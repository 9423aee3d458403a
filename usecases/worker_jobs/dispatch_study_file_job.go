package worker_jobs

import (
	"context"

	"github.com/riverqueue/river"

	"github.com/singlecellportal/ingest-orchestrator/models"
)

type parseDispatcher interface {
	RunParseJob(ctx context.Context, studyFileId string, userId string, opts models.ParseOptions) (models.ParseResult, error)
}

// DispatchStudyFileWorker runs a delayed parse dispatch, used for the coordinate labels of a cluster
type DispatchStudyFileWorker struct {
	river.WorkerDefaults[models.DispatchStudyFileArgs]

	dispatcher parseDispatcher
}

func NewDispatchStudyFileWorker(dispatcher parseDispatcher) *DispatchStudyFileWorker {
	return &DispatchStudyFileWorker{dispatcher: dispatcher}
}

func (w *DispatchStudyFileWorker) Work(ctx context.Context, job *river.Job[models.DispatchStudyFileArgs]) error {
	_, err := w.dispatcher.RunParseJob(ctx, job.Args.StudyFileId, job.Args.UserId, models.ParseOptions{
		Reparse:       job.Args.Reparse,
		PersistOnFail: job.Args.PersistOnFail,
	})
	return err
}
