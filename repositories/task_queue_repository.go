package repositories

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

const (
	QueueIngest  = "ingest"
	QueueStorage = "storage"

	nbRetriesIngest = 5 // snoozes while polling the ingestion engine do not count as attempts
	priorityIngest  = 2 // nb: higher number is lower priority (between 1 and 4)
	nbRetriesPush   = 4
	priorityPush    = 1
	// upload cleanup attempts are rescheduled as new jobs, a failed job is never retried by the queue
	nbRetriesUploadCleanup = 1
	priorityUploadCleanup  = 3
)

var pendingJobStates = []rivertype.JobState{
	rivertype.JobStateAvailable,
	rivertype.JobStatePending,
	rivertype.JobStateRunning,
	rivertype.JobStateRetryable,
	rivertype.JobStateScheduled,
}

type TaskQueueRepository interface {
	EnqueueIngestTask(ctx context.Context, tx Transaction, job models.IngestJob) error
	EnqueueDispatchTask(ctx context.Context, tx Transaction, args models.DispatchStudyFileArgs, runAt time.Time) error
	EnqueuePushTask(ctx context.Context, tx Transaction, args models.PushStudyFileArgs) error
	// EnqueueUploadCleanupTask returns the id of the inserted job
	EnqueueUploadCleanupTask(ctx context.Context, tx Transaction, args models.UploadCleanupArgs, runAt time.Time) (int64, error)
}

type riverRepository struct {
	client *river.Client[pgx.Tx]
}

func NewTaskQueueRepository(client *river.Client[pgx.Tx]) TaskQueueRepository {
	return riverRepository{client: client}
}

func (r riverRepository) EnqueueIngestTask(ctx context.Context, tx Transaction, job models.IngestJob) error {
	res, err := r.client.InsertTx(ctx, tx.RawTx(), models.NewIngestStudyFileArgs(job), &river.InsertOpts{
		MaxAttempts: nbRetriesIngest,
		Priority:    priorityIngest,
		Queue:       QueueIngest,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
		},
	})
	if err != nil {
		return errors.Wrap(err, "could not enqueue ingest task")
	}

	utils.LoggerFromContext(ctx).DebugContext(ctx, "Enqueued ingest task",
		"study_file_id", job.StudyFileId, "action", job.Action, "job_id", res.Job.ID)
	return nil
}

func (r riverRepository) EnqueueDispatchTask(
	ctx context.Context,
	tx Transaction,
	args models.DispatchStudyFileArgs,
	runAt time.Time,
) error {
	res, err := r.client.InsertTx(ctx, tx.RawTx(), args, &river.InsertOpts{
		MaxAttempts: nbRetriesIngest,
		Priority:    priorityIngest,
		Queue:       QueueIngest,
		ScheduledAt: runAt,
	})
	if err != nil {
		return errors.Wrap(err, "could not enqueue dispatch task")
	}

	utils.LoggerFromContext(ctx).DebugContext(ctx, "Enqueued dispatch task",
		"study_file_id", args.StudyFileId, "run_at", runAt, "job_id", res.Job.ID)
	return nil
}

func (r riverRepository) EnqueuePushTask(ctx context.Context, tx Transaction, args models.PushStudyFileArgs) error {
	res, err := r.client.InsertTx(ctx, tx.RawTx(), args, &river.InsertOpts{
		MaxAttempts: nbRetriesPush,
		Priority:    priorityPush,
		Queue:       QueueStorage,
		// a file uploaded again must be pushed again, so completed pushes do not count
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByState: pendingJobStates,
		},
	})
	if err != nil {
		return errors.Wrap(err, "could not enqueue push task")
	}

	utils.LoggerFromContext(ctx).DebugContext(ctx, "Enqueued push task",
		"study_file_id", args.StudyFileId, "job_id", res.Job.ID)
	return nil
}

func (r riverRepository) EnqueueUploadCleanupTask(
	ctx context.Context,
	tx Transaction,
	args models.UploadCleanupArgs,
	runAt time.Time,
) (int64, error) {
	res, err := r.client.InsertTx(ctx, tx.RawTx(), args, &river.InsertOpts{
		MaxAttempts: nbRetriesUploadCleanup,
		Priority:    priorityUploadCleanup,
		Queue:       QueueStorage,
		ScheduledAt: runAt,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByState: pendingJobStates,
		},
	})
	if err != nil {
		return 0, errors.Wrap(err, "could not enqueue upload cleanup task")
	}

	utils.LoggerFromContext(ctx).DebugContext(ctx, "Enqueued upload cleanup task",
		"study_file_id", args.StudyFileId, "retry_count", args.RetryCount, "run_at", runAt, "job_id", res.Job.ID)
	return res.Job.ID, nil
}
