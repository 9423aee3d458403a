package worker_jobs

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
	"github.com/cockroachdb/errors"
	"github.com/riverqueue/river"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

const (
	FAILED_UPLOAD_SWEEP_TIMEOUT = 30 * time.Minute
	FAILED_UPLOAD_SWEEP_QUEUE   = "storage"
)

// cronSchedule runs the periodic job on the ticks of a cron expression
type cronSchedule struct {
	expression string
}

func (s cronSchedule) Next(current time.Time) time.Time {
	next, err := gronx.NextTickAfter(s.expression, current, false)
	if err != nil {
		// the expression is validated when the schedule is built
		return current.Add(24 * time.Hour)
	}
	return next
}

func sweepSchedule(interval time.Duration, cron string) (river.PeriodicSchedule, error) {
	if cron == "" {
		if interval <= 0 {
			return nil, errors.Newf("invalid failed upload sweep interval %s", interval)
		}
		return river.PeriodicInterval(interval), nil
	}
	if !gronx.New().IsValid(cron) {
		return nil, errors.Newf("invalid failed upload sweep schedule '%s'", cron)
	}
	return cronSchedule{expression: cron}, nil
}

// NewFailedUploadSweepPeriodicJob schedules the sweep every interval, or on the given cron expression when set
func NewFailedUploadSweepPeriodicJob(interval time.Duration, cron string) (*river.PeriodicJob, error) {
	schedule, err := sweepSchedule(interval, cron)
	if err != nil {
		return nil, err
	}

	return river.NewPeriodicJob(
		schedule,
		func() (river.JobArgs, *river.InsertOpts) {
			return models.FailedUploadSweepArgs{},
				&river.InsertOpts{
					Queue:       FAILED_UPLOAD_SWEEP_QUEUE,
					Priority:    4, // Low priority
					MaxAttempts: 1,
					UniqueOpts: river.UniqueOpts{
						ByQueue: true,
						ByState: pendingJobStates,
					},
				}
		},
		&river.PeriodicJobOpts{RunOnStart: false},
	), nil
}

type failedUploadSweeper interface {
	FindAndRemoveFailedUploads(ctx context.Context) (map[models.FailedUploadResult]int, error)
}

// FailedUploadSweepWorker heals or removes the uploads that never completed
type FailedUploadSweepWorker struct {
	river.WorkerDefaults[models.FailedUploadSweepArgs]

	sweeper failedUploadSweeper
}

func NewFailedUploadSweepWorker(sweeper failedUploadSweeper) *FailedUploadSweepWorker {
	return &FailedUploadSweepWorker{sweeper: sweeper}
}

func (w *FailedUploadSweepWorker) Timeout(job *river.Job[models.FailedUploadSweepArgs]) time.Duration {
	return FAILED_UPLOAD_SWEEP_TIMEOUT
}

func (w *FailedUploadSweepWorker) Work(ctx context.Context, job *river.Job[models.FailedUploadSweepArgs]) error {
	logger := utils.LoggerFromContext(ctx)

	counts, err := w.sweeper.FindAndRemoveFailedUploads(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed upload sweep failed", "error", err)
		return err
	}

	if counts[models.FailedUploadSkipped] > 0 {
		logger.WarnContext(ctx, "Some failed uploads could not be handled, they are retried on the next sweep",
			"skipped", counts[models.FailedUploadSkipped])
	}
	return nil
}
