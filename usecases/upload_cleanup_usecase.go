package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories"
	"github.com/singlecellportal/ingest-orchestrator/usecases/executor_factory"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

const (
	failedUploadSweepConcurrency = 4
	// remote metadata requests per second during the sweep
	failedUploadSweepRate = 10
)

type uploadCleanupRepository interface {
	GetStudyById(ctx context.Context, exec repositories.Executor, id string) (models.Study, error)
	GetStudyFileById(ctx context.Context, exec repositories.Executor, id string) (models.StudyFile, error)
	UpdateStudyFile(ctx context.Context, exec repositories.Executor, input models.UpdateStudyFileInput) error
	ListFailedUploads(ctx context.Context, exec repositories.Executor, filter models.FailedUploadsFilter) ([]models.StudyFile, error)
}

type uploadCleanupTaskQueue interface {
	EnqueueUploadCleanupTask(ctx context.Context, tx repositories.Transaction,
		args models.UploadCleanupArgs, runAt time.Time) (int64, error)
}

type uploadNotifier interface {
	NotifyAdmin(ctx context.Context, subject, body string, file models.StudyFile)
	NotifyUserUploadFailed(ctx context.Context, file models.StudyFile, study models.Study)
}

// UploadCleanupUsecase verifies that uploads reached the study bucket before removing their local copy
type UploadCleanupUsecase struct {
	executorFactory     executor_factory.ExecutorFactory
	transactionFactory  executor_factory.TransactionFactory
	repository          uploadCleanupRepository
	blobRepository      repositories.BlobRepository
	taskQueueRepository uploadCleanupTaskQueue
	notifier            uploadNotifier
	config              models.PipelineConfiguration
	environment         string
}

func NewUploadCleanupUsecase(
	executorFactory executor_factory.ExecutorFactory,
	transactionFactory executor_factory.TransactionFactory,
	repository uploadCleanupRepository,
	blobRepository repositories.BlobRepository,
	taskQueueRepository uploadCleanupTaskQueue,
	notifier uploadNotifier,
	config models.PipelineConfiguration,
	environment string,
) UploadCleanupUsecase {
	return UploadCleanupUsecase{
		executorFactory:     executorFactory,
		transactionFactory:  transactionFactory,
		repository:          repository,
		blobRepository:      blobRepository,
		taskQueueRepository: taskQueueRepository,
		notifier:            notifier,
		config:              config,
		environment:         environment,
	}
}

// RunUploadCleanup runs one reconciliation attempt. Remote misses and remote errors are rescheduled as new
// attempts, so the returned error is only about the local bookkeeping.
func (uc UploadCleanupUsecase) RunUploadCleanup(ctx context.Context, args models.UploadCleanupArgs) (models.UploadCleanupOutcome, error) {
	outcome, err := uc.runUploadCleanup(ctx, args)
	if err == nil {
		utils.MetricUploadCleanupCount.With(prometheus.Labels{"outcome": string(outcome)}).Inc()
		utils.LoggerFromContext(ctx).InfoContext(ctx, "upload cleanup done",
			"study_file_id", args.StudyFileId, "retry_count", args.RetryCount, "outcome", outcome)
	}
	return outcome, err
}

func (uc UploadCleanupUsecase) runUploadCleanup(ctx context.Context, args models.UploadCleanupArgs) (models.UploadCleanupOutcome, error) {
	logger := utils.LoggerFromContext(ctx)
	exec := uc.executorFactory.NewExecutor()

	file, err := uc.repository.GetStudyFileById(ctx, exec, args.StudyFileId)
	if errors.Is(err, models.NotFoundError) {
		logger.InfoContext(ctx, "study file is gone, aborting the upload cleanup", "study_file_id", args.StudyFileId)
		return models.UploadCleanupAborted, nil
	} else if err != nil {
		return "", err
	}
	study, err := uc.repository.GetStudyById(ctx, exec, file.StudyId)
	if errors.Is(err, models.NotFoundError) {
		return models.UploadCleanupAborted, nil
	} else if err != nil {
		return "", err
	}

	if file.QueuedForDeletion || study.QueuedForDeletion {
		if file.IsLocal {
			if err := uc.removeLocalCopy(ctx, exec, file); err != nil {
				return "", err
			}
		}
		return models.UploadCleanupAborted, nil
	}

	if !file.IsLocal {
		uc.notifier.NotifyAdmin(ctx, "File missing on cleanup", fmt.Sprintf(
			"The local copy of %s (%s) in study %s was missing when its upload was verified.\nLocal path: %s",
			file.UploadFileName, file.Id, study.Accession, file.LocalPath()), file)
		return models.UploadCleanupNoLocalCopy, nil
	}

	bucketUrl := uc.blobRepository.StudyBucketUrl(study.BucketId)
	remote, err := uc.blobRepository.GetObjectMetadata(ctx, bucketUrl, file.RemotePath())
	switch {
	case errors.Is(err, models.ErrRemoteObjectNotFound):
		return uc.reschedule(ctx, study, file, args, nil)
	case err != nil:
		utils.ReportSentryErrorWithTags(ctx, err, map[string]string{
			"study_file_id": file.Id,
			"retry_count":   fmt.Sprint(args.RetryCount),
		})
		return uc.reschedule(ctx, study, file, args, err)
	}

	outcome := models.UploadCleanupPersisted
	if !file.HasGeneration(remote.Generation) {
		logger.InfoContext(ctx, "generation of the study file differs from the remote object, updating it",
			"study_file_id", file.Id, "remote_generation", remote.Generation)
		if err := uc.repository.UpdateStudyFile(ctx, exec, models.UpdateStudyFileInput{
			Id:         file.Id,
			Generation: &remote.Generation,
		}); err != nil {
			return "", err
		}
		outcome = models.UploadCleanupHealed
	}

	if err := uc.removeLocalCopy(ctx, exec, file); err != nil {
		return "", err
	}
	return outcome, nil
}

func (uc UploadCleanupUsecase) reschedule(
	ctx context.Context,
	study models.Study,
	file models.StudyFile,
	args models.UploadCleanupArgs,
	remoteErr error,
) (models.UploadCleanupOutcome, error) {
	attempt := args.RetryCount + 1
	if attempt > models.UploadCleanupMaxRetries {
		uc.notifier.NotifyAdmin(ctx, fmt.Sprintf("Upload cleanup failed for %s", file.UploadFileName),
			uc.exhaustedBody(study, file, remoteErr), file)
		return models.UploadCleanupExhausted, nil
	}

	err := uc.transactionFactory.Transaction(ctx, func(tx repositories.Transaction) error {
		jobId, err := uc.taskQueueRepository.EnqueueUploadCleanupTask(ctx, tx, models.UploadCleanupArgs{
			StudyId:     args.StudyId,
			StudyFileId: args.StudyFileId,
			RetryCount:  attempt,
		}, time.Now().Add(models.UploadCleanupDelay(attempt)))
		if err != nil {
			return err
		}
		return uc.repository.UpdateStudyFile(ctx, tx, models.UpdateStudyFileInput{
			Id:                 file.Id,
			UploadCleanupJobId: &jobId,
		})
	})
	if err != nil {
		return "", err
	}
	return models.UploadCleanupRescheduled, nil
}

func (uc UploadCleanupUsecase) exhaustedBody(study models.Study, file models.StudyFile, remoteErr error) string {
	lines := []string{
		fmt.Sprintf("%s (%s) never reached the bucket of study %s after %d attempts.",
			file.UploadFileName, file.Id, study.Accession, models.UploadCleanupMaxRetries+1),
		"Study: " + study.Name,
		"Bucket: " + uc.blobRepository.StudyBucketUrl(study.BucketId) + "/" + file.RemotePath(),
		"Local path: " + file.LocalPath(),
		"Environment: " + uc.environment,
	}
	if remoteErr != nil {
		lines = append(lines, fmt.Sprintf("Last error: %v", remoteErr))
	}
	return strings.Join(lines, "\n")
}

func (uc UploadCleanupUsecase) removeLocalCopy(ctx context.Context, exec repositories.Executor, file models.StudyFile) error {
	if err := uc.blobRepository.DeleteFile(ctx, uc.blobRepository.LocalBucketUrl(), file.LocalPath()); err != nil {
		return err
	}
	isLocal := false
	return uc.repository.UpdateStudyFile(ctx, exec, models.UpdateStudyFileInput{Id: file.Id, IsLocal: &isLocal})
}

// CleanupJobForFile returns the id of the last scheduled cleanup job of the file, nil if none was scheduled
func (uc UploadCleanupUsecase) CleanupJobForFile(ctx context.Context, studyFileId string) (*int64, error) {
	file, err := uc.repository.GetStudyFileById(ctx, uc.executorFactory.NewExecutor(), studyFileId)
	if err != nil {
		return nil, err
	}
	return file.UploadCleanupJobId, nil
}

// FindAndRemoveFailedUploads handles the uploads that never completed. They are checked one last time against the
// study bucket and either healed or removed.
func (uc UploadCleanupUsecase) FindAndRemoveFailedUploads(ctx context.Context) (map[models.FailedUploadResult]int, error) {
	logger := utils.LoggerFromContext(ctx)

	files, err := uc.repository.ListFailedUploads(ctx, uc.executorFactory.NewExecutor(), models.FailedUploadsFilter{
		CreatedBefore: time.Now().Add(-uc.config.FailedUploadThreshold),
	})
	if err != nil {
		return nil, err
	}

	results := make([]models.FailedUploadResult, len(files))
	limiter := rate.NewLimiter(rate.Limit(failedUploadSweepRate), 1)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(failedUploadSweepConcurrency)
	for i, file := range files {
		if err := limiter.Wait(groupCtx); err != nil {
			break
		}
		group.Go(func() error {
			result, err := uc.handleFailedUpload(groupCtx, file)
			if err != nil {
				utils.ReportSentryErrorWithTags(groupCtx, err, map[string]string{"study_file_id": file.Id})
				result = models.FailedUploadSkipped
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[models.FailedUploadResult]int)
	for _, result := range results {
		counts[result]++
		utils.MetricFailedUploadSweepCount.With(prometheus.Labels{"result": string(result)}).Inc()
	}
	logger.InfoContext(ctx, fmt.Sprintf("failed upload sweep handled %d files", len(files)),
		"healed", counts[models.FailedUploadHealed],
		"removed", counts[models.FailedUploadRemoved],
		"skipped", counts[models.FailedUploadSkipped],
	)
	return counts, nil
}

func (uc UploadCleanupUsecase) handleFailedUpload(ctx context.Context, file models.StudyFile) (models.FailedUploadResult, error) {
	logger := utils.LoggerFromContext(ctx)
	exec := uc.executorFactory.NewExecutor()

	study, err := uc.repository.GetStudyById(ctx, exec, file.StudyId)
	if err != nil {
		return "", err
	}

	remote, err := uc.blobRepository.GetObjectMetadata(ctx, uc.blobRepository.StudyBucketUrl(study.BucketId), file.RemotePath())
	if err != nil && !errors.Is(err, models.ErrRemoteObjectNotFound) {
		return "", err
	}
	if err == nil && remote.Size == file.UploadFileSize {
		uploaded := models.UploadStatusUploaded
		logger.InfoContext(ctx, "failed upload is present in the study bucket, healing it", "study_file_id", file.Id)
		return models.FailedUploadHealed, uc.repository.UpdateStudyFile(ctx, exec, models.UpdateStudyFileInput{
			Id:           file.Id,
			UploadStatus: &uploaded,
			Generation:   &remote.Generation,
		})
	}

	if file.IsLocal {
		if err := uc.removeLocalCopy(ctx, exec, file); err != nil {
			return "", err
		}
	}
	uc.notifier.NotifyUserUploadFailed(ctx, file, study)

	queued := true
	return models.FailedUploadRemoved, uc.repository.UpdateStudyFile(ctx, exec, models.UpdateStudyFileInput{
		Id:                file.Id,
		QueuedForDeletion: &queued,
	})
}
