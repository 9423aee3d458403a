package usecases

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories"
	"github.com/singlecellportal/ingest-orchestrator/usecases/executor_factory"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

type studyFileUploadRepository interface {
	GetStudyById(ctx context.Context, exec repositories.Executor, id string) (models.Study, error)
	GetStudyFileById(ctx context.Context, exec repositories.Executor, id string) (models.StudyFile, error)
	UpdateStudyFile(ctx context.Context, exec repositories.Executor, input models.UpdateStudyFileInput) error
}

type studyFileUploadTaskQueue interface {
	EnqueuePushTask(ctx context.Context, tx repositories.Transaction, args models.PushStudyFileArgs) error
	EnqueueUploadCleanupTask(ctx context.Context, tx repositories.Transaction,
		args models.UploadCleanupArgs, runAt time.Time) (int64, error)
}

type parseDispatcher interface {
	RunParseJob(ctx context.Context, studyFileId string, userId string, opts models.ParseOptions) (models.ParseResult, error)
}

type StudyFileUploadUsecase struct {
	executorFactory     executor_factory.ExecutorFactory
	transactionFactory  executor_factory.TransactionFactory
	repository          studyFileUploadRepository
	blobRepository      repositories.BlobRepository
	taskQueueRepository studyFileUploadTaskQueue
	parseDispatcher     parseDispatcher
	config              models.PipelineConfiguration
}

func NewStudyFileUploadUsecase(
	executorFactory executor_factory.ExecutorFactory,
	transactionFactory executor_factory.TransactionFactory,
	repository studyFileUploadRepository,
	blobRepository repositories.BlobRepository,
	taskQueueRepository studyFileUploadTaskQueue,
	parseDispatcher parseDispatcher,
	config models.PipelineConfiguration,
) StudyFileUploadUsecase {
	return StudyFileUploadUsecase{
		executorFactory:     executorFactory,
		transactionFactory:  transactionFactory,
		repository:          repository,
		blobRepository:      blobRepository,
		taskQueueRepository: taskQueueRepository,
		parseDispatcher:     parseDispatcher,
		config:              config,
	}
}

// CompleteUpload is called once the byte stream of an upload is complete. The local copy is pushed to the study
// bucket in the background and the parse of the file is dispatched.
func (uc StudyFileUploadUsecase) CompleteUpload(
	ctx context.Context,
	studyFileId string,
	userId string,
	opts models.ParseOptions,
) (models.ParseResult, error) {
	err := uc.transactionFactory.Transaction(ctx, func(tx repositories.Transaction) error {
		file, err := uc.repository.GetStudyFileById(ctx, tx, studyFileId)
		if err != nil {
			return err
		}
		if file.QueuedForDeletion {
			return errors.Wrapf(models.BadParameterError, "study file %s is queued for deletion", file.Id)
		}

		uploaded := models.UploadStatusUploaded
		if err := uc.repository.UpdateStudyFile(ctx, tx, models.UpdateStudyFileInput{
			Id:           file.Id,
			UploadStatus: &uploaded,
		}); err != nil {
			return err
		}

		if !file.IsLocal {
			return nil
		}
		return uc.taskQueueRepository.EnqueuePushTask(ctx, tx,
			models.PushStudyFileArgs{StudyId: file.StudyId, StudyFileId: file.Id})
	})
	if err != nil {
		return models.ParseResult{}, err
	}

	return uc.parseDispatcher.RunParseJob(ctx, studyFileId, userId, opts)
}

// PushStudyFile copies the local copy of a file to the study bucket, then schedules the cleanup of the local copy
func (uc StudyFileUploadUsecase) PushStudyFile(ctx context.Context, args models.PushStudyFileArgs) error {
	logger := utils.LoggerFromContext(ctx)
	exec := uc.executorFactory.NewExecutor()

	file, err := uc.repository.GetStudyFileById(ctx, exec, args.StudyFileId)
	if errors.Is(err, models.NotFoundError) {
		logger.InfoContext(ctx, "study file was deleted before its push", "study_file_id", args.StudyFileId)
		return nil
	} else if err != nil {
		return err
	}
	study, err := uc.repository.GetStudyById(ctx, exec, file.StudyId)
	if err != nil {
		return err
	}
	if file.QueuedForDeletion || study.QueuedForDeletion || !file.IsLocal {
		logger.InfoContext(ctx, "nothing to push", "study_file_id", file.Id,
			"is_local", file.IsLocal, "queued_for_deletion", file.QueuedForDeletion || study.QueuedForDeletion)
		return nil
	}

	start := time.Now()
	remote, err := uc.blobRepository.CopyFile(ctx,
		uc.blobRepository.LocalBucketUrl(), file.LocalPath(),
		uc.blobRepository.StudyBucketUrl(study.BucketId), file.RemotePath(),
	)
	if err != nil {
		return err
	}
	utils.MetricPushDuration.Observe(time.Since(start).Seconds())

	return uc.transactionFactory.Transaction(ctx, func(tx repositories.Transaction) error {
		jobId, err := uc.taskQueueRepository.EnqueueUploadCleanupTask(ctx, tx, models.UploadCleanupArgs{
			StudyId:     file.StudyId,
			StudyFileId: file.Id,
			RetryCount:  0,
		}, time.Now().Add(uc.config.InitialCleanupDelay))
		if err != nil {
			return err
		}

		return uc.repository.UpdateStudyFile(ctx, tx, models.UpdateStudyFileInput{
			Id:                 file.Id,
			Generation:         &remote.Generation,
			UploadCleanupJobId: &jobId,
		})
	})
}
