package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories"
	"github.com/singlecellportal/ingest-orchestrator/usecases/executor_factory"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

type fileParseRepository interface {
	GetStudyById(ctx context.Context, exec repositories.Executor, id string) (models.Study, error)
	GetStudyFileById(ctx context.Context, exec repositories.Executor, id string) (models.StudyFile, error)
	AcquireParseLease(ctx context.Context, tx repositories.Transaction, input models.AcquireParseLeaseInput) error
	FinishParse(ctx context.Context, exec repositories.Executor, input models.FinishParseInput) (bool, error)
}

type fileParseTaskQueue interface {
	EnqueueIngestTask(ctx context.Context, tx repositories.Transaction, job models.IngestJob) error
	EnqueueDispatchTask(ctx context.Context, tx repositories.Transaction, args models.DispatchStudyFileArgs, runAt time.Time) error
	EnqueuePushTask(ctx context.Context, tx repositories.Transaction, args models.PushStudyFileArgs) error
}

type fileBundleResolver interface {
	Resolve(ctx context.Context, tx repositories.Transaction, file models.StudyFile) (models.BundleResolution, error)
}

type shareNotifier interface {
	NotifyShareUpdate(ctx context.Context, study models.Study, changes []string, userId string)
}

// FileParseUsecase picks the ingestion of a study file and submits it to the task queue
type FileParseUsecase struct {
	executorFactory     executor_factory.ExecutorFactory
	transactionFactory  executor_factory.TransactionFactory
	repository          fileParseRepository
	bundleResolver      fileBundleResolver
	taskQueueRepository fileParseTaskQueue
	notifier            shareNotifier
	config              models.PipelineConfiguration
}

func NewFileParseUsecase(
	executorFactory executor_factory.ExecutorFactory,
	transactionFactory executor_factory.TransactionFactory,
	repository fileParseRepository,
	bundleResolver fileBundleResolver,
	taskQueueRepository fileParseTaskQueue,
	notifier shareNotifier,
	config models.PipelineConfiguration,
) FileParseUsecase {
	return FileParseUsecase{
		executorFactory:     executorFactory,
		transactionFactory:  transactionFactory,
		repository:          repository,
		bundleResolver:      bundleResolver,
		taskQueueRepository: taskQueueRepository,
		notifier:            notifier,
		config:              config,
	}
}

// RunParseJob dispatches the ingestion of a study file. Expected conditions are reported in the result, only
// infrastructure failures are returned as errors.
func (uc FileParseUsecase) RunParseJob(
	ctx context.Context,
	studyFileId string,
	userId string,
	opts models.ParseOptions,
) (models.ParseResult, error) {
	logger := utils.LoggerFromContext(ctx)

	var study models.Study
	var file models.StudyFile
	result, err := executor_factory.TransactionReturnValue(ctx, uc.transactionFactory, func(
		tx repositories.Transaction,
	) (models.ParseResult, error) {
		var err error
		file, err = uc.repository.GetStudyFileById(ctx, tx, studyFileId)
		if err != nil {
			return models.ParseResult{}, err
		}
		study, err = uc.repository.GetStudyById(ctx, tx, file.StudyId)
		if err != nil {
			return models.ParseResult{}, err
		}

		result, err := uc.dispatch(ctx, tx, study, file, userId, opts)
		if errors.Is(err, models.ErrParseLeaseHeld) {
			// some of the leases were taken before the conflict, they must be rolled back
			return models.ParseResult{
				Outcome: models.ParseOutcomeAlreadyParsing,
				Message: fmt.Sprintf("%s or one of its bundled files is already being parsed", file.UploadFileName),
			}, models.ErrIgnoreRollBackError
		}
		return result, err
	})
	if err != nil {
		return models.ParseResult{}, errors.Wrapf(err, "could not dispatch the parse of study file %s", studyFileId)
	}

	utils.MetricParseDispatchCount.
		With(prometheus.Labels{"file_type": file.FileType.String(), "outcome": string(result.Outcome)}).
		Inc()
	logger.InfoContext(ctx, "parse dispatch done",
		"study_file_id", studyFileId,
		"file_type", file.FileType.String(),
		"outcome", result.Outcome,
		"message", result.Message,
	)

	if result.Outcome == models.ParseOutcomeSubmitted && study.HasShares() {
		uc.notifier.NotifyShareUpdate(ctx, study,
			[]string{fmt.Sprintf("Study file added: %s (%s)", file.UploadFileName, file.FileType.String())}, userId)
	}
	return result, nil
}

func (uc FileParseUsecase) dispatch(
	ctx context.Context,
	tx repositories.Transaction,
	study models.Study,
	file models.StudyFile,
	userId string,
	opts models.ParseOptions,
) (models.ParseResult, error) {
	logger := utils.LoggerFromContext(ctx)

	if !uc.config.Dispatch.Parseable(file.FileType) || file.QueuedForDeletion || study.QueuedForDeletion {
		return models.ParseResult{
			Outcome: models.ParseOutcomeNotParseable,
			Message: fmt.Sprintf("%s is not parseable as %s", file.UploadFileName, file.FileType.String()),
		}, nil
	}
	if file.IsParsing(time.Now()) {
		return models.ParseResult{
			Outcome: models.ParseOutcomeAlreadyParsing,
			Message: fmt.Sprintf("%s is already being parsed", file.UploadFileName),
		}, nil
	}

	resolution, err := uc.bundleResolver.Resolve(ctx, tx, file)
	if err != nil {
		return models.ParseResult{}, err
	}
	action := uc.config.Dispatch[file.FileType]

	switch file.FileType {
	case models.FileTypeCluster:
		result, err := uc.submit(ctx, tx, file, []string{file.Id}, action, userId, opts, false)
		if err != nil {
			return result, err
		}
		if resolution.Completed() {
			err = uc.scheduleCoordinateLabels(ctx, tx, resolution.Bundle.FilesOfType(models.FileTypeCoordinateLabels), userId, opts)
		}
		return result, err

	case models.FileTypeCoordinateLabels:
		if !resolution.Completed() {
			return waitingOnBundle(file), nil
		}
		return uc.submit(ctx, tx, file, []string{file.Id}, action, userId, opts, false)

	case models.FileTypeMMCoordinateMatrix, models.FileType10XGenes, models.FileType10XBarcodes:
		if !resolution.Completed() {
			if file.IsLocal {
				// the upload is still copied to the study bucket while the rest of the bundle is missing
				err := uc.taskQueueRepository.EnqueuePushTask(ctx, tx,
					models.PushStudyFileArgs{StudyId: file.StudyId, StudyFileId: file.Id})
				if err != nil {
					return models.ParseResult{}, err
				}
			}
			return waitingOnBundle(file), nil
		}

		bundle := resolution.Bundle
		matrix := file
		matrixAction := action
		if file.FileType != models.FileTypeMMCoordinateMatrix {
			matrix, err = uc.repository.GetStudyFileById(ctx, tx, bundle.ParentId)
			if err != nil {
				return models.ParseResult{}, err
			}
			matrixAction = uc.config.Dispatch[models.FileTypeMMCoordinateMatrix]
			if file.IsLocal {
				err := uc.taskQueueRepository.EnqueuePushTask(ctx, tx,
					models.PushStudyFileArgs{StudyId: file.StudyId, StudyFileId: file.Id})
				if err != nil {
					return models.ParseResult{}, err
				}
			}
		}
		if matrix.IsParsing(time.Now()) {
			return models.ParseResult{
				Outcome: models.ParseOutcomeAlreadyParsing,
				Message: fmt.Sprintf("%s is already being parsed", matrix.UploadFileName),
			}, nil
		}
		// genes and barcodes ride along with the job of the matrix
		skipPush := file.FileType != models.FileTypeMMCoordinateMatrix
		return uc.submit(ctx, tx, matrix, bundle.MemberIds(), matrixAction, userId, opts, skipPush)

	case models.FileTypeAnalysisOutput:
		analysis := file.Option(models.OptionAnalysisName)
		visualization := file.Option(models.OptionVisualizationName)
		if analysis != models.AnalysisNameInferCnv || visualization != models.VisualizationNameIdeogram {
			logger.InfoContext(ctx, "no extraction for this analysis output",
				"study_file_id", file.Id, "analysis_name", analysis, "visualization_name", visualization)
			return models.ParseResult{
				Outcome: models.ParseOutcomeNotParseable,
				Message: fmt.Sprintf("nothing to extract from %s for analysis '%s'", file.UploadFileName, analysis),
			}, nil
		}
		return uc.submit(ctx, tx, file, []string{file.Id}, action, userId, opts, false)

	case models.FileTypeExpressionMatrix,
		models.FileTypeMetadata,
		models.FileTypeGeneList:
		return uc.submit(ctx, tx, file, []string{file.Id}, action, userId, opts, false)

	// the ingestion engine has no pipeline for these, even when the dispatch table maps them to an action
	case models.FileTypeBAM,
		models.FileTypeBAMIndex,
		models.FileTypeFastq,
		models.FileTypeDocumentation,
		models.FileTypeOther:
		logger.WarnContext(ctx, "dispatch table maps a file type without ingestion pipeline",
			"study_file_id", file.Id, "file_type", file.FileType.String(), "action", action)
		return models.ParseResult{
			Outcome: models.ParseOutcomeNotParseable,
			Message: fmt.Sprintf("%s is not parseable as %s", file.UploadFileName, file.FileType.String()),
		}, nil

	default:
		return models.ParseResult{}, errors.AssertionFailedf("unhandled study file type %d", int(file.FileType))
	}
}

// submit leases all the files at once, then enqueues the ingestion of the target in the same transaction
func (uc FileParseUsecase) submit(
	ctx context.Context,
	tx repositories.Transaction,
	target models.StudyFile,
	leasedFileIds []string,
	action models.IngestAction,
	userId string,
	opts models.ParseOptions,
	skipPush bool,
) (models.ParseResult, error) {
	holderId := uuid.NewString()

	err := uc.repository.AcquireParseLease(ctx, tx, models.AcquireParseLeaseInput{
		StudyFileIds: leasedFileIds,
		HolderId:     holderId,
		ExpiresAt:    time.Now().Add(uc.config.ParseLeaseDuration),
	})
	if err != nil {
		return models.ParseResult{}, err
	}

	err = uc.taskQueueRepository.EnqueueIngestTask(ctx, tx, models.IngestJob{
		Action:        action,
		StudyId:       target.StudyId,
		StudyFileId:   target.Id,
		UserId:        userId,
		Reparse:       opts.Reparse,
		PersistOnFail: opts.PersistOnFail,
		SkipPush:      skipPush,
		LeaseHolderId: holderId,
	})
	if err != nil {
		return models.ParseResult{}, err
	}

	return models.ParseResult{
		Outcome:       models.ParseOutcomeSubmitted,
		Message:       fmt.Sprintf("%s submitted for %s", target.UploadFileName, action),
		LeasedFileIds: leasedFileIds,
	}, nil
}

// scheduleCoordinateLabels delays the labels of a cluster until the cluster ingestion has created its identifiers
func (uc FileParseUsecase) scheduleCoordinateLabels(
	ctx context.Context,
	tx repositories.Transaction,
	labels []models.BundledFile,
	userId string,
	opts models.ParseOptions,
) error {
	runAt := time.Now().Add(uc.config.CoordinateLabelsDelay)
	for _, label := range labels {
		err := uc.taskQueueRepository.EnqueueDispatchTask(ctx, tx, models.DispatchStudyFileArgs{
			StudyFileId:   label.StudyFileId,
			UserId:        userId,
			Reparse:       opts.Reparse,
			PersistOnFail: opts.PersistOnFail,
		}, runAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// FinishParse releases the leases of the holder. It is a no-op if the leases were taken over in the meantime.
func (uc FileParseUsecase) FinishParse(ctx context.Context, holderId string, studyFileId string, success bool) error {
	released, err := uc.repository.FinishParse(ctx, uc.executorFactory.NewExecutor(), models.FinishParseInput{
		StudyFileId: studyFileId,
		HolderId:    holderId,
		Success:     success,
	})
	if err != nil {
		return err
	}
	if !released {
		utils.LoggerFromContext(ctx).WarnContext(ctx, "parse lease was not held anymore when the parse finished",
			"study_file_id", studyFileId, "lease_holder_id", holderId)
	}
	return nil
}

func waitingOnBundle(file models.StudyFile) models.ParseResult {
	return models.ParseResult{
		Outcome: models.ParseOutcomeWaitingOnBundle,
		Message: fmt.Sprintf("%s is waiting for the other files of its bundle", file.UploadFileName),
	}
}
