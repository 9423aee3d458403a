package usecases

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories"
	"github.com/singlecellportal/ingest-orchestrator/usecases/executor_factory"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

type ingestRunRepository interface {
	GetStudyById(ctx context.Context, exec repositories.Executor, id string) (models.Study, error)
	GetStudyFileById(ctx context.Context, exec repositories.Executor, id string) (models.StudyFile, error)
	UpdateStudyFile(ctx context.Context, exec repositories.Executor, input models.UpdateStudyFileInput) error
}

type studyFilePusher interface {
	PushStudyFile(ctx context.Context, args models.PushStudyFileArgs) error
}

type parseFinisher interface {
	FinishParse(ctx context.Context, holderId string, studyFileId string, success bool) error
}

// IngestRunUsecase drives one ingestion job against the ingestion engine. The run is named after the lease
// holder, so that a job delivered twice finds the run submitted by the first delivery.
type IngestRunUsecase struct {
	executorFactory    executor_factory.ExecutorFactory
	repository         ingestRunRepository
	blobRepository     repositories.BlobRepository
	pipelineRepository repositories.PipelineRepository
	pusher             studyFilePusher
	parseFinisher      parseFinisher
	config             models.PipelineConfiguration
}

func NewIngestRunUsecase(
	executorFactory executor_factory.ExecutorFactory,
	repository ingestRunRepository,
	blobRepository repositories.BlobRepository,
	pipelineRepository repositories.PipelineRepository,
	pusher studyFilePusher,
	parseFinisher parseFinisher,
	config models.PipelineConfiguration,
) IngestRunUsecase {
	return IngestRunUsecase{
		executorFactory:    executorFactory,
		repository:         repository,
		blobRepository:     blobRepository,
		pipelineRepository: pipelineRepository,
		pusher:             pusher,
		parseFinisher:      parseFinisher,
		config:             config,
	}
}

// RunIngestJob submits the run on the first call and returns its status on the next ones. The parse lease is
// released once the run reaches a terminal status.
func (uc IngestRunUsecase) RunIngestJob(ctx context.Context, job models.IngestJob) (models.PipelineRunStatus, error) {
	logger := utils.LoggerFromContext(ctx)
	exec := uc.executorFactory.NewExecutor()

	file, err := uc.repository.GetStudyFileById(ctx, exec, job.StudyFileId)
	if errors.Is(err, models.NotFoundError) {
		logger.InfoContext(ctx, "study file was deleted before its ingestion", "study_file_id", job.StudyFileId)
		return models.PipelineRunFailed, uc.parseFinisher.FinishParse(ctx, job.LeaseHolderId, job.StudyFileId, false)
	} else if err != nil {
		return "", err
	}
	if file.ParseLease.HolderId != job.LeaseHolderId {
		logger.WarnContext(ctx, "parse lease of the study file belongs to another dispatch, dropping the job",
			"study_file_id", file.Id, "lease_holder_id", job.LeaseHolderId)
		return models.PipelineRunFailed, nil
	}
	study, err := uc.repository.GetStudyById(ctx, exec, file.StudyId)
	if err != nil {
		return "", err
	}

	if job.Action == models.IngestActionInitializePrecomputedScores {
		request, err := uc.runRequest(ctx, job, study, file)
		if err != nil {
			return "", err
		}
		if err := uc.pipelineRepository.InitializePrecomputedScores(ctx, request); err != nil {
			return "", err
		}
		return uc.finish(ctx, job, file, models.PipelineRun{Name: job.LeaseHolderId, Status: models.PipelineRunSucceeded})
	}

	run, err := uc.pipelineRepository.GetRun(ctx, job.LeaseHolderId)
	if errors.Is(err, models.NotFoundError) {
		return uc.submit(ctx, job, study, file)
	} else if err != nil {
		return "", err
	}

	if !run.Status.Terminal() {
		return run.Status, nil
	}
	return uc.finish(ctx, job, file, run)
}

func (uc IngestRunUsecase) submit(
	ctx context.Context,
	job models.IngestJob,
	study models.Study,
	file models.StudyFile,
) (models.PipelineRunStatus, error) {
	// a generation means an earlier delivery already pushed the local copy
	if file.IsLocal && !job.SkipPush && file.Generation == nil {
		err := uc.pusher.PushStudyFile(ctx, models.PushStudyFileArgs{StudyId: study.Id, StudyFileId: file.Id})
		if err != nil {
			return "", err
		}
	}

	request, err := uc.runRequest(ctx, job, study, file)
	if err != nil {
		return "", err
	}
	if err := uc.pipelineRepository.SubmitRun(ctx, request); err != nil {
		return "", err
	}

	utils.LoggerFromContext(ctx).InfoContext(ctx, "ingestion run submitted",
		"study_file_id", file.Id, "action", job.Action, "run_name", request.RunName)
	return models.PipelineRunQueued, nil
}

func (uc IngestRunUsecase) finish(
	ctx context.Context,
	job models.IngestJob,
	file models.StudyFile,
	run models.PipelineRun,
) (models.PipelineRunStatus, error) {
	logger := utils.LoggerFromContext(ctx)
	success := run.Status == models.PipelineRunSucceeded

	utils.MetricIngestRunCount.With(prometheus.Labels{"action": string(job.Action), "status": string(run.Status)}).Inc()
	if !success {
		logger.WarnContext(ctx, "ingestion run failed",
			"study_file_id", file.Id, "action", job.Action, "run_name", run.Name, "error", run.Error)
		if !job.PersistOnFail {
			queued := true
			err := uc.repository.UpdateStudyFile(ctx, uc.executorFactory.NewExecutor(), models.UpdateStudyFileInput{
				Id:                file.Id,
				QueuedForDeletion: &queued,
			})
			if err != nil {
				return "", err
			}
		}
	}

	if err := uc.parseFinisher.FinishParse(ctx, job.LeaseHolderId, file.Id, success); err != nil {
		return "", err
	}
	return run.Status, nil
}

func (uc IngestRunUsecase) runRequest(
	ctx context.Context,
	job models.IngestJob,
	study models.Study,
	file models.StudyFile,
) (models.PipelineRunRequest, error) {
	fileUrl, err := uc.blobRepository.GenerateSignedUrl(ctx,
		uc.blobRepository.StudyBucketUrl(study.BucketId), file.RemotePath(), uc.config.SignedUrlTtl)
	if err != nil {
		return models.PipelineRunRequest{}, err
	}

	return models.PipelineRunRequest{
		RunName:            job.LeaseHolderId,
		Action:             job.Action,
		StudyId:            study.Id,
		StudyAccession:     study.Accession,
		StudyFileId:        file.Id,
		FileType:           file.FileType.String(),
		FileUrl:            fileUrl,
		UserId:             job.UserId,
		Reparse:            job.Reparse,
		PersistOnFail:      job.PersistOnFail,
		FirecloudProject:   study.FirecloudProject,
		FirecloudWorkspace: study.FirecloudWorkspace,
	}, nil
}
