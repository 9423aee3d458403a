package usecases

import (
	"github.com/riverqueue/river"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories"
	"github.com/singlecellportal/ingest-orchestrator/usecases/executor_factory"
	"github.com/singlecellportal/ingest-orchestrator/usecases/worker_jobs"
)

type Usecases struct {
	Repositories   repositories.Repositories
	pipelineConfig models.PipelineConfiguration
	adminEmail     string
	environment    string
	sweepSchedule  string
}

type Option func(*options)

func WithAdminEmail(email string) Option {
	return func(o *options) {
		o.adminEmail = email
	}
}

func WithEnvironment(env string) Option {
	return func(o *options) {
		o.environment = env
	}
}

// WithFailedUploadSweepSchedule replaces the sweep interval of the pipeline configuration by a cron expression
func WithFailedUploadSweepSchedule(cron string) Option {
	return func(o *options) {
		o.sweepSchedule = cron
	}
}

type options struct {
	adminEmail    string
	environment   string
	sweepSchedule string
}

func newUsecasesWithOptions(
	repositories repositories.Repositories,
	pipelineConfig models.PipelineConfiguration,
	o *options,
) Usecases {
	if o.environment == "" {
		o.environment = "development"
	}
	return Usecases{
		Repositories:   repositories,
		pipelineConfig: pipelineConfig,
		adminEmail:     o.adminEmail,
		environment:    o.environment,
		sweepSchedule:  o.sweepSchedule,
	}
}

func NewUsecases(repositories repositories.Repositories, pipelineConfig models.PipelineConfiguration, opts ...Option) Usecases {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return newUsecasesWithOptions(repositories, pipelineConfig, o)
}

func (usecases *Usecases) NewExecutorFactory() executor_factory.ExecutorFactory {
	return executor_factory.NewDbExecutorFactory(usecases.Repositories.ExecutorGetter)
}

func (usecases *Usecases) NewTransactionFactory() executor_factory.TransactionFactory {
	return executor_factory.NewDbExecutorFactory(usecases.Repositories.ExecutorGetter)
}

func (usecases *Usecases) NewLivenessUsecase() LivenessUsecase {
	return LivenessUsecase{
		executorFactory:    usecases.NewExecutorFactory(),
		livenessRepository: usecases.Repositories.StudyDbRepository,
	}
}

func (usecases *Usecases) NewBundleResolver() BundleResolver {
	return NewBundleResolver(usecases.Repositories.StudyDbRepository, usecases.pipelineConfig.Bundles)
}

func (usecases *Usecases) NewNotificationUsecase() NotificationUsecase {
	return NewNotificationUsecase(
		usecases.NewExecutorFactory(),
		usecases.Repositories.StudyDbRepository,
		usecases.adminEmail,
		usecases.environment,
	)
}

func (usecases *Usecases) NewFileParseUsecase() FileParseUsecase {
	return NewFileParseUsecase(
		usecases.NewExecutorFactory(),
		usecases.NewTransactionFactory(),
		usecases.Repositories.StudyDbRepository,
		usecases.NewBundleResolver(),
		usecases.Repositories.TaskQueueRepository,
		usecases.NewNotificationUsecase(),
		usecases.pipelineConfig,
	)
}

func (usecases *Usecases) NewStudyFileUploadUsecase() StudyFileUploadUsecase {
	return NewStudyFileUploadUsecase(
		usecases.NewExecutorFactory(),
		usecases.NewTransactionFactory(),
		usecases.Repositories.StudyDbRepository,
		usecases.Repositories.BlobRepository,
		usecases.Repositories.TaskQueueRepository,
		usecases.NewFileParseUsecase(),
		usecases.pipelineConfig,
	)
}

func (usecases *Usecases) NewUploadCleanupUsecase() UploadCleanupUsecase {
	return NewUploadCleanupUsecase(
		usecases.NewExecutorFactory(),
		usecases.NewTransactionFactory(),
		usecases.Repositories.StudyDbRepository,
		usecases.Repositories.BlobRepository,
		usecases.Repositories.TaskQueueRepository,
		usecases.NewNotificationUsecase(),
		usecases.pipelineConfig,
		usecases.environment,
	)
}

func (usecases *Usecases) NewIngestRunUsecase() IngestRunUsecase {
	return NewIngestRunUsecase(
		usecases.NewExecutorFactory(),
		usecases.Repositories.StudyDbRepository,
		usecases.Repositories.BlobRepository,
		usecases.Repositories.PipelineRepository,
		usecases.NewStudyFileUploadUsecase(),
		usecases.NewFileParseUsecase(),
		usecases.pipelineConfig,
	)
}

func (usecases *Usecases) NewIngestStudyFileWorker() *worker_jobs.IngestStudyFileWorker {
	return worker_jobs.NewIngestStudyFileWorker(usecases.NewIngestRunUsecase())
}

func (usecases *Usecases) NewDispatchStudyFileWorker() *worker_jobs.DispatchStudyFileWorker {
	return worker_jobs.NewDispatchStudyFileWorker(usecases.NewFileParseUsecase())
}

func (usecases *Usecases) NewPushStudyFileWorker() *worker_jobs.PushStudyFileWorker {
	return worker_jobs.NewPushStudyFileWorker(usecases.NewStudyFileUploadUsecase())
}

func (usecases *Usecases) NewUploadCleanupWorker() *worker_jobs.UploadCleanupWorker {
	return worker_jobs.NewUploadCleanupWorker(usecases.NewUploadCleanupUsecase())
}

func (usecases *Usecases) NewFailedUploadSweepWorker() *worker_jobs.FailedUploadSweepWorker {
	return worker_jobs.NewFailedUploadSweepWorker(usecases.NewUploadCleanupUsecase())
}

func (usecases *Usecases) NewFailedUploadSweepPeriodicJob() (*river.PeriodicJob, error) {
	return worker_jobs.NewFailedUploadSweepPeriodicJob(usecases.pipelineConfig.FailedUploadSweepInterval, usecases.sweepSchedule)
}
