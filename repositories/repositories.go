package repositories

import (
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"

	"github.com/singlecellportal/ingest-orchestrator/infra"
)

type Repositories struct {
	ExecutorGetter      ExecutorGetter
	StudyDbRepository   *StudyDbRepository
	TaskQueueRepository TaskQueueRepository
	BlobRepository      BlobRepository
	PipelineRepository  PipelineRepository
}

type options struct {
	riverClient *river.Client[pgx.Tx]
	httpClient  *http.Client
}

type Option func(*options)

func WithRiverClient(client *river.Client[pgx.Tx]) Option {
	return func(o *options) {
		o.riverClient = client
	}
}

// WithHttpClient sets the client used to call the ingestion engine, typically instrumented with otelhttp
func WithHttpClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

func NewRepositories(
	pool *pgxpool.Pool,
	blobRepository BlobRepository,
	pipelineConfig infra.PipelineApiConfig,
	opts ...Option,
) Repositories {
	options := &options{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(options)
	}

	repositories := Repositories{
		ExecutorGetter:     NewExecutorGetter(pool),
		StudyDbRepository:  NewStudyDbRepository(),
		BlobRepository:     blobRepository,
		PipelineRepository: NewPipelineRepository(pipelineConfig, options.httpClient),
	}
	if options.riverClient != nil {
		repositories.TaskQueueRepository = NewTaskQueueRepository(options.riverClient)
	}
	return repositories
}
