package usecases

import (
	"context"

	"github.com/singlecellportal/ingest-orchestrator/repositories"
	"github.com/singlecellportal/ingest-orchestrator/usecases/executor_factory"
)

type livenessRepository interface {
	Liveness(ctx context.Context, exec repositories.Executor) error
}

// LivenessUsecase backs the probe endpoint of the worker: the process is alive as long as the portal database answers
type LivenessUsecase struct {
	executorFactory    executor_factory.ExecutorFactory
	livenessRepository livenessRepository
}

func (u *LivenessUsecase) Liveness(ctx context.Context) error {
	return u.livenessRepository.Liveness(ctx, u.executorFactory.NewExecutor())
}
