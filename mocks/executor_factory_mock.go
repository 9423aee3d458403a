package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/singlecellportal/ingest-orchestrator/repositories"
)

type ExecutorFactory struct {
	mock.Mock
	ExecMock *Executor
}

func (f *ExecutorFactory) NewExecutor() repositories.Executor {
	f.Called()
	return f.ExecMock
}
