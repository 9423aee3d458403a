package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/singlecellportal/ingest-orchestrator/models"
)

type PipelineRepository struct {
	mock.Mock
}

func (m *PipelineRepository) SubmitRun(ctx context.Context, request models.PipelineRunRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *PipelineRepository) GetRun(ctx context.Context, runName string) (models.PipelineRun, error) {
	args := m.Called(ctx, runName)
	return args.Get(0).(models.PipelineRun), args.Error(1)
}

func (m *PipelineRepository) InitializePrecomputedScores(ctx context.Context, request models.PipelineRunRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}
