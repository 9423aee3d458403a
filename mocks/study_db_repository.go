package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories"
)

type StudyDbRepository struct {
	mock.Mock
}

func (m *StudyDbRepository) GetStudyById(ctx context.Context, exec repositories.Executor, id string) (models.Study, error) {
	args := m.Called(ctx, exec, id)
	return args.Get(0).(models.Study), args.Error(1)
}

func (m *StudyDbRepository) GetStudyFileById(ctx context.Context, exec repositories.Executor, id string) (models.StudyFile, error) {
	args := m.Called(ctx, exec, id)
	return args.Get(0).(models.StudyFile), args.Error(1)
}

func (m *StudyDbRepository) ListStudyFilesByTypesAndOption(
	ctx context.Context,
	exec repositories.Executor,
	studyId string,
	fileTypes []models.StudyFileType,
	optionKey string,
	optionValue string,
) ([]models.StudyFile, error) {
	args := m.Called(ctx, exec, studyId, fileTypes, optionKey, optionValue)
	return args.Get(0).([]models.StudyFile), args.Error(1)
}

func (m *StudyDbRepository) AcquireParseLease(ctx context.Context, tx repositories.Transaction, input models.AcquireParseLeaseInput) error {
	args := m.Called(ctx, tx, input)
	return args.Error(0)
}

func (m *StudyDbRepository) FinishParse(ctx context.Context, exec repositories.Executor, input models.FinishParseInput) (bool, error) {
	args := m.Called(ctx, exec, input)
	return args.Bool(0), args.Error(1)
}

func (m *StudyDbRepository) UpdateStudyFile(ctx context.Context, exec repositories.Executor, input models.UpdateStudyFileInput) error {
	args := m.Called(ctx, exec, input)
	return args.Error(0)
}

func (m *StudyDbRepository) ListFailedUploads(
	ctx context.Context,
	exec repositories.Executor,
	filter models.FailedUploadsFilter,
) ([]models.StudyFile, error) {
	args := m.Called(ctx, exec, filter)
	return args.Get(0).([]models.StudyFile), args.Error(1)
}

func (m *StudyDbRepository) GetBundleByParentId(
	ctx context.Context,
	exec repositories.Executor,
	parentId string,
) (*models.StudyFileBundle, error) {
	args := m.Called(ctx, exec, parentId)
	return args.Get(0).(*models.StudyFileBundle), args.Error(1)
}

func (m *StudyDbRepository) CreateBundle(ctx context.Context, tx repositories.Transaction, input models.CreateStudyFileBundleInput) error {
	args := m.Called(ctx, tx, input)
	return args.Error(0)
}

func (m *StudyDbRepository) AddFilesToBundle(
	ctx context.Context,
	exec repositories.Executor,
	bundleId string,
	files []models.BundledFile,
) error {
	args := m.Called(ctx, exec, bundleId, files)
	return args.Error(0)
}

func (m *StudyDbRepository) CreateNotification(ctx context.Context, exec repositories.Executor, notification models.Notification) error {
	args := m.Called(ctx, exec, notification)
	return args.Error(0)
}
