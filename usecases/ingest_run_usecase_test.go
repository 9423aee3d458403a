package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/singlecellportal/ingest-orchestrator/mocks"
	"github.com/singlecellportal/ingest-orchestrator/models"
)

type pusherMock struct {
	mock.Mock
}

func (m *pusherMock) PushStudyFile(ctx context.Context, args models.PushStudyFileArgs) error {
	return m.Called(ctx, args).Error(0)
}

type parseFinisherMock struct {
	mock.Mock
}

func (m *parseFinisherMock) FinishParse(ctx context.Context, holderId string, studyFileId string, success bool) error {
	return m.Called(ctx, holderId, studyFileId, success).Error(0)
}

type IngestRunUsecaseTestSuite struct {
	suite.Suite
	executorFactory *mocks.ExecutorFactory
	exec            *mocks.Executor
	repository      *mocks.StudyDbRepository
	blobRepository  *mocks.BlobRepository
	pipeline        *mocks.PipelineRepository
	pusher          *pusherMock
	finisher        *parseFinisherMock

	ctx    context.Context
	config models.PipelineConfiguration
	study  models.Study
	file   models.StudyFile
	job    models.IngestJob
}

func (suite *IngestRunUsecaseTestSuite) SetupTest() {
	suite.exec = new(mocks.Executor)
	suite.executorFactory = &mocks.ExecutorFactory{ExecMock: suite.exec}
	suite.repository = new(mocks.StudyDbRepository)
	suite.blobRepository = new(mocks.BlobRepository)
	suite.pipeline = new(mocks.PipelineRepository)
	suite.pusher = new(pusherMock)
	suite.finisher = new(parseFinisherMock)

	suite.ctx = context.Background()
	suite.config = models.PipelineConfiguration{SignedUrlTtl: time.Hour}
	suite.study = models.Study{
		Id:                 testStudyId,
		Accession:          "SCP1",
		BucketId:           "fc-bucket-1",
		FirecloudProject:   "single-cell-portal",
		FirecloudWorkspace: "human-brain",
	}
	suite.file = models.StudyFile{
		Id:             "matrix",
		StudyId:        testStudyId,
		FileType:       models.FileTypeExpressionMatrix,
		UploadFileName: "matrix.tsv",
		ParseState:     models.ParseStateParsing,
		ParseLease:     models.ParseLease{HolderId: "holder-1"},
	}
	suite.job = models.IngestJob{
		Action:        models.IngestActionExpression,
		StudyId:       testStudyId,
		StudyFileId:   "matrix",
		UserId:        testUserId,
		LeaseHolderId: "holder-1",
	}

	suite.executorFactory.On("NewExecutor").Return()
}

func (suite *IngestRunUsecaseTestSuite) makeUsecase() IngestRunUsecase {
	return NewIngestRunUsecase(
		suite.executorFactory,
		suite.repository,
		suite.blobRepository,
		suite.pipeline,
		suite.pusher,
		suite.finisher,
		suite.config,
	)
}

func (suite *IngestRunUsecaseTestSuite) expectFileAndStudy() {
	suite.repository.On("GetStudyFileById", suite.ctx, suite.exec, "matrix").Return(suite.file, nil)
	suite.repository.On("GetStudyById", suite.ctx, suite.exec, testStudyId).Return(suite.study, nil)
}

func (suite *IngestRunUsecaseTestSuite) expectedRequest() models.PipelineRunRequest {
	return models.PipelineRunRequest{
		RunName:            "holder-1",
		Action:             models.IngestActionExpression,
		StudyId:            testStudyId,
		StudyAccession:     "SCP1",
		StudyFileId:        "matrix",
		FileType:           "Expression Matrix",
		FileUrl:            "https://signed/matrix.tsv",
		UserId:             testUserId,
		FirecloudProject:   "single-cell-portal",
		FirecloudWorkspace: "human-brain",
	}
}

func (suite *IngestRunUsecaseTestSuite) expectSignedUrl() {
	suite.blobRepository.On("GenerateSignedUrl", suite.ctx, "gs://fc-bucket-1", "matrix.tsv", time.Hour).
		Return("https://signed/matrix.tsv", nil)
}

func (suite *IngestRunUsecaseTestSuite) AssertExpectations() {
	t := suite.T()
	suite.repository.AssertExpectations(t)
	suite.blobRepository.AssertExpectations(t)
	suite.pipeline.AssertExpectations(t)
	suite.pusher.AssertExpectations(t)
	suite.finisher.AssertExpectations(t)
}

func (suite *IngestRunUsecaseTestSuite) TestFirstRun_Submits() {
	suite.expectFileAndStudy()
	suite.expectSignedUrl()
	suite.pipeline.On("GetRun", suite.ctx, "holder-1").Return(models.PipelineRun{}, errors.Wrap(models.NotFoundError, "run"))
	suite.pipeline.On("SubmitRun", suite.ctx, suite.expectedRequest()).Return(nil)

	status, err := suite.makeUsecase().RunIngestJob(suite.ctx, suite.job)

	suite.NoError(err)
	suite.Equal(models.PipelineRunQueued, status)
	suite.AssertExpectations()
}

func (suite *IngestRunUsecaseTestSuite) TestFirstRun_PushesLocalFile() {
	suite.file.IsLocal = true
	suite.expectFileAndStudy()
	suite.expectSignedUrl()
	suite.pipeline.On("GetRun", suite.ctx, "holder-1").Return(models.PipelineRun{}, errors.Wrap(models.NotFoundError, "run"))
	suite.pusher.On("PushStudyFile", suite.ctx, models.PushStudyFileArgs{StudyId: testStudyId, StudyFileId: "matrix"}).Return(nil)
	suite.pipeline.On("SubmitRun", suite.ctx, suite.expectedRequest()).Return(nil)

	_, err := suite.makeUsecase().RunIngestJob(suite.ctx, suite.job)

	suite.NoError(err)
	suite.AssertExpectations()
}

func (suite *IngestRunUsecaseTestSuite) TestFirstRun_AlreadyPushedByEarlierDelivery() {
	generation := "1700000000"
	suite.file.IsLocal = true
	suite.file.Generation = &generation
	suite.expectFileAndStudy()
	suite.expectSignedUrl()
	suite.pipeline.On("GetRun", suite.ctx, "holder-1").Return(models.PipelineRun{}, errors.Wrap(models.NotFoundError, "run"))
	suite.pipeline.On("SubmitRun", suite.ctx, suite.expectedRequest()).Return(nil)

	status, err := suite.makeUsecase().RunIngestJob(suite.ctx, suite.job)

	suite.NoError(err)
	suite.Equal(models.PipelineRunQueued, status)
	suite.pusher.AssertNotCalled(suite.T(), "PushStudyFile", mock.Anything, mock.Anything)
	suite.AssertExpectations()
}

func (suite *IngestRunUsecaseTestSuite) TestRunOngoing() {
	suite.expectFileAndStudy()
	suite.pipeline.On("GetRun", suite.ctx, "holder-1").Return(models.PipelineRun{Name: "holder-1", Status: models.PipelineRunRunning}, nil)

	status, err := suite.makeUsecase().RunIngestJob(suite.ctx, suite.job)

	suite.NoError(err)
	suite.Equal(models.PipelineRunRunning, status)
	suite.finisher.AssertNotCalled(suite.T(), "FinishParse")
	suite.AssertExpectations()
}

func (suite *IngestRunUsecaseTestSuite) TestRunSucceeded_ReleasesLease() {
	suite.expectFileAndStudy()
	suite.pipeline.On("GetRun", suite.ctx, "holder-1").Return(models.PipelineRun{Name: "holder-1", Status: models.PipelineRunSucceeded}, nil)
	suite.finisher.On("FinishParse", suite.ctx, "holder-1", "matrix", true).Return(nil)

	status, err := suite.makeUsecase().RunIngestJob(suite.ctx, suite.job)

	suite.NoError(err)
	suite.Equal(models.PipelineRunSucceeded, status)
	suite.AssertExpectations()
}

func (suite *IngestRunUsecaseTestSuite) TestRunFailed_QueuesFileForDeletion() {
	queued := true
	suite.expectFileAndStudy()
	suite.pipeline.On("GetRun", suite.ctx, "holder-1").
		Return(models.PipelineRun{Name: "holder-1", Status: models.PipelineRunFailed, Error: "malformed header"}, nil)
	suite.repository.On("UpdateStudyFile", suite.ctx, suite.exec, models.UpdateStudyFileInput{
		Id:                "matrix",
		QueuedForDeletion: &queued,
	}).Return(nil)
	suite.finisher.On("FinishParse", suite.ctx, "holder-1", "matrix", false).Return(nil)

	status, err := suite.makeUsecase().RunIngestJob(suite.ctx, suite.job)

	suite.NoError(err)
	suite.Equal(models.PipelineRunFailed, status)
	suite.AssertExpectations()
}

func (suite *IngestRunUsecaseTestSuite) TestRunFailed_PersistOnFail() {
	suite.job.PersistOnFail = true
	suite.expectFileAndStudy()
	suite.pipeline.On("GetRun", suite.ctx, "holder-1").Return(models.PipelineRun{Name: "holder-1", Status: models.PipelineRunFailed}, nil)
	suite.finisher.On("FinishParse", suite.ctx, "holder-1", "matrix", false).Return(nil)

	_, err := suite.makeUsecase().RunIngestJob(suite.ctx, suite.job)

	suite.NoError(err)
	suite.repository.AssertNotCalled(suite.T(), "UpdateStudyFile")
	suite.AssertExpectations()
}

func (suite *IngestRunUsecaseTestSuite) TestLeaseTakenOver_DropsJob() {
	suite.file.ParseLease = models.ParseLease{HolderId: "holder-2"}
	suite.repository.On("GetStudyFileById", suite.ctx, suite.exec, "matrix").Return(suite.file, nil)

	status, err := suite.makeUsecase().RunIngestJob(suite.ctx, suite.job)

	suite.NoError(err)
	suite.True(status.Terminal())
	suite.pipeline.AssertNotCalled(suite.T(), "GetRun")
	suite.AssertExpectations()
}

func (suite *IngestRunUsecaseTestSuite) TestGeneList_InitializesScoresSynchronously() {
	suite.job.Action = models.IngestActionInitializePrecomputedScores
	suite.expectFileAndStudy()
	suite.expectSignedUrl()
	request := suite.expectedRequest()
	request.Action = models.IngestActionInitializePrecomputedScores
	suite.pipeline.On("InitializePrecomputedScores", suite.ctx, request).Return(nil)
	suite.finisher.On("FinishParse", suite.ctx, "holder-1", "matrix", true).Return(nil)

	status, err := suite.makeUsecase().RunIngestJob(suite.ctx, suite.job)

	suite.NoError(err)
	suite.Equal(models.PipelineRunSucceeded, status)
	suite.pipeline.AssertNotCalled(suite.T(), "GetRun")
	suite.AssertExpectations()
}

func (suite *IngestRunUsecaseTestSuite) TestEngineUnavailable() {
	suite.expectFileAndStudy()
	suite.pipeline.On("GetRun", suite.ctx, "holder-1").Return(models.PipelineRun{}, errors.New("503 Service Unavailable"))

	_, err := suite.makeUsecase().RunIngestJob(suite.ctx, suite.job)

	suite.Error(err)
	suite.finisher.AssertNotCalled(suite.T(), "FinishParse")
}

func TestIngestRunUsecase(t *testing.T) {
	suite.Run(t, new(IngestRunUsecaseTestSuite))
}
