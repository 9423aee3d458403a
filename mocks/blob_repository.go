package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/singlecellportal/ingest-orchestrator/models"
)

type BlobRepository struct {
	mock.Mock
}

func (m *BlobRepository) StudyBucketUrl(bucketId string) string {
	return "gs://" + bucketId
}

func (m *BlobRepository) LocalBucketUrl() string {
	return "file:///tmp/uploads"
}

func (m *BlobRepository) GetObjectMetadata(ctx context.Context, bucketUrl, fileName string) (models.RemoteObject, error) {
	args := m.Called(ctx, bucketUrl, fileName)
	return args.Get(0).(models.RemoteObject), args.Error(1)
}

func (m *BlobRepository) Exists(ctx context.Context, bucketUrl, fileName string) (bool, error) {
	args := m.Called(ctx, bucketUrl, fileName)
	return args.Bool(0), args.Error(1)
}

func (m *BlobRepository) GetBlob(ctx context.Context, bucketUrl, fileName string) (models.Blob, error) {
	args := m.Called(ctx, bucketUrl, fileName)
	return args.Get(0).(models.Blob), args.Error(1)
}

func (m *BlobRepository) OpenStream(ctx context.Context, bucketUrl, fileName string) (io.WriteCloser, error) {
	args := m.Called(ctx, bucketUrl, fileName)
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *BlobRepository) CopyFile(
	ctx context.Context,
	srcBucketUrl, srcFileName, dstBucketUrl, dstFileName string,
) (models.RemoteObject, error) {
	args := m.Called(ctx, srcBucketUrl, srcFileName, dstBucketUrl, dstFileName)
	return args.Get(0).(models.RemoteObject), args.Error(1)
}

func (m *BlobRepository) DeleteFile(ctx context.Context, bucketUrl, fileName string) error {
	args := m.Called(ctx, bucketUrl, fileName)
	return args.Error(0)
}

func (m *BlobRepository) GenerateSignedUrl(ctx context.Context, bucketUrl, fileName string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, bucketUrl, fileName, ttl)
	return args.String(0), args.Error(1)
}
