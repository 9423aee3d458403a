package repositories

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singlecellportal/ingest-orchestrator/infra"
	"github.com/singlecellportal/ingest-orchestrator/models"
)

func newFileBlobRepository(t *testing.T) (BlobRepository, string) {
	t.Helper()
	root := t.TempDir()
	localDir := filepath.Join(root, "local")
	require.NoError(t, os.MkdirAll(localDir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "studies", "fc-bucket-1"), 0o755))

	repo, err := NewBlobRepository(infra.StorageConfig{
		LocalBucketUrl:    "file://" + localDir,
		StudyBucketScheme: "file",
		StudyBucketRoot:   filepath.Join(root, "studies"),
	}, "")
	require.NoError(t, err)
	return repo, root
}

func writeBlob(t *testing.T, repo BlobRepository, bucketUrl, fileName, content string) {
	t.Helper()
	w, err := repo.OpenStream(context.Background(), bucketUrl, fileName)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestBlobRepository_StudyBucketUrl(t *testing.T) {
	gcs, err := NewBlobRepository(infra.StorageConfig{}, "")
	require.NoError(t, err)
	assert.Equal(t, "gs://fc-bucket-1", gcs.StudyBucketUrl("fc-bucket-1"))

	s3, err := NewBlobRepository(infra.StorageConfig{StudyBucketScheme: "s3"}, "")
	require.NoError(t, err)
	assert.Equal(t, "s3://fc-bucket-1", s3.StudyBucketUrl("fc-bucket-1"))

	local, _ := newFileBlobRepository(t)
	assert.Contains(t, local.StudyBucketUrl("fc-bucket-1"), "/studies/fc-bucket-1")
}

func TestBlobRepository_CopyAndMetadata(t *testing.T) {
	ctx := context.Background()
	repo, _ := newFileBlobRepository(t)
	studyBucket := repo.StudyBucketUrl("fc-bucket-1")

	writeBlob(t, repo, repo.LocalBucketUrl(), "study-1/cluster.tsv", "NAME\tX\tY\ncell_1\t1\t2\n")

	copied, err := repo.CopyFile(ctx, repo.LocalBucketUrl(), "study-1/cluster.tsv", studyBucket, "cluster.tsv")
	require.NoError(t, err)
	assert.Equal(t, int64(20), copied.Size)
	assert.NotEmpty(t, copied.Generation)

	metadata, err := repo.GetObjectMetadata(ctx, studyBucket, "cluster.tsv")
	require.NoError(t, err)
	assert.Equal(t, copied, metadata)

	blob, err := repo.GetBlob(ctx, studyBucket, "cluster.tsv")
	require.NoError(t, err)
	content, err := io.ReadAll(blob.ReadCloser)
	require.NoError(t, err)
	require.NoError(t, blob.ReadCloser.Close())
	assert.Equal(t, "NAME\tX\tY\ncell_1\t1\t2\n", string(content))
}

func TestBlobRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo, _ := newFileBlobRepository(t)

	_, err := repo.GetObjectMetadata(ctx, repo.LocalBucketUrl(), "study-1/missing.tsv")
	assert.ErrorIs(t, err, models.ErrRemoteObjectNotFound)
	assert.ErrorIs(t, err, models.NotFoundError)

	_, err = repo.GetBlob(ctx, repo.LocalBucketUrl(), "study-1/missing.tsv")
	assert.ErrorIs(t, err, models.ErrRemoteObjectNotFound)

	exists, err := repo.Exists(ctx, repo.LocalBucketUrl(), "study-1/missing.tsv")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, repo.DeleteFile(ctx, repo.LocalBucketUrl(), "study-1/missing.tsv"))
}

func TestBlobRepository_DeleteFile(t *testing.T) {
	ctx := context.Background()
	repo, _ := newFileBlobRepository(t)
	writeBlob(t, repo, repo.LocalBucketUrl(), "study-1/metadata.tsv", "NAME\tdisease\n")

	exists, err := repo.Exists(ctx, repo.LocalBucketUrl(), "study-1/metadata.tsv")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.DeleteFile(ctx, repo.LocalBucketUrl(), "study-1/metadata.tsv"))

	exists, err = repo.Exists(ctx, repo.LocalBucketUrl(), "study-1/metadata.tsv")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBlobRepository_InaccessibleBucket(t *testing.T) {
	repo, root := newFileBlobRepository(t)

	_, err := repo.GetObjectMetadata(context.Background(), "file://"+filepath.Join(root, "nowhere"), "f.tsv")
	assert.Error(t, err)
}
