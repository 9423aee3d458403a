package repositories

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
	"gocloud.dev/gcp"

	"github.com/singlecellportal/ingest-orchestrator/infra"
	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

type BlobRepository interface {
	// StudyBucketUrl is the url of the bucket holding the files of a study
	StudyBucketUrl(bucketId string) string
	// LocalBucketUrl is the url of the bucket holding the local copies of the uploads
	LocalBucketUrl() string
	// GetObjectMetadata returns ErrRemoteObjectNotFound if the object does not exist
	GetObjectMetadata(ctx context.Context, bucketUrl, fileName string) (models.RemoteObject, error)
	Exists(ctx context.Context, bucketUrl, fileName string) (bool, error)
	GetBlob(ctx context.Context, bucketUrl, fileName string) (models.Blob, error)
	OpenStream(ctx context.Context, bucketUrl, fileName string) (io.WriteCloser, error)
	CopyFile(ctx context.Context, srcBucketUrl, srcFileName, dstBucketUrl, dstFileName string) (models.RemoteObject, error)
	DeleteFile(ctx context.Context, bucketUrl, fileName string) error
	GenerateSignedUrl(ctx context.Context, bucketUrl, fileName string, ttl time.Duration) (string, error)
}

type blobRepository struct {
	config               infra.StorageConfig
	buckets              map[string]*blob.Bucket
	m                    sync.Mutex
	googleAccessId       string
	serviceAccountPemKey []byte
}

func NewBlobRepository(config infra.StorageConfig, googleApplicationCredentials string) (BlobRepository, error) {
	repo := &blobRepository{
		config:  config,
		buckets: make(map[string]*blob.Bucket),
	}

	if googleApplicationCredentials != "" {
		key, err := os.ReadFile(googleApplicationCredentials)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read service account key")
		}
		repo.googleAccessId, repo.serviceAccountPemKey, err = parseServiceAccountKey(key)
		if err != nil {
			return nil, err
		}
	}
	return repo, nil
}

func (repository *blobRepository) StudyBucketUrl(bucketId string) string {
	switch repository.config.StudyBucketScheme {
	case "file":
		return "file://" + path.Join(repository.config.StudyBucketRoot, bucketId)
	case "s3":
		return "s3://" + bucketId
	default:
		return "gs://" + bucketId
	}
}

func (repository *blobRepository) LocalBucketUrl() string {
	return repository.config.LocalBucketUrl
}

func (repository *blobRepository) openBlobBucket(ctx context.Context, bucketUrl string) (*blob.Bucket, error) {
	repository.m.Lock()
	defer repository.m.Unlock()

	if bucket, ok := repository.buckets[bucketUrl]; ok {
		return bucket, nil
	}

	tracer := utils.OpenTelemetryTracerFromContext(ctx)
	ctx, span := tracer.Start(
		ctx,
		"repositories.BlobRepository.openBlobBucket",
		trace.WithAttributes(attribute.String("bucket", bucketUrl)),
	)
	defer span.End()

	parsed, err := url.Parse(bucketUrl)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse bucket url %s", bucketUrl)
	}

	var bucket *blob.Bucket
	if parsed.Scheme == "gs" {
		// signing urls needs the service account key, which the url opener does not take
		creds, err := gcp.DefaultCredentials(ctx)
		if err != nil {
			return nil, err
		}
		client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
		if err != nil {
			return nil, err
		}
		bucket, err = gcsblob.OpenBucket(ctx, client, parsed.Host, &gcsblob.Options{
			GoogleAccessID: repository.googleAccessId,
			PrivateKey:     repository.serviceAccountPemKey,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open bucket %s", bucketUrl)
		}
	} else {
		bucket, err = blob.OpenBucket(ctx, bucketUrl)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open bucket %s", bucketUrl)
		}
	}

	ok, err := bucket.IsAccessible(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to check bucket accessibility %s", bucketUrl)
	} else if !ok {
		return nil, errors.Newf("bucket %s is not accessible", bucketUrl)
	}

	repository.buckets[bucketUrl] = bucket
	return bucket, nil
}

func (repository *blobRepository) GetObjectMetadata(ctx context.Context, bucketUrl, fileName string) (models.RemoteObject, error) {
	tracer := utils.OpenTelemetryTracerFromContext(ctx)
	ctx, span := tracer.Start(
		ctx,
		"repositories.BlobRepository.GetObjectMetadata",
		trace.WithAttributes(attribute.String("bucket", bucketUrl), attribute.String("fileName", fileName)),
	)
	defer span.End()

	bucket, err := repository.openBlobBucket(ctx, bucketUrl)
	if err != nil {
		return models.RemoteObject{}, err
	}

	attrs, err := bucket.Attributes(ctx, fileName)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return models.RemoteObject{}, errors.Wrapf(models.ErrRemoteObjectNotFound, "%s/%s", bucketUrl, fileName)
	} else if err != nil {
		return models.RemoteObject{}, errors.Wrapf(err, "failed to read attributes of %s/%s", bucketUrl, fileName)
	}

	return models.RemoteObject{
		Bucket:     bucketUrl,
		Path:       fileName,
		Size:       attrs.Size,
		Generation: objectGeneration(attrs),
	}, nil
}

// objectGeneration uses the GCS generation number when available, and falls back to the etag for the other providers
func objectGeneration(attrs *blob.Attributes) string {
	var gcsAttrs storage.ObjectAttrs
	if attrs.As(&gcsAttrs) {
		return strconv.FormatInt(gcsAttrs.Generation, 10)
	}
	if attrs.ETag != "" {
		return strings.Trim(attrs.ETag, `"`)
	}
	return strconv.FormatInt(attrs.ModTime.UnixNano(), 10)
}

func (repository *blobRepository) Exists(ctx context.Context, bucketUrl, fileName string) (bool, error) {
	bucket, err := repository.openBlobBucket(ctx, bucketUrl)
	if err != nil {
		return false, err
	}

	ok, err := bucket.Exists(ctx, fileName)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check if file %s exists in bucket %s", fileName, bucketUrl)
	}
	return ok, nil
}

func (repository *blobRepository) GetBlob(ctx context.Context, bucketUrl, fileName string) (models.Blob, error) {
	bucket, err := repository.openBlobBucket(ctx, bucketUrl)
	if err != nil {
		return models.Blob{}, err
	}

	reader, err := bucket.NewReader(ctx, fileName, nil)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return models.Blob{}, errors.Wrapf(models.ErrRemoteObjectNotFound, "%s/%s", bucketUrl, fileName)
	} else if err != nil {
		return models.Blob{}, errors.Wrapf(err, "failed to read object %s/%s", bucketUrl, fileName)
	}

	return models.Blob{FileName: fileName, ReadCloser: reader}, nil
}

func (repository *blobRepository) OpenStream(ctx context.Context, bucketUrl, fileName string) (io.WriteCloser, error) {
	bucket, err := repository.openBlobBucket(ctx, bucketUrl)
	if err != nil {
		return nil, err
	}

	return bucket.NewWriter(ctx, fileName, nil)
}

// CopyFile streams an object to another bucket and returns the metadata of the copy
func (repository *blobRepository) CopyFile(
	ctx context.Context,
	srcBucketUrl, srcFileName, dstBucketUrl, dstFileName string,
) (models.RemoteObject, error) {
	tracer := utils.OpenTelemetryTracerFromContext(ctx)
	ctx, span := tracer.Start(
		ctx,
		"repositories.BlobRepository.CopyFile",
		trace.WithAttributes(
			attribute.String("src", srcBucketUrl+"/"+srcFileName),
			attribute.String("dst", dstBucketUrl+"/"+dstFileName),
		),
	)
	defer span.End()

	src, err := repository.GetBlob(ctx, srcBucketUrl, srcFileName)
	if err != nil {
		return models.RemoteObject{}, err
	}
	defer src.ReadCloser.Close()

	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	dst, err := repository.OpenStream(writeCtx, dstBucketUrl, dstFileName)
	if err != nil {
		return models.RemoteObject{}, err
	}

	if _, err := io.Copy(dst, src.ReadCloser); err != nil {
		// cancelling the context before closing aborts the write
		cancel()
		_ = dst.Close()
		return models.RemoteObject{}, errors.Wrapf(err, "failed to copy %s to %s", srcFileName, dstBucketUrl)
	}
	if err := dst.Close(); err != nil {
		return models.RemoteObject{}, errors.Wrapf(err, "failed to write %s/%s", dstBucketUrl, dstFileName)
	}

	return repository.GetObjectMetadata(ctx, dstBucketUrl, dstFileName)
}

// DeleteFile is a no-op if the object does not exist
func (repository *blobRepository) DeleteFile(ctx context.Context, bucketUrl, fileName string) error {
	bucket, err := repository.openBlobBucket(ctx, bucketUrl)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = bucket.Delete(ctx, fileName)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return errors.Wrapf(err, "failed to delete %s/%s", bucketUrl, fileName)
}

func (repository *blobRepository) GenerateSignedUrl(ctx context.Context, bucketUrl, fileName string, ttl time.Duration) (string, error) {
	// gcs urls can only be signed with service account credentials
	bucket, err := repository.openBlobBucket(ctx, bucketUrl)
	if err != nil {
		return "", err
	}

	signed, err := bucket.SignedURL(ctx, fileName, &blob.SignedURLOptions{
		Method: http.MethodGet,
		Expiry: ttl,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to sign url of %s/%s", bucketUrl, fileName)
	}
	return signed, nil
}

func parseServiceAccountKey(key []byte) (googleAccessId string, pemKey []byte, err error) {
	var sa struct {
		PrivateKey         string `json:"private_key"`
		ClientEmail        string `json:"client_email"`
		SAImpersonationURL string `json:"service_account_impersonation_url"` //nolint:tagliatelle
		CredType           string `json:"type"`
	}
	if err := json.Unmarshal(key, &sa); err != nil {
		return "", nil, errors.Wrap(err, "failed to unmarshal service account key")
	}

	switch sa.CredType {
	case "impersonated_service_account", "external_account":
		start, end := strings.LastIndex(sa.SAImpersonationURL, "/"), strings.LastIndex(sa.SAImpersonationURL, ":")
		if end <= start {
			return "", nil, errors.New("error parsing external or impersonated service account credentials")
		}
		googleAccessId = sa.SAImpersonationURL[start+1 : end]
	case "service_account":
		if sa.ClientEmail == "" {
			return "", nil, errors.New("empty service account client email")
		}
		googleAccessId = sa.ClientEmail
	default:
		return "", nil, errors.Newf("unsupported credentials type '%s'", sa.CredType)
	}

	if sa.PrivateKey != "" {
		block, _ := pem.Decode([]byte(sa.PrivateKey))
		if block == nil {
			return "", nil, errors.New("failed to decode service account private key")
		}
		pemKey = pem.EncodeToMemory(block)
	}
	return googleAccessId, pemKey, nil
}
