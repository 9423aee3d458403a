package usecases

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/singlecellportal/ingest-orchestrator/mocks"
	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories"
)

type enqueuedTask struct {
	id    int64
	args  any
	runAt time.Time
}

// memoryStore keeps the portal tables and the task queue in memory. Transactions opened through the store
// restore the previous state when their callback fails.
type memoryStore struct {
	mu sync.Mutex

	studies       map[string]models.Study
	files         map[string]models.StudyFile
	bundles       map[string]models.StudyFileBundle
	notifications []models.Notification
	tasks         []enqueuedTask
	lastJobId     int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		studies: make(map[string]models.Study),
		files:   make(map[string]models.StudyFile),
		bundles: make(map[string]models.StudyFileBundle),
	}
}

type memorySnapshot struct {
	files         map[string]models.StudyFile
	bundles       map[string]models.StudyFileBundle
	notifications []models.Notification
	tasks         []enqueuedTask
}

func (s *memoryStore) snapshot() memorySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memorySnapshot{
		files:         maps.Clone(s.files),
		bundles:       maps.Clone(s.bundles),
		notifications: slices.Clone(s.notifications),
		tasks:         slices.Clone(s.tasks),
	}
}

func (s *memoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = snap.files
	s.bundles = snap.bundles
	s.notifications = snap.notifications
	s.tasks = snap.tasks
}

func (s *memoryStore) NewExecutor() repositories.Executor {
	return &mocks.Executor{}
}

func (s *memoryStore) Transaction(ctx context.Context, fn func(tx repositories.Transaction) error) error {
	snap := s.snapshot()
	err := fn(&mocks.Transaction{})
	if err != nil {
		s.restore(snap)
		if errors.Is(err, models.ErrIgnoreRollBackError) {
			return nil
		}
	}
	return err
}

func (s *memoryStore) addStudy(study models.Study) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.studies[study.Id] = study
}

func (s *memoryStore) addFile(file models.StudyFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}
	s.files[file.Id] = file
}

func (s *memoryStore) file(id string) models.StudyFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[id]
}

func (s *memoryStore) tasksOfKind(kind string) []enqueuedTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tasks []enqueuedTask
	for _, task := range s.tasks {
		if task.args.(interface{ Kind() string }).Kind() == kind {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

func (s *memoryStore) GetStudyById(ctx context.Context, exec repositories.Executor, id string) (models.Study, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	study, ok := s.studies[id]
	if !ok {
		return models.Study{}, errors.Wrapf(models.NotFoundError, "study %s", id)
	}
	return study, nil
}

func (s *memoryStore) GetStudyFileById(ctx context.Context, exec repositories.Executor, id string) (models.StudyFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[id]
	if !ok {
		return models.StudyFile{}, errors.Wrapf(models.NotFoundError, "study file %s", id)
	}
	return file, nil
}

func (s *memoryStore) ListStudyFilesByTypesAndOption(
	ctx context.Context,
	exec repositories.Executor,
	studyId string,
	fileTypes []models.StudyFileType,
	optionKey string,
	optionValue string,
) ([]models.StudyFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var files []models.StudyFile
	for _, f := range s.files {
		if f.StudyId == studyId && slices.Contains(fileTypes, f.FileType) &&
			!f.QueuedForDeletion && f.Option(optionKey) == optionValue {
			files = append(files, f)
		}
	}
	slices.SortFunc(files, func(a, b models.StudyFile) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return files, nil
}

func (s *memoryStore) AcquireParseLease(ctx context.Context, tx repositories.Transaction, input models.AcquireParseLeaseInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	leased := 0
	for _, id := range input.StudyFileIds {
		file, ok := s.files[id]
		if !ok || file.IsParsing(now) {
			continue
		}
		expiresAt := input.ExpiresAt
		file.ParseState = models.ParseStateParsing
		file.ParseLease = models.ParseLease{HolderId: input.HolderId, ExpiresAt: &expiresAt}
		s.files[id] = file
		leased++
	}
	if leased != len(input.StudyFileIds) {
		return errors.Wrapf(models.ErrParseLeaseHeld, "leased %d out of %d files", leased, len(input.StudyFileIds))
	}
	return nil
}

func (s *memoryStore) FinishParse(ctx context.Context, exec repositories.Executor, input models.FinishParseInput) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := models.ParseStateUnparsed
	if input.Success {
		state = models.ParseStateParsed
	}
	released := false
	for id, file := range s.files {
		if file.ParseLease.HolderId == input.HolderId && file.ParseState == models.ParseStateParsing {
			file.ParseState = state
			file.ParseLease = models.ParseLease{}
			s.files[id] = file
			released = true
		}
	}
	return released, nil
}

func (s *memoryStore) UpdateStudyFile(ctx context.Context, exec repositories.Executor, input models.UpdateStudyFileInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[input.Id]
	if !ok {
		return errors.Wrapf(models.NotFoundError, "study file %s", input.Id)
	}
	if input.UploadStatus != nil {
		file.UploadStatus = *input.UploadStatus
	}
	if input.Generation != nil {
		generation := *input.Generation
		file.Generation = &generation
	}
	if input.IsLocal != nil {
		file.IsLocal = *input.IsLocal
	}
	if input.QueuedForDeletion != nil {
		file.QueuedForDeletion = *input.QueuedForDeletion
	}
	if input.UploadCleanupJobId != nil {
		jobId := *input.UploadCleanupJobId
		file.UploadCleanupJobId = &jobId
	}
	s.files[input.Id] = file
	return nil
}

func (s *memoryStore) ListFailedUploads(ctx context.Context, exec repositories.Executor, filter models.FailedUploadsFilter) ([]models.StudyFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var files []models.StudyFile
	for _, f := range s.files {
		if f.UploadStatus == models.UploadStatusUploading && f.ParseState == models.ParseStateUnparsed &&
			f.Generation == nil && f.ExternalUrl == nil && !f.QueuedForDeletion &&
			!f.CreatedAt.After(filter.CreatedBefore) {
			files = append(files, f)
		}
	}
	slices.SortFunc(files, func(a, b models.StudyFile) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return files, nil
}

func (s *memoryStore) GetBundleByParentId(ctx context.Context, exec repositories.Executor, parentId string) (*models.StudyFileBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bundle := range s.bundles {
		if bundle.ParentId == parentId {
			bundle.Files = slices.Clone(bundle.Files)
			return &bundle, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) CreateBundle(ctx context.Context, tx repositories.Transaction, input models.CreateStudyFileBundleInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bundle := range s.bundles {
		if bundle.ParentId == input.ParentId {
			return errors.Wrapf(models.ConflictError, "bundle of %s already exists", input.ParentId)
		}
	}
	s.bundles[input.Id] = models.StudyFileBundle{
		Id:            input.Id,
		StudyId:       input.StudyId,
		ParentId:      input.ParentId,
		ParentType:    input.ParentType,
		RequiredTypes: input.RequiredTypes,
		Files:         []models.BundledFile{},
		CreatedAt:     time.Now(),
	}
	return nil
}

func (s *memoryStore) AddFilesToBundle(ctx context.Context, exec repositories.Executor, bundleId string, files []models.BundledFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bundle, ok := s.bundles[bundleId]
	if !ok {
		return errors.Wrapf(models.NotFoundError, "bundle %s", bundleId)
	}
	s.bundles[bundleId] = bundle.WithFiles(files...)
	return nil
}

func (s *memoryStore) CreateNotification(ctx context.Context, exec repositories.Executor, notification models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, notification)
	return nil
}

func (s *memoryStore) enqueue(args any, runAt time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastJobId++
	s.tasks = append(s.tasks, enqueuedTask{id: s.lastJobId, args: args, runAt: runAt})
	return s.lastJobId
}

func (s *memoryStore) EnqueueIngestTask(ctx context.Context, tx repositories.Transaction, job models.IngestJob) error {
	s.enqueue(models.NewIngestStudyFileArgs(job), time.Now())
	return nil
}

func (s *memoryStore) EnqueueDispatchTask(ctx context.Context, tx repositories.Transaction, args models.DispatchStudyFileArgs, runAt time.Time) error {
	s.enqueue(args, runAt)
	return nil
}

func (s *memoryStore) EnqueuePushTask(ctx context.Context, tx repositories.Transaction, args models.PushStudyFileArgs) error {
	s.enqueue(args, time.Now())
	return nil
}

func (s *memoryStore) EnqueueUploadCleanupTask(
	ctx context.Context,
	tx repositories.Transaction,
	args models.UploadCleanupArgs,
	runAt time.Time,
) (int64, error) {
	return s.enqueue(args, runAt), nil
}

// memoryBlobRepository holds object metadata per bucket url and path
type memoryBlobRepository struct {
	mu          sync.Mutex
	objects     map[string]models.RemoteObject
	generation  int
	metadataErr error
	// number of metadata requests on study buckets
	remoteCalls int
}

func newMemoryBlobRepository() *memoryBlobRepository {
	return &memoryBlobRepository{objects: make(map[string]models.RemoteObject)}
}

func blobKey(bucketUrl, fileName string) string {
	return bucketUrl + "/" + fileName
}

func (r *memoryBlobRepository) put(bucketUrl, fileName string, size int64) models.RemoteObject {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	object := models.RemoteObject{
		Bucket:     bucketUrl,
		Path:       fileName,
		Size:       size,
		Generation: fmt.Sprint(1700000000000000 + r.generation),
	}
	r.objects[blobKey(bucketUrl, fileName)] = object
	return object
}

func (r *memoryBlobRepository) has(bucketUrl, fileName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.objects[blobKey(bucketUrl, fileName)]
	return ok
}

func (r *memoryBlobRepository) StudyBucketUrl(bucketId string) string {
	return "gs://" + bucketId
}

func (r *memoryBlobRepository) LocalBucketUrl() string {
	return "file:///tmp/uploads"
}

func (r *memoryBlobRepository) GetObjectMetadata(ctx context.Context, bucketUrl, fileName string) (models.RemoteObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bucketUrl != r.LocalBucketUrl() {
		r.remoteCalls++
		if r.metadataErr != nil {
			return models.RemoteObject{}, r.metadataErr
		}
	}
	object, ok := r.objects[blobKey(bucketUrl, fileName)]
	if !ok {
		return models.RemoteObject{}, errors.Wrapf(models.ErrRemoteObjectNotFound, "%s", blobKey(bucketUrl, fileName))
	}
	return object, nil
}

func (r *memoryBlobRepository) Exists(ctx context.Context, bucketUrl, fileName string) (bool, error) {
	return r.has(bucketUrl, fileName), nil
}

func (r *memoryBlobRepository) GetBlob(ctx context.Context, bucketUrl, fileName string) (models.Blob, error) {
	return models.Blob{}, errors.New("not implemented")
}

func (r *memoryBlobRepository) OpenStream(ctx context.Context, bucketUrl, fileName string) (io.WriteCloser, error) {
	return nil, errors.New("not implemented")
}

func (r *memoryBlobRepository) CopyFile(
	ctx context.Context,
	srcBucketUrl, srcFileName, dstBucketUrl, dstFileName string,
) (models.RemoteObject, error) {
	r.mu.Lock()
	src, ok := r.objects[blobKey(srcBucketUrl, srcFileName)]
	r.mu.Unlock()
	if !ok {
		return models.RemoteObject{}, errors.Wrapf(models.ErrRemoteObjectNotFound, "%s", blobKey(srcBucketUrl, srcFileName))
	}
	return r.put(dstBucketUrl, dstFileName, src.Size), nil
}

func (r *memoryBlobRepository) DeleteFile(ctx context.Context, bucketUrl, fileName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objects, blobKey(bucketUrl, fileName))
	return nil
}

func (r *memoryBlobRepository) GenerateSignedUrl(ctx context.Context, bucketUrl, fileName string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.example.com/%s?ttl=%d", blobKey(bucketUrl, fileName), int(ttl.Seconds())), nil
}
