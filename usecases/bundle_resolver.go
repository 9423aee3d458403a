package usecases

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hashicorp/go-set/v2"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

type bundleRepository interface {
	GetStudyFileById(ctx context.Context, exec repositories.Executor, id string) (models.StudyFile, error)
	ListStudyFilesByTypesAndOption(
		ctx context.Context,
		exec repositories.Executor,
		studyId string,
		fileTypes []models.StudyFileType,
		optionKey string,
		optionValue string,
	) ([]models.StudyFile, error)
	GetBundleByParentId(ctx context.Context, exec repositories.Executor, parentId string) (*models.StudyFileBundle, error)
	CreateBundle(ctx context.Context, tx repositories.Transaction, input models.CreateStudyFileBundleInput) error
	AddFilesToBundle(ctx context.Context, exec repositories.Executor, bundleId string, files []models.BundledFile) error
}

// BundleResolver groups a file with the siblings it needs before ingestion, following the configured bundle rules.
// Children reference their parent through an option of the study file, so they can be registered in any order.
type BundleResolver struct {
	repository bundleRepository
	rules      models.BundleRequirements
}

func NewBundleResolver(repository bundleRepository, rules models.BundleRequirements) BundleResolver {
	return BundleResolver{repository: repository, rules: rules}
}

// Resolve returns the bundle of the file, attaching the files that reference the same parent on the way.
// A parent without any registered child gets a transient, empty bundle. A child whose parent is not registered yet
// gets no bundle: the resolution runs again when the parent is registered.
func (r BundleResolver) Resolve(ctx context.Context, tx repositories.Transaction, file models.StudyFile) (models.BundleResolution, error) {
	if rule, ok := r.rules.RuleForParent(file.FileType); ok {
		return r.resolveParent(ctx, tx, file, rule)
	}

	for _, rule := range r.rules.RulesForChild(file.FileType) {
		resolution, err := r.resolveChild(ctx, tx, file, rule)
		if err != nil || resolution.Applicable() {
			return resolution, err
		}
	}
	return models.BundleResolution{}, nil
}

func (r BundleResolver) resolveParent(
	ctx context.Context,
	tx repositories.Transaction,
	parent models.StudyFile,
	rule models.BundleRule,
) (models.BundleResolution, error) {
	children, err := r.repository.ListStudyFilesByTypesAndOption(ctx, tx,
		parent.StudyId, rule.ChildTypes, rule.OptionsKey, parent.Id)
	if err != nil {
		return models.BundleResolution{}, err
	}

	bundle, err := r.repository.GetBundleByParentId(ctx, tx, parent.Id)
	if err != nil {
		return models.BundleResolution{}, err
	}
	if bundle == nil && len(children) == 0 {
		return models.BundleResolution{Bundle: &models.StudyFileBundle{
			StudyId:       parent.StudyId,
			ParentId:      parent.Id,
			ParentType:    parent.FileType,
			RequiredTypes: rule.ChildTypes,
			Files:         []models.BundledFile{},
		}}, nil
	}
	if bundle == nil {
		bundle, err = r.createBundle(ctx, tx, parent, rule)
		if err != nil {
			return models.BundleResolution{}, err
		}
	}

	return r.attach(ctx, tx, *bundle, children)
}

func (r BundleResolver) resolveChild(
	ctx context.Context,
	tx repositories.Transaction,
	child models.StudyFile,
	rule models.BundleRule,
) (models.BundleResolution, error) {
	logger := utils.LoggerFromContext(ctx)

	parentId := child.Option(rule.OptionsKey)
	if parentId == "" {
		return models.BundleResolution{}, nil
	}

	parent, err := r.repository.GetStudyFileById(ctx, tx, parentId)
	if errors.Is(err, models.NotFoundError) {
		logger.DebugContext(ctx, "parent of the study file is not registered yet",
			"study_file_id", child.Id, "parent_id", parentId)
		return models.BundleResolution{}, nil
	} else if err != nil {
		return models.BundleResolution{}, err
	}
	if parent.StudyId != child.StudyId || parent.FileType != rule.ParentType || parent.QueuedForDeletion {
		logger.WarnContext(ctx, "study file references a parent that cannot hold its bundle",
			"study_file_id", child.Id, "parent_id", parentId, "parent_type", parent.FileType.String())
		return models.BundleResolution{}, nil
	}

	siblings, err := r.repository.ListStudyFilesByTypesAndOption(ctx, tx,
		parent.StudyId, rule.ChildTypes, rule.OptionsKey, parent.Id)
	if err != nil {
		return models.BundleResolution{}, err
	}

	bundle, err := r.repository.GetBundleByParentId(ctx, tx, parent.Id)
	if err != nil {
		return models.BundleResolution{}, err
	}
	if bundle == nil {
		bundle, err = r.createBundle(ctx, tx, parent, rule)
		if err != nil {
			return models.BundleResolution{}, err
		}
	}

	return r.attach(ctx, tx, *bundle, append(siblings, child))
}

// createBundle creates the bundle of the parent, or reads the one created concurrently
func (r BundleResolver) createBundle(
	ctx context.Context,
	tx repositories.Transaction,
	parent models.StudyFile,
	rule models.BundleRule,
) (*models.StudyFileBundle, error) {
	input := models.CreateStudyFileBundleInput{
		Id:            uuid.NewString(),
		StudyId:       parent.StudyId,
		ParentId:      parent.Id,
		ParentType:    parent.FileType,
		RequiredTypes: rule.ChildTypes,
	}

	err := r.repository.CreateBundle(ctx, tx, input)
	if errors.Is(err, models.ConflictError) {
		bundle, err := r.repository.GetBundleByParentId(ctx, tx, parent.Id)
		if err != nil {
			return nil, err
		}
		if bundle == nil {
			return nil, errors.Wrapf(models.NotFoundError, "bundle of %s vanished after a concurrent creation", parent.Id)
		}
		return bundle, nil
	} else if err != nil {
		return nil, err
	}

	return &models.StudyFileBundle{
		Id:            input.Id,
		StudyId:       input.StudyId,
		ParentId:      input.ParentId,
		ParentType:    input.ParentType,
		RequiredTypes: input.RequiredTypes,
		Files:         []models.BundledFile{},
	}, nil
}

// attach adds the files that are not members yet. A complete bundle is returned untouched.
func (r BundleResolver) attach(
	ctx context.Context,
	tx repositories.Transaction,
	bundle models.StudyFileBundle,
	files []models.StudyFile,
) (models.BundleResolution, error) {
	if bundle.Completed() {
		return models.BundleResolution{Bundle: &bundle}, nil
	}

	members := set.From(bundle.MemberIds())
	toAttach := make([]models.BundledFile, 0, len(files))
	for _, f := range files {
		if f.QueuedForDeletion || !slices.Contains(bundle.RequiredTypes, f.FileType) {
			continue
		}
		if members.Insert(f.Id) {
			toAttach = append(toAttach, models.BundledFile{StudyFileId: f.Id, FileType: f.FileType})
		}
	}
	if len(toAttach) == 0 {
		return models.BundleResolution{Bundle: &bundle}, nil
	}

	if err := r.repository.AddFilesToBundle(ctx, tx, bundle.Id, toAttach); err != nil {
		return models.BundleResolution{}, err
	}

	// files already attached to another bundle are skipped by the insert, the stored bundle is the reference
	stored, err := r.repository.GetBundleByParentId(ctx, tx, bundle.ParentId)
	if err != nil {
		return models.BundleResolution{}, err
	}
	if stored == nil {
		return models.BundleResolution{}, errors.Wrapf(models.NotFoundError, "bundle of %s", bundle.ParentId)
	}
	return models.BundleResolution{Bundle: stored}, nil
}
