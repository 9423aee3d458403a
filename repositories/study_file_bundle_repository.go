package repositories

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories/dbmodels"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

// GetBundleByParentId returns nil if the parent has no bundle yet
func (repo *StudyDbRepository) GetBundleByParentId(ctx context.Context, exec Executor, parentId string) (*models.StudyFileBundle, error) {
	return repo.getBundle(ctx, exec, squirrel.Eq{"parent_id": parentId})
}

func (repo *StudyDbRepository) getBundle(ctx context.Context, exec Executor, where squirrel.Sqlizer) (*models.StudyFileBundle, error) {
	bundle, err := SqlToOptionalModel(
		ctx,
		exec,
		NewQueryBuilder().
			Select(dbmodels.SelectStudyFileBundleColumn...).
			From(dbmodels.TABLE_STUDY_FILE_BUNDLES).
			Where(where),
		dbmodels.AdaptStudyFileBundle,
	)
	if err != nil || bundle == nil {
		return nil, err
	}

	members, err := SqlToListOfModels(
		ctx,
		exec,
		NewQueryBuilder().
			Select(dbmodels.SelectStudyFileBundleMemberColumn...).
			From(dbmodels.TABLE_STUDY_FILE_BUNDLE_MEMBERS).
			Where(squirrel.Eq{"bundle_id": bundle.Id}).
			OrderBy("seq"),
		dbmodels.AdaptStudyFileBundleMember,
	)
	if err != nil {
		return nil, err
	}
	bundle.Files = members
	return bundle, nil
}

// CreateBundle returns a ConflictError if the parent already has a bundle. The insert runs in a savepoint so that
// the caller's transaction survives the unique violation and can read the concurrent bundle.
func (repo *StudyDbRepository) CreateBundle(ctx context.Context, tx Transaction, input models.CreateStudyFileBundleInput) error {
	savepoint, err := tx.RawTx().Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "could not open savepoint")
	}

	_, err = ExecBuilder(
		ctx,
		NewPgTx(savepoint),
		NewQueryBuilder().
			Insert(dbmodels.TABLE_STUDY_FILE_BUNDLES).
			Columns("id", "study_id", "parent_id", "parent_type", "required_types").
			Values(
				input.Id,
				input.StudyId,
				input.ParentId,
				input.ParentType.String(),
				utils.Map(input.RequiredTypes, models.StudyFileType.String),
			),
	)
	if err != nil {
		_ = savepoint.Rollback(ctx)
		return asConflict(err, "bundle of %s already exists", input.ParentId)
	}
	return errors.Wrap(savepoint.Commit(ctx), "could not release savepoint")
}

// AddFilesToBundle attaches files to a bundle, skipping the ones already attached to a bundle
func (repo *StudyDbRepository) AddFilesToBundle(ctx context.Context, exec Executor, bundleId string, files []models.BundledFile) error {
	if len(files) == 0 {
		return nil
	}

	query := NewQueryBuilder().
		Insert(dbmodels.TABLE_STUDY_FILE_BUNDLE_MEMBERS).
		Columns("bundle_id", "study_file_id", "file_type")
	for _, f := range files {
		query = query.Values(bundleId, f.StudyFileId, f.FileType.String())
	}

	_, err := ExecBuilder(ctx, exec, query.Suffix("ON CONFLICT (study_file_id) DO NOTHING"))
	return err
}
