package repositories

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories/dbmodels"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

// a parse lease is free unless the file is parsing with a holder and an expiry that is absent or in the future
const parseLeaseHeldCondition = "(parse_status = 'parsing' AND parse_lease_holder IS NOT NULL AND " +
	"(parse_lease_expires_at IS NULL OR parse_lease_expires_at > NOW()))"

func selectStudyFiles() squirrel.SelectBuilder {
	return NewQueryBuilder().
		Select(dbmodels.SelectStudyFileColumn...).
		From(dbmodels.TABLE_STUDY_FILES)
}

// GetStudyFileById reports a malformed id as a missing file: ids also come from file options written by users,
// and postgres rejects them on the uuid column.
func (repo *StudyDbRepository) GetStudyFileById(ctx context.Context, exec Executor, id string) (models.StudyFile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.StudyFile{}, errors.Wrapf(models.NotFoundError, "study file %q is not a valid id", id)
	}
	return SqlToModel(
		ctx,
		exec,
		selectStudyFiles().Where(squirrel.Eq{"id": id}),
		dbmodels.AdaptStudyFile,
	)
}

// ListStudyFilesByTypesAndOption lists the files of a study with one of the given types whose option key has the given value
func (repo *StudyDbRepository) ListStudyFilesByTypesAndOption(
	ctx context.Context,
	exec Executor,
	studyId string,
	fileTypes []models.StudyFileType,
	optionKey string,
	optionValue string,
) ([]models.StudyFile, error) {
	typeNames := utils.Map(fileTypes, models.StudyFileType.String)

	return SqlToListOfModels(
		ctx,
		exec,
		selectStudyFiles().
			Where(squirrel.Eq{"study_id": studyId}).
			Where(squirrel.Eq{"file_type": typeNames}).
			Where(squirrel.Eq{"queued_for_deletion": false}).
			Where(squirrel.Expr("options->>? = ?", optionKey, optionValue)).
			OrderBy("created_at"),
		dbmodels.AdaptStudyFile,
	)
}

// AcquireParseLease leases all the files at once or none of them. It must run in a transaction, which the caller
// rolls back when ErrParseLeaseHeld is returned.
func (repo *StudyDbRepository) AcquireParseLease(ctx context.Context, tx Transaction, input models.AcquireParseLeaseInput) error {
	if len(input.StudyFileIds) == 0 {
		return errors.Wrap(models.BadParameterError, "no study file to lease")
	}

	sql, args, err := NewQueryBuilder().
		Update(dbmodels.TABLE_STUDY_FILES).
		Set("parse_status", models.ParseStateParsing).
		Set("parse_lease_holder", input.HolderId).
		Set("parse_lease_expires_at", input.ExpiresAt).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": input.StudyFileIds}).
		Where("NOT " + parseLeaseHeldCondition).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "can't build sql query")
	}

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return errors.Wrap(err, "error acquiring parse lease")
	}
	leased, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return errors.Wrap(err, "error acquiring parse lease")
	}

	if len(leased) != len(input.StudyFileIds) {
		return errors.Wrapf(models.ErrParseLeaseHeld, "leased %d out of %d files", len(leased), len(input.StudyFileIds))
	}
	return nil
}

// FinishParse releases the lease of every file held by the holder. It returns false if the holder no longer
// owns any lease, for instance because it expired and was taken over.
func (repo *StudyDbRepository) FinishParse(ctx context.Context, exec Executor, input models.FinishParseInput) (bool, error) {
	status := models.ParseStateUnparsed
	if input.Success {
		status = models.ParseStateParsed
	}

	affected, err := ExecBuilder(
		ctx,
		exec,
		NewQueryBuilder().
			Update(dbmodels.TABLE_STUDY_FILES).
			Set("parse_status", status).
			Set("parse_lease_holder", nil).
			Set("parse_lease_expires_at", nil).
			Set("updated_at", squirrel.Expr("NOW()")).
			Where(squirrel.Eq{"parse_lease_holder": input.HolderId}).
			Where(squirrel.Eq{"parse_status": models.ParseStateParsing}),
	)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (repo *StudyDbRepository) UpdateStudyFile(ctx context.Context, exec Executor, input models.UpdateStudyFileInput) error {
	query := NewQueryBuilder().
		Update(dbmodels.TABLE_STUDY_FILES).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": input.Id})

	if input.UploadStatus != nil {
		query = query.Set("upload_status", *input.UploadStatus)
	}
	if input.Generation != nil {
		query = query.Set("generation", *input.Generation)
	}
	if input.IsLocal != nil {
		query = query.Set("is_local", *input.IsLocal)
	}
	if input.QueuedForDeletion != nil {
		query = query.Set("queued_for_deletion", *input.QueuedForDeletion)
	}
	if input.UploadCleanupJobId != nil {
		query = query.Set("upload_cleanup_job_id", *input.UploadCleanupJobId)
	}

	affected, err := ExecBuilder(ctx, exec, query)
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Wrapf(models.NotFoundError, "study file %s", input.Id)
	}
	return nil
}

// ListFailedUploads lists the files whose upload started before the filter date and never reached the study bucket
func (repo *StudyDbRepository) ListFailedUploads(
	ctx context.Context,
	exec Executor,
	filter models.FailedUploadsFilter,
) ([]models.StudyFile, error) {
	return SqlToListOfModels(
		ctx,
		exec,
		selectStudyFiles().
			Where(squirrel.Eq{
				"upload_status":       models.UploadStatusUploading,
				"parse_status":        models.ParseStateUnparsed,
				"generation":          nil,
				"external_url":        nil,
				"queued_for_deletion": false,
			}).
			Where(squirrel.LtOrEq{"created_at": filter.CreatedBefore}).
			OrderBy("created_at"),
		dbmodels.AdaptStudyFile,
	)
}
