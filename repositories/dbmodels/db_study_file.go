package dbmodels

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/guregu/null/v5"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

type DBStudyFile struct {
	Id                  string            `db:"id"`
	StudyId             string            `db:"study_id"`
	Name                string            `db:"name"`
	FileType            string            `db:"file_type"`
	UploadFileName      string            `db:"upload_file_name"`
	UploadFileSize      int64             `db:"upload_file_size"`
	UploadStatus        string            `db:"upload_status"`
	ParseStatus         string            `db:"parse_status"`
	ParseLeaseHolder    null.String       `db:"parse_lease_holder"`
	ParseLeaseExpiresAt *time.Time        `db:"parse_lease_expires_at"`
	BucketLocation      string            `db:"bucket_location"`
	Generation          null.String       `db:"generation"`
	Options             map[string]string `db:"options"`
	IsLocal             bool              `db:"is_local"`
	QueuedForDeletion   bool              `db:"queued_for_deletion"`
	ExternalUrl         null.String       `db:"external_url"`
	UploadCleanupJobId  null.Int          `db:"upload_cleanup_job_id"`
	CreatedAt           time.Time         `db:"created_at"`
	UpdatedAt           time.Time         `db:"updated_at"`
}

const TABLE_STUDY_FILES = "study_files"

var SelectStudyFileColumn = utils.ColumnList[DBStudyFile]()

func AdaptStudyFile(db DBStudyFile) (models.StudyFile, error) {
	fileType := models.StudyFileTypeFrom(db.FileType)
	if fileType == models.FileTypeUnknown {
		return models.StudyFile{}, errors.Wrapf(models.ErrUnknownFileType,
			"study file %s has type '%s'", db.Id, db.FileType)
	}

	return models.StudyFile{
		Id:             db.Id,
		StudyId:        db.StudyId,
		Name:           db.Name,
		FileType:       fileType,
		UploadFileName: db.UploadFileName,
		UploadFileSize: db.UploadFileSize,
		UploadStatus:   models.UploadStatusFrom(db.UploadStatus),
		ParseState:     models.ParseStateFrom(db.ParseStatus),
		ParseLease: models.ParseLease{
			HolderId:  db.ParseLeaseHolder.String,
			ExpiresAt: db.ParseLeaseExpiresAt,
		},
		BucketLocation:     db.BucketLocation,
		Generation:         db.Generation.Ptr(),
		Options:            db.Options,
		IsLocal:            db.IsLocal,
		QueuedForDeletion:  db.QueuedForDeletion,
		ExternalUrl:        db.ExternalUrl.Ptr(),
		UploadCleanupJobId: db.UploadCleanupJobId.Ptr(),
		CreatedAt:          db.CreatedAt,
		UpdatedAt:          db.UpdatedAt,
	}, nil
}
