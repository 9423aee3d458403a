package dbmodels

import (
	"time"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

type DBStudyFileBundle struct {
	Id            string    `db:"id"`
	StudyId       string    `db:"study_id"`
	ParentId      string    `db:"parent_id"`
	ParentType    string    `db:"parent_type"`
	RequiredTypes []string  `db:"required_types"`
	CreatedAt     time.Time `db:"created_at"`
}

type DBStudyFileBundleMember struct {
	BundleId    string `db:"bundle_id"`
	StudyFileId string `db:"study_file_id"`
	FileType    string `db:"file_type"`
}

const (
	TABLE_STUDY_FILE_BUNDLES        = "study_file_bundles"
	TABLE_STUDY_FILE_BUNDLE_MEMBERS = "study_file_bundle_members"
)

var (
	SelectStudyFileBundleColumn       = utils.ColumnList[DBStudyFileBundle]()
	SelectStudyFileBundleMemberColumn = utils.ColumnList[DBStudyFileBundleMember]()
)

// AdaptStudyFileBundle adapts the bundle row alone, members are attached by the repository
func AdaptStudyFileBundle(db DBStudyFileBundle) (models.StudyFileBundle, error) {
	requiredTypes, err := utils.MapErr(db.RequiredTypes, parseStudyFileType)
	if err != nil {
		return models.StudyFileBundle{}, err
	}
	parentType, err := parseStudyFileType(db.ParentType)
	if err != nil {
		return models.StudyFileBundle{}, err
	}

	return models.StudyFileBundle{
		Id:            db.Id,
		StudyId:       db.StudyId,
		ParentId:      db.ParentId,
		ParentType:    parentType,
		RequiredTypes: requiredTypes,
		Files:         []models.BundledFile{},
		CreatedAt:     db.CreatedAt,
	}, nil
}

func AdaptStudyFileBundleMember(db DBStudyFileBundleMember) (models.BundledFile, error) {
	fileType, err := parseStudyFileType(db.FileType)
	if err != nil {
		return models.BundledFile{}, err
	}
	return models.BundledFile{StudyFileId: db.StudyFileId, FileType: fileType}, nil
}

func parseStudyFileType(s string) (models.StudyFileType, error) {
	var fileType models.StudyFileType
	err := fileType.UnmarshalText([]byte(s))
	return fileType, err
}
