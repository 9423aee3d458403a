package dbmodels

import (
	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

type DBStudy struct {
	Id                 string `db:"id"`
	Accession          string `db:"accession"`
	Name               string `db:"name"`
	BucketId           string `db:"bucket_id"`
	UserId             string `db:"user_id"`
	UserEmail          string `db:"user_email"`
	QueuedForDeletion  bool   `db:"queued_for_deletion"`
	FirecloudProject   string `db:"firecloud_project"`
	FirecloudWorkspace string `db:"firecloud_workspace"`
}

type DBStudyWithShares struct {
	DBStudy
	NbShares int `db:"nb_shares"`
}

const (
	TABLE_STUDIES      = "studies"
	TABLE_STUDY_SHARES = "study_shares"
)

var SelectStudyColumn = utils.ColumnList[DBStudy]()

func AdaptStudy(db DBStudyWithShares) (models.Study, error) {
	return models.Study{
		Id:                 db.Id,
		Accession:          db.Accession,
		Name:               db.Name,
		BucketId:           db.BucketId,
		UserId:             db.UserId,
		UserEmail:          db.UserEmail,
		QueuedForDeletion:  db.QueuedForDeletion,
		NbShares:           db.NbShares,
		FirecloudProject:   db.FirecloudProject,
		FirecloudWorkspace: db.FirecloudWorkspace,
	}, nil
}
