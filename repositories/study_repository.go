package repositories

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories/dbmodels"
)

func (repo *StudyDbRepository) GetStudyById(ctx context.Context, exec Executor, id string) (models.Study, error) {
	nbShares := fmt.Sprintf("(SELECT COUNT(*) FROM %s AS sh WHERE sh.study_id = s.id) AS nb_shares",
		dbmodels.TABLE_STUDY_SHARES)

	return SqlToModel(
		ctx,
		exec,
		NewQueryBuilder().
			Select(columnsNames("s", dbmodels.SelectStudyColumn)...).
			Column(nbShares).
			From(dbmodels.TABLE_STUDIES+" AS s").
			Where(squirrel.Eq{"s.id": id}),
		dbmodels.AdaptStudy,
	)
}
