package repositories

import (
	"context"

	"github.com/cockroachdb/errors"
)

func (repo *StudyDbRepository) Liveness(ctx context.Context, exec Executor) error {
	sql := "SELECT 1"
	row := exec.QueryRow(ctx, sql)
	var result int
	if err := row.Scan(&result); err != nil {
		return errors.Wrap(err, "database is not reachable")
	}
	return nil
}
