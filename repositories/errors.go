package repositories

import (
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/singlecellportal/ingest-orchestrator/models"
)

func IsUniqueViolationError(err error) bool {
	var pgxErr *pgconn.PgError
	return errors.As(err, &pgxErr) && pgxErr.Code == pgerrcode.UniqueViolation
}

// asConflict turns a unique violation into a models.ConflictError, other errors are returned as is
func asConflict(err error, format string, args ...any) error {
	if IsUniqueViolationError(err) {
		return errors.Wrapf(models.ConflictError, format, args...)
	}
	return err
}
