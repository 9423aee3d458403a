package repositories

import (
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/singlecellportal/ingest-orchestrator/utils"
)

func NewQueryBuilder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func columnsNames(tablename string, fields []string) []string {
	return utils.Map(fields, func(f string) string {
		return fmt.Sprintf("%s.%s", tablename, f)
	})
}
