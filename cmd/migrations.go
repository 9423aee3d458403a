package cmd

import (
	"context"

	"github.com/singlecellportal/ingest-orchestrator/repositories"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

func RunMigrations() error {
	pgConfig := pgConfigFromEnv()

	logger := utils.NewLogger(utils.GetEnv("LOGGING_FORMAT", "text"))
	ctx := utils.StoreLoggerInContext(context.Background(), logger)

	if err := repositories.RunMigrations(ctx, pgConfig, logger); err != nil {
		logger.ErrorContext(ctx, "error running migrations", "error", err.Error())
		return err
	}
	return nil
}
