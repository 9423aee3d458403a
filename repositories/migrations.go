package repositories

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/singlecellportal/ingest-orchestrator/infra"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const migrationsFolder = "migrations"

type slogGooseLogger struct {
	logger *slog.Logger
}

func (l slogGooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

func (l slogGooseLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func RunMigrations(ctx context.Context, pgConfig infra.PgConfig, logger *slog.Logger) error {
	db, err := sql.Open("pgx", pgConfig.GetConnectionString())
	if err != nil {
		return errors.Wrap(err, "unable to connect to database")
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "unable to ping database")
	}

	logger.InfoContext(ctx, "Migrations starting to setup DB")
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(slogGooseLogger{logger: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, migrationsFolder); err != nil {
		return errors.Wrap(err, "unable to run migrations")
	}

	return runRiverMigrations(ctx, pgConfig, logger)
}

// runRiverMigrations creates or upgrades the job queue tables
func runRiverMigrations(ctx context.Context, pgConfig infra.PgConfig, logger *slog.Logger) error {
	pool, err := pgxpool.New(ctx, pgConfig.GetConnectionString())
	if err != nil {
		return errors.Wrap(err, "unable to create connection pool for river migrations")
	}
	defer pool.Close()

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), &rivermigrate.Config{Logger: logger})
	if err != nil {
		return errors.Wrap(err, "unable to create river migrator")
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return errors.Wrap(err, "unable to run river migrations")
	}
	for _, version := range res.Versions {
		logger.InfoContext(ctx, "applied river migration", "version", version.Version)
	}
	return nil
}
