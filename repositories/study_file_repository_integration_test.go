//go:build integration

package repositories

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/singlecellportal/ingest-orchestrator/infra"
	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

const (
	integrationStudyId  = "0b9f8d52-6a3c-4d6e-9a41-5f6c3e2d1a10"
	integrationMatrixId = "3c2e7f61-8d4b-4b1a-a5e9-7d0c9b8a6f21"
	integrationGenesId  = "9a1d4c37-2b6e-4f08-b3c5-1e7f2a9d8c32"
)

var integrationPool *pgxpool.Pool

// TestMain runs the migrations on a disposable postgres, run with `go test -tags integration ./repositories/...`
func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("single_cell_portal"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("pwd"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("Could not start postgres: %s", err)
	}

	connectionString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("Could not get the connection string: %s", err)
	}
	logger := utils.NewLogger("text")
	ctx = utils.StoreLoggerInContext(ctx, logger)
	if err := RunMigrations(ctx, infra.PgConfig{ConnectionString: connectionString}, logger); err != nil {
		log.Fatalf("Could not run migrations: %s", err)
	}

	integrationPool, err = pgxpool.New(ctx, connectionString)
	if err != nil {
		log.Fatalf("Could not connect to database: %s", err)
	}

	code := m.Run()

	integrationPool.Close()
	if err := testcontainers.TerminateContainer(container); err != nil {
		log.Printf("Could not terminate postgres: %s", err)
	}
	os.Exit(code)
}

func seedStudyFiles(t *testing.T, ctx context.Context) {
	t.Helper()
	_, err := integrationPool.Exec(ctx, `INSERT INTO studies (id, accession, name, bucket_id, user_id, user_email)
		VALUES ($1, 'SCP1', 'Human brain atlas', 'fc-bucket-1', 'user-1', 'owner@example.com')
		ON CONFLICT DO NOTHING`, integrationStudyId)
	require.NoError(t, err)

	_, err = integrationPool.Exec(ctx, `INSERT INTO study_files (id, study_id, name, file_type, upload_file_name, options)
		VALUES
			($1, $3, 'matrix.mtx', 'MM Coordinate Matrix', 'matrix.mtx', '{}'::JSONB),
			($2, $3, 'genes.tsv', '10X Genes File', 'genes.tsv', '{"matrix_id": "M"}'::JSONB)
		ON CONFLICT DO NOTHING`, integrationMatrixId, integrationGenesId, integrationStudyId)
	require.NoError(t, err)
}

func TestIntegration_GetStudyFileById(t *testing.T) {
	ctx := context.Background()
	seedStudyFiles(t, ctx)
	repo := NewStudyDbRepository()
	exec := NewPgExecutor(integrationPool)

	matrix, err := repo.GetStudyFileById(ctx, exec, integrationMatrixId)
	require.NoError(t, err)
	assert.Equal(t, models.FileTypeMMCoordinateMatrix, matrix.FileType)

	_, err = repo.GetStudyFileById(ctx, exec, "5d6e7f80-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, models.NotFoundError)

	// what a user typed in the options of the genes file, postgres rejects it on the uuid column
	_, err = repo.GetStudyFileById(ctx, exec, "M")
	assert.ErrorIs(t, err, models.NotFoundError)
}

func TestIntegration_ListStudyFilesByTypesAndOption_MalformedParent(t *testing.T) {
	ctx := context.Background()
	seedStudyFiles(t, ctx)

	files, err := NewStudyDbRepository().ListStudyFilesByTypesAndOption(ctx, NewPgExecutor(integrationPool),
		integrationStudyId, []models.StudyFileType{models.FileType10XGenes}, "matrix_id", "M")

	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, integrationGenesId, files[0].Id)
}
