package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/repositories/dbmodels"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func beginMockTx(t *testing.T, pool pgxmock.PgxPoolIface) Transaction {
	t.Helper()
	pool.ExpectBegin()
	tx, err := pool.Begin(context.Background())
	require.NoError(t, err)
	return NewPgTx(tx)
}

func studyFileRow(id, studyId string, fileType models.StudyFileType, created time.Time) []any {
	return []any{
		id,
		studyId,
		faker.Word(),
		fileType.String(),
		faker.Word() + ".txt",
		int64(1024),
		string(models.UploadStatusUploading),
		string(models.ParseStateUnparsed),
		nil,
		(*time.Time)(nil),
		"",
		nil,
		map[string]string{},
		true,
		false,
		nil,
		nil,
		created,
		created,
	}
}

const acquireLeaseSql = `UPDATE study_files SET parse_status = \$1, parse_lease_holder = \$2, parse_lease_expires_at = \$3, ` +
	`updated_at = NOW\(\) WHERE id IN \(\$4,\$5\) AND NOT \(parse_status = 'parsing'.* RETURNING id`

func TestAcquireParseLease(t *testing.T) {
	ctx := context.Background()
	pool := newMockPool(t)
	repo := NewStudyDbRepository()
	expiresAt := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	input := models.AcquireParseLeaseInput{
		StudyFileIds: []string{"matrix", "genes"},
		HolderId:     "holder",
		ExpiresAt:    expiresAt,
	}

	t.Run("all files leased", func(t *testing.T) {
		tx := beginMockTx(t, pool)
		pool.ExpectQuery(acquireLeaseSql).
			WithArgs(models.ParseStateParsing, "holder", expiresAt, "matrix", "genes").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("matrix").AddRow("genes"))

		err := repo.AcquireParseLease(ctx, tx, input)
		assert.NoError(t, err)
	})

	t.Run("one lease is held elsewhere", func(t *testing.T) {
		tx := beginMockTx(t, pool)
		pool.ExpectQuery(acquireLeaseSql).
			WithArgs(models.ParseStateParsing, "holder", expiresAt, "matrix", "genes").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("genes"))

		err := repo.AcquireParseLease(ctx, tx, input)
		assert.ErrorIs(t, err, models.ErrParseLeaseHeld)
		assert.ErrorIs(t, err, models.ConflictError)
	})

	t.Run("no file", func(t *testing.T) {
		tx := beginMockTx(t, pool)
		err := repo.AcquireParseLease(ctx, tx, models.AcquireParseLeaseInput{HolderId: "holder"})
		assert.ErrorIs(t, err, models.BadParameterError)
	})

	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestFinishParse(t *testing.T) {
	ctx := context.Background()
	pool := newMockPool(t)
	repo := NewStudyDbRepository()
	finishSql := `UPDATE study_files SET parse_status = \$1, parse_lease_holder = \$2, parse_lease_expires_at = \$3, ` +
		`updated_at = NOW\(\) WHERE parse_lease_holder = \$4 AND parse_status = \$5`

	pool.ExpectExec(finishSql).
		WithArgs(models.ParseStateParsed, nil, nil, "holder", models.ParseStateParsing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	released, err := repo.FinishParse(ctx, NewPgExecutor(pool), models.FinishParseInput{HolderId: "holder", Success: true})
	require.NoError(t, err)
	assert.True(t, released)

	pool.ExpectExec(finishSql).
		WithArgs(models.ParseStateUnparsed, nil, nil, "stale", models.ParseStateParsing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	released, err = repo.FinishParse(ctx, NewPgExecutor(pool), models.FinishParseInput{HolderId: "stale"})
	require.NoError(t, err)
	assert.False(t, released, "a lease taken over by another holder is not released")

	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestUpdateStudyFile(t *testing.T) {
	ctx := context.Background()
	pool := newMockPool(t)
	repo := NewStudyDbRepository()
	updateSql := `UPDATE study_files SET updated_at = NOW\(\), upload_status = \$1, generation = \$2 WHERE id = \$3`
	generation := "1714651200000000"
	status := models.UploadStatusUploaded
	input := models.UpdateStudyFileInput{Id: "f1", UploadStatus: &status, Generation: &generation}

	pool.ExpectExec(updateSql).
		WithArgs(models.UploadStatusUploaded, generation, "f1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.UpdateStudyFile(ctx, NewPgExecutor(pool), input))

	pool.ExpectExec(updateSql).
		WithArgs(models.UploadStatusUploaded, generation, "f1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.UpdateStudyFile(ctx, NewPgExecutor(pool), input), models.NotFoundError)

	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestListFailedUploads(t *testing.T) {
	ctx := context.Background()
	pool := newMockPool(t)
	repo := NewStudyDbRepository()
	cutoff := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	fileId := faker.UUIDHyphenated()
	studyId := faker.UUIDHyphenated()

	pool.ExpectQuery(`SELECT .* FROM study_files WHERE external_url IS NULL AND generation IS NULL AND ` +
		`parse_status = \$1 AND queued_for_deletion = \$2 AND upload_status = \$3 AND created_at <= \$4 ORDER BY created_at`).
		WithArgs(models.ParseStateUnparsed, false, models.UploadStatusUploading, cutoff).
		WillReturnRows(pgxmock.NewRows(dbmodels.SelectStudyFileColumn).
			AddRow(studyFileRow(fileId, studyId, models.FileTypeCluster, cutoff.Add(-time.Hour))...))

	files, err := repo.ListFailedUploads(ctx, NewPgExecutor(pool), models.FailedUploadsFilter{CreatedBefore: cutoff})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, fileId, files[0].Id)
	assert.Equal(t, models.FileTypeCluster, files[0].FileType)
	assert.Equal(t, models.UploadStatusUploading, files[0].UploadStatus)
	assert.Nil(t, files[0].Generation)
	assert.Empty(t, files[0].ParseLease.HolderId)
	assert.True(t, files[0].IsLocal)

	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestGetStudyFileById_NotFound(t *testing.T) {
	pool := newMockPool(t)
	repo := NewStudyDbRepository()

	pool.ExpectQuery(`SELECT .* FROM study_files WHERE id = \$1`).
		WithArgs("6b0a3f7e-1f53-4a8e-9d3c-2f1b9f0d6a11").
		WillReturnRows(pgxmock.NewRows(dbmodels.SelectStudyFileColumn))

	_, err := repo.GetStudyFileById(context.Background(), NewPgExecutor(pool), "6b0a3f7e-1f53-4a8e-9d3c-2f1b9f0d6a11")
	assert.ErrorIs(t, err, models.NotFoundError)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestGetStudyFileById_MalformedId(t *testing.T) {
	pool := newMockPool(t)
	repo := NewStudyDbRepository()

	for _, id := range []string{"M", "", "matrix.tsv"} {
		_, err := repo.GetStudyFileById(context.Background(), NewPgExecutor(pool), id)
		assert.ErrorIs(t, err, models.NotFoundError, id)
	}
	assert.NoError(t, pool.ExpectationsWereMet(), "a malformed id never reaches postgres")
}

