package jobs

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/singlecellportal/ingest-orchestrator/utils"
)

func pushJobRow() *rivertype.JobRow {
	return &rivertype.JobRow{
		ID:          42,
		Kind:        "push_study_file",
		Attempt:     1,
		Queue:       "storage",
		CreatedAt:   time.Now(),
		EncodedArgs: []byte(`{"study_id":"study-1","study_file_id":"file-1"}`),
	}
}

func TestStudyFileAttrs(t *testing.T) {
	studyId, studyFileId := studyFileAttrs(pushJobRow())
	assert.Equal(t, "study-1", studyId)
	assert.Equal(t, "file-1", studyFileId)

	studyId, studyFileId = studyFileAttrs(&rivertype.JobRow{EncodedArgs: []byte(`{}`)})
	assert.Empty(t, studyId)
	assert.Empty(t, studyFileId)
}

func TestRecovererMiddleware(t *testing.T) {
	err := NewRecoveredMiddleware().Work(context.Background(), pushJobRow(), func(context.Context) error {
		panic("nil map")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "push_study_file job n°42")
	assert.Contains(t, err.Error(), "nil map")
}

func TestLoggerMiddleware_AddsJobAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := NewLoggerMiddleware(logger).Work(context.Background(), pushJobRow(), func(ctx context.Context) error {
		utils.LoggerFromContext(ctx).InfoContext(ctx, "copying")
		return nil
	})

	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"study_file_id":"file-1"`)
	assert.Contains(t, buf.String(), `"job_kind":"push_study_file"`)
	assert.Contains(t, buf.String(), "succeeded after")
}

func TestLoggerMiddleware_SnoozeIsNotAFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := NewLoggerMiddleware(logger)

	err := m.Work(context.Background(), pushJobRow(), func(context.Context) error {
		return river.JobSnooze(30 * time.Second)
	})

	var snoozeErr *river.JobSnoozeError
	assert.True(t, errors.As(err, &snoozeErr))
	assert.Contains(t, buf.String(), "snoozed after")
	assert.Empty(t, m.errorCount)
}

func TestTracingMiddleware_PassesErrorsThrough(t *testing.T) {
	expected := errors.New("engine unavailable")
	m := NewTracingMiddleware(noop.NewTracerProvider().Tracer(""))

	err := m.Work(context.Background(), pushJobRow(), func(context.Context) error {
		return expected
	})

	assert.ErrorIs(t, err, expected)
}
