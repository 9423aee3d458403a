package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/getsentry/sentry-go"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/singlecellportal/ingest-orchestrator/utils"
)

const (
	sentryErrorGroupingTime = 30 * time.Second
	sdkIdentifier           = "sentry.go.river.ingest-orchestrator"
)

// studyFileAttrs reads the study and study file ids carried by the job args, if any
func studyFileAttrs(job *rivertype.JobRow) (studyId, studyFileId string) {
	result := gjson.GetManyBytes(job.EncodedArgs, "study_id", "study_file_id")
	return result[0].String(), result[1].String()
}

// Logger middleware

type LoggerMiddleware struct {
	l              *slog.Logger
	errorCount     map[string]int
	errorCountLock *sync.Mutex
}

// IsMiddleware marks LoggerMiddleware as a river middleware
func (m LoggerMiddleware) IsMiddleware() bool { return true }

func (m LoggerMiddleware) Work(ctx context.Context, job *rivertype.JobRow, doInner func(context.Context) error) error {
	attrs := []any{
		"job_id", job.ID,
		"job_kind", job.Kind,
		"job_attempt", job.Attempt,
		"created_at", job.CreatedAt,
		"queue", job.Queue,
	}
	if studyId, studyFileId := studyFileAttrs(job); studyFileId != "" {
		attrs = append(attrs, "study_id", studyId, "study_file_id", studyFileId)
	}
	logger := m.l.With(attrs...)
	start := time.Now()
	logger.DebugContext(ctx, fmt.Sprintf("Starting %s job n°%d - attempt %d", job.Kind, job.ID, job.Attempt))

	ctx = utils.StoreLoggerInContext(ctx, logger)
	err := doInner(ctx)
	var snoozeErr *river.JobSnoozeError
	if err != nil && errors.As(err, &snoozeErr) {
		logger.DebugContext(ctx, fmt.Sprintf("%s job n°%d snoozed after %s", job.Kind, job.ID, time.Since(start)))
		return err
	} else if err != nil {
		logger.ErrorContext(ctx, fmt.Sprintf("%s job n°%d failed after %s", job.Kind, job.ID, time.Since(start)),
			"error", err.Error())
		m.aggregateAndLogError(ctx, job, err)
		return err
	}

	logger.InfoContext(ctx, fmt.Sprintf("%s job n°%d succeeded after %s", job.Kind, job.ID, time.Since(start)))
	return nil
}

// aggregateAndLogError reports an error to sentry at most once per grouping window for a given job kind
func (m LoggerMiddleware) aggregateAndLogError(ctx context.Context, job *rivertype.JobRow, err error) {
	m.errorCountLock.Lock()
	defer m.errorCountLock.Unlock()

	errorKey := fmt.Sprintf("%s:%s", job.Kind, err.Error())
	m.errorCount[errorKey]++

	if m.errorCount[errorKey] == 1 {
		go func() {
			time.Sleep(sentryErrorGroupingTime)
			m.errorCountLock.Lock()
			defer m.errorCountLock.Unlock()

			delete(m.errorCount, errorKey)

			utils.LogAndReportSentryError(ctx, err)
		}()
	}
}

func NewLoggerMiddleware(l *slog.Logger) LoggerMiddleware {
	return LoggerMiddleware{l: l, errorCount: make(map[string]int), errorCountLock: &sync.Mutex{}}
}

// Recovered middleware

type RecovererMiddleware struct{}

// IsMiddleware marks RecovererMiddleware as a river middleware
func (m RecovererMiddleware) IsMiddleware() bool { return true }

func (m RecovererMiddleware) Work(ctx context.Context, job *rivertype.JobRow, doInner func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic in %s job n°%d: %v", job.Kind, job.ID, r)
		}
	}()
	return doInner(ctx)
}

func NewRecoveredMiddleware() RecovererMiddleware {
	return RecovererMiddleware{}
}

// Opentelemetry tracing middleware

type TracingMiddleware struct {
	tracer trace.Tracer
}

// IsMiddleware marks TracingMiddleware as a river middleware
func (m TracingMiddleware) IsMiddleware() bool { return true }

func (m TracingMiddleware) Work(ctx context.Context, job *rivertype.JobRow, doInner func(context.Context) error) error {
	studyId, studyFileId := studyFileAttrs(job)
	ctx, span := m.tracer.Start(
		ctx,
		job.Kind,
		trace.WithAttributes(
			attribute.Int64("job_id", job.ID),
			attribute.String("job_kind", job.Kind),
			attribute.Int("job_attempt", job.Attempt),
			attribute.String("created_at", job.CreatedAt.Format(time.RFC3339)),
			attribute.String("queue", job.Queue),
			attribute.String("study_id", studyId),
			attribute.String("study_file_id", studyFileId),
		),
	)
	defer span.End()

	ctx = utils.StoreOpenTelemetryTracerInContext(ctx, m.tracer)
	err := doInner(ctx)
	var snoozeErr *river.JobSnoozeError
	if err != nil && !errors.As(err, &snoozeErr) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func NewTracingMiddleware(tracer trace.Tracer) TracingMiddleware {
	return TracingMiddleware{tracer: tracer}
}

// Sentry middleware

type SentryMiddleware struct{}

// IsMiddleware marks SentryMiddleware as a river middleware
func (m SentryMiddleware) IsMiddleware() bool { return true }

func (m SentryMiddleware) Work(ctx context.Context, job *rivertype.JobRow, doInner func(context.Context) error) error {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
		ctx = sentry.SetHubOnContext(ctx, hub)
	}

	if client := hub.Client(); client != nil {
		client.SetSDKIdentifier(sdkIdentifier)
	}

	scope := hub.PushScope()
	defer hub.PopScope()
	scope.SetTag("job_id", strconv.FormatInt(job.ID, 10))
	scope.SetTag("job_kind", job.Kind)
	scope.SetTag("job_attempt", strconv.Itoa(job.Attempt))
	scope.SetTag("queue", job.Queue)
	if studyId, studyFileId := studyFileAttrs(job); studyFileId != "" {
		scope.SetTag("study_id", studyId)
		scope.SetTag("study_file_id", studyFileId)
	}
	var args map[string]any
	if err := json.Unmarshal(job.EncodedArgs, &args); err != nil {
		scope.SetTag("payload", "error decoding payload")
	} else {
		scope.SetExtra("payload", args)
	}

	transaction := sentry.StartTransaction(ctx,
		fmt.Sprintf("river task %s", job.Kind),
		sentry.WithOpName("river.task"),
		sentry.WithTransactionSource(sentry.SourceTask),
	)
	defer transaction.Finish()

	return doInner(transaction.Context())
}

func NewSentryMiddleware() SentryMiddleware {
	return SentryMiddleware{}
}
