package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/singlecellportal/ingest-orchestrator/infra"
	"github.com/singlecellportal/ingest-orchestrator/jobs"
	"github.com/singlecellportal/ingest-orchestrator/repositories"
	"github.com/singlecellportal/ingest-orchestrator/usecases"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

func RunWorker(apiVersion string) error {
	gcpConfig := infra.GcpConfig{
		EnableTracing:                utils.GetEnv("ENABLE_TRACING", false),
		ProjectId:                    utils.GetEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleApplicationCredentials: utils.GetEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
	}
	pgConfig := pgConfigFromEnv()
	storageConfig := storageConfigFromEnv()
	pipelineApiConfig := pipelineApiConfigFromEnv()
	workerConfig := workerConfigFromEnv()
	queueConfig := struct {
		ingestMaxWorkers  int
		storageMaxWorkers int
	}{
		ingestMaxWorkers:  utils.GetEnv("INGEST_QUEUE_MAX_WORKERS", 10),
		storageMaxWorkers: utils.GetEnv("STORAGE_QUEUE_MAX_WORKERS", 5),
	}

	logger := utils.NewLogger(workerConfig.loggingFormat)
	ctx := utils.StoreLoggerInContext(context.Background(), logger)
	if err := workerConfig.Validate(); err != nil {
		logger.ErrorContext(ctx, "invalid worker configuration", "error", err.Error())
		return err
	}

	infra.SetupSentry(workerConfig.sentryDsn, workerConfig.env, apiVersion)
	defer sentry.Flush(3 * time.Second)

	samplingRates, err := parseSamplingRates(workerConfig.otelSamplingRates)
	if err != nil {
		utils.LogAndReportSentryError(ctx, err)
		return err
	}
	tracingConfig := infra.TelemetryConfiguration{
		ApplicationName: appName,
		Enabled:         gcpConfig.EnableTracing,
		ProjectID:       gcpConfig.ProjectId,
		Exporter:        workerConfig.telemetryExporter,
		SamplingMap:     samplingRates,
	}
	telemetryRessources, err := infra.InitTelemetry(tracingConfig, apiVersion)
	if err != nil {
		utils.LogAndReportSentryError(ctx, err)
		telemetryRessources = infra.NoopTelemetry()
	}
	ctx = utils.StoreOpenTelemetryTracerInContext(ctx, telemetryRessources.Tracer)

	pipelineConfiguration, err := infra.LoadPipelineConfiguration(workerConfig.pipelineConfigurationFile)
	if err != nil {
		utils.LogAndReportSentryError(ctx, err)
		return err
	}

	pool, err := infra.NewPostgresConnectionPool(ctx, pgConfig.GetConnectionString(),
		telemetryRessources.TracerProvider, pgConfig.MaxPoolConnections)
	if err != nil {
		utils.LogAndReportSentryError(ctx, err)
		return err
	}
	defer pool.Close()

	blobRepository, err := repositories.NewBlobRepository(storageConfig, gcpConfig.GoogleApplicationCredentials)
	if err != nil {
		utils.LogAndReportSentryError(ctx, err)
		return err
	}

	// First, create an insert-only client to pass to the repos: river uses the same client for job insertion
	// and job running, and the workers need working repos first.
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		utils.LogAndReportSentryError(ctx, err)
		return err
	}

	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(telemetryRessources.TracerProvider)),
		Timeout: pipelineApiConfig.Timeout,
	}
	repos := repositories.NewRepositories(
		pool,
		blobRepository,
		pipelineApiConfig,
		repositories.WithRiverClient(riverClient),
		repositories.WithHttpClient(httpClient),
	)

	uc := usecases.NewUsecases(repos,
		pipelineConfiguration,
		usecases.WithAdminEmail(workerConfig.adminEmail),
		usecases.WithEnvironment(workerConfig.env),
		usecases.WithFailedUploadSweepSchedule(workerConfig.failedUploadSweepCron),
	)

	workers := river.NewWorkers()
	river.AddWorker(workers, uc.NewIngestStudyFileWorker())
	river.AddWorker(workers, uc.NewDispatchStudyFileWorker())
	river.AddWorker(workers, uc.NewPushStudyFileWorker())
	river.AddWorker(workers, uc.NewUploadCleanupWorker())
	river.AddWorker(workers, uc.NewFailedUploadSweepWorker())

	sweepJob, err := uc.NewFailedUploadSweepPeriodicJob()
	if err != nil {
		utils.LogAndReportSentryError(ctx, err)
		return err
	}

	riverClient, err = river.NewClient(riverpgxv5.New(pool), &river.Config{
		FetchPollInterval: 500 * time.Millisecond,
		Queues: map[string]river.QueueConfig{
			repositories.QueueIngest:  {MaxWorkers: queueConfig.ingestMaxWorkers},
			repositories.QueueStorage: {MaxWorkers: queueConfig.storageMaxWorkers},
		},
		PeriodicJobs: []*river.PeriodicJob{sweepJob},
		// Must be larger than the longest job timeout, a push of a large matrix can take a while.
		RescueStuckJobsAfter: 45 * time.Minute,
		WorkerMiddleware: []rivertype.WorkerMiddleware{
			jobs.NewTracingMiddleware(telemetryRessources.Tracer),
			jobs.NewSentryMiddleware(),
			jobs.NewLoggerMiddleware(logger),
			jobs.NewRecoveredMiddleware(),
		},
		Workers: workers,
	})
	if err != nil {
		utils.LogAndReportSentryError(ctx, err)
		return err
	}

	if err := riverClient.Start(ctx); err != nil {
		utils.LogAndReportSentryError(ctx, err)
		return err
	}
	logger.InfoContext(ctx, "River client started",
		"version", apiVersion, "env", workerConfig.env)

	var probeServer *http.Server
	if workerConfig.cloudRunProbePort != "" {
		liveness := uc.NewLivenessUsecase()
		probeServer = runProbeServer(ctx, workerConfig.cloudRunProbePort,
			newProbeRouter(ctx, workerConfig.env, &liveness))
	}

	// Teardown sequence
	sigintOrTerm := make(chan os.Signal, 1)
	signal.Notify(sigintOrTerm, syscall.SIGINT, syscall.SIGTERM)

	go cleanStop(ctx, sigintOrTerm, riverClient)

	<-riverClient.Stopped()
	logger.InfoContext(ctx, "River client stopped")

	if probeServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := probeServer.Shutdown(shutdownCtx); err != nil {
			logger.WarnContext(ctx, "probe server shutdown", "error", err.Error())
		}
	}

	return nil
}

// This stop goroutine waits for SIGINT/SIGTERM and when received, tries to stop
// gracefully by allowing a chance for jobs to finish. But if that isn't
// working, a second SIGINT/SIGTERM will tell it to terminate with prejudice and
// it'll issue a hard stop that cancels the context of all active jobs.
// Ingest jobs only poll the engine, a cancelled poll is picked up again by the
// next worker once river rescues the job.
func cleanStop(ctx context.Context, sigintOrTerm chan os.Signal, riverClient *river.Client[pgx.Tx]) {
	logger := utils.LoggerFromContext(ctx)
	<-sigintOrTerm
	logger.InfoContext(ctx, "Received SIGINT/SIGTERM; initiating soft stop (try to wait for jobs to finish)")

	softStopCtx, softStopCtxCancel := context.WithTimeout(ctx, 5*time.Second)
	defer softStopCtxCancel()

	go func() {
		select {
		case <-sigintOrTerm:
			logger.InfoContext(ctx, "Received SIGINT/SIGTERM again; initiating hard stop (cancel everything)")
			softStopCtxCancel()
		case <-softStopCtx.Done():
			logger.InfoContext(ctx, "Soft stop timeout; initiating hard stop (cancel everything)")
		}
	}()

	err := riverClient.Stop(softStopCtx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		logger.ErrorContext(ctx, "Soft stop failed", "error", err)
		panic(err)
	}
	if err == nil {
		logger.InfoContext(ctx, "Soft stop succeeded")
		return
	}

	hardStopCtx, hardStopCtxCancel := context.WithTimeout(ctx, 10*time.Second)
	defer hardStopCtxCancel()

	err = riverClient.StopAndCancel(hardStopCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		logger.InfoContext(ctx, "Hard stop timeout; ignoring stop procedure and exiting unsafely")
	} else if err != nil {
		panic(err)
	}
}
