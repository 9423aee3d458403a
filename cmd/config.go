package cmd

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/singlecellportal/ingest-orchestrator/infra"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

const appName = "ingest-orchestrator"

type CompiledConfig struct {
	Version string
}

type WorkerConfig struct {
	env                       string
	adminEmail                string
	loggingFormat             string
	sentryDsn                 string
	cloudRunProbePort         string
	pipelineConfigurationFile string
	failedUploadSweepCron     string
	telemetryExporter         string
	otelSamplingRates         string
}

func (config WorkerConfig) Validate() error {
	if config.adminEmail == "" {
		return errors.New("ADMIN_EMAIL is required, exhausted upload cleanups are reported to it")
	}
	switch config.loggingFormat {
	case "text", "json":
	default:
		return errors.Newf("LOGGING_FORMAT must be text or json, got %q", config.loggingFormat)
	}
	return nil
}

func pgConfigFromEnv() infra.PgConfig {
	return infra.PgConfig{
		ConnectionString:    utils.GetEnv("PG_CONNECTION_STRING", ""),
		Database:            utils.GetEnv("PG_DATABASE", "single_cell_portal"),
		DbConnectWithSocket: utils.GetEnv("PG_CONNECT_WITH_SOCKET", false),
		Hostname:            utils.GetEnv("PG_HOSTNAME", ""),
		Password:            utils.GetEnv("PG_PASSWORD", ""),
		Port:                utils.GetEnv("PG_PORT", "5432"),
		User:                utils.GetEnv("PG_USER", ""),
		MaxPoolConnections:  utils.GetEnv("PG_MAX_POOL_SIZE", infra.DEFAULT_MAX_CONNECTIONS),
		SslMode:             utils.GetEnv("PG_SSL_MODE", "prefer"),
	}
}

func workerConfigFromEnv() WorkerConfig {
	return WorkerConfig{
		env:                       utils.GetEnv("ENV", "development"),
		adminEmail:                utils.GetEnv("ADMIN_EMAIL", ""),
		loggingFormat:             utils.GetEnv("LOGGING_FORMAT", "text"),
		sentryDsn:                 utils.GetEnv("SENTRY_DSN", ""),
		cloudRunProbePort:         utils.GetEnv("CLOUD_RUN_PROBE_PORT", ""),
		pipelineConfigurationFile: utils.GetEnv("PIPELINE_CONFIGURATION_FILE", ""),
		failedUploadSweepCron:     utils.GetEnv("FAILED_UPLOAD_SWEEP_CRON", ""),
		telemetryExporter:         utils.GetEnv("TRACING_EXPORTER", "otlp"),
		otelSamplingRates:         utils.GetEnv("TRACING_SAMPLING_RATES", ""),
	}
}

func storageConfigFromEnv() infra.StorageConfig {
	return infra.StorageConfig{
		LocalBucketUrl:    utils.GetRequiredEnv[string]("LOCAL_UPLOAD_BUCKET_URL"),
		StudyBucketScheme: utils.GetEnv("STUDY_BUCKET_SCHEME", "gs"),
		StudyBucketRoot:   utils.GetEnv("STUDY_BUCKET_ROOT", ""),
	}
}

func pipelineApiConfigFromEnv() infra.PipelineApiConfig {
	return infra.PipelineApiConfig{
		BaseUrl: utils.GetRequiredEnv[string]("PIPELINE_API_URL"),
		Token:   utils.GetEnv("PIPELINE_API_TOKEN", ""),
		Timeout: utils.GetEnv("PIPELINE_API_TIMEOUT", 30*time.Second),
	}
}

// parseSamplingRates reads "span_name=ratio" pairs separated by commas
func parseSamplingRates(raw string) (map[string]float64, error) {
	rates := make(map[string]float64)
	if strings.TrimSpace(raw) == "" {
		return rates, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || name == "" {
			return nil, errors.Newf("invalid sampling rate %q, expected span_name=ratio", pair)
		}
		ratio, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid sampling ratio for %s", name)
		}
		if ratio < 0 || ratio > 1 {
			return nil, errors.Newf("sampling ratio for %s must be between 0 and 1", name)
		}
		rates[name] = ratio
	}
	return rates, nil
}
