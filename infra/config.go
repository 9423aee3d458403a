package infra

import (
	"fmt"
	"time"
)

const DEFAULT_MAX_CONNECTIONS = 20

type GcpConfig struct {
	ProjectId                    string
	GoogleApplicationCredentials string
	EnableTracing                bool
}

type PgConfig struct {
	ConnectionString    string
	Database            string
	DbConnectWithSocket bool
	Hostname            string
	Password            string
	Port                string
	User                string
	MaxPoolConnections  int
	SslMode             string
}

func (config PgConfig) GetConnectionString() string {
	if config.ConnectionString != "" {
		return config.ConnectionString
	}

	if config.SslMode == "" {
		config.SslMode = "prefer"
	}

	connectionString := fmt.Sprintf("host=%s user=%s password=%s database=%s sslmode=%s",
		config.Hostname, config.User, config.Password, config.Database, config.SslMode)
	if !config.DbConnectWithSocket {
		// Cloud Run reaches the database through a unix socket, the port is only needed otherwise
		connectionString = fmt.Sprintf("%s port=%s", connectionString, config.Port)
	}
	return connectionString
}

// StorageConfig locates the buckets. Study buckets are addressed by the bucket id of the study, on the
// provider given by StudyBucketScheme ("gs", "s3" or "file").
type StorageConfig struct {
	LocalBucketUrl    string
	StudyBucketScheme string
	// Root directory of the study buckets when StudyBucketScheme is "file", for local development
	StudyBucketRoot string
}

// PipelineApiConfig points to the ingestion engine that runs the actual file parsing
type PipelineApiConfig struct {
	BaseUrl string
	Token   string
	Timeout time.Duration
}

type TelemetryConfiguration struct {
	Enabled         bool
	ApplicationName string
	ProjectID       string
	// "gcp" or "otlp"
	Exporter    string
	SamplingMap map[string]float64
}
