package infra

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
)

func NewPostgresConnectionPool(
	ctx context.Context,
	connectionString string,
	tp trace.TracerProvider,
	maxConnections int,
) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	cfg.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithTracerProvider(tp))
	if maxConnections <= 0 {
		maxConnections = DEFAULT_MAX_CONNECTIONS
	}
	cfg.MaxConns = int32(maxConnections)
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create connection pool")
	}

	if err := otelpgx.RecordStats(pool); err != nil {
		return nil, errors.Wrap(err, "unable to record database stats")
	}

	return pool, nil
}
