package cmd

import (
	"context"
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/singlecellportal/ingest-orchestrator/utils"
)

type livenessChecker interface {
	Liveness(ctx context.Context) error
}

// newProbeRouter serves the Cloud Run probes and the prometheus metrics of the worker
func newProbeRouter(ctx context.Context, env string, liveness livenessChecker) *gin.Engine {
	if env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := utils.LoggerFromContext(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))

	r.GET("/liveness", func(c *gin.Context) {
		if err := liveness.Liveness(c.Request.Context()); err != nil {
			logger.WarnContext(c.Request.Context(), "liveness check failed", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"mood": "Down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mood": "Feu flammes !"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return r
}

// runProbeServer is non-blocking, it fulfills the Cloud Run contract for services that only run workers
func runProbeServer(ctx context.Context, port string, router *gin.Engine) *http.Server {
	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.LogAndReportSentryError(ctx, err)
		}
	}()
	return server
}
