package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"

	"github.com/singlecellportal/ingest-orchestrator/infra"
	"github.com/singlecellportal/ingest-orchestrator/models"
	"github.com/singlecellportal/ingest-orchestrator/utils"
)

const (
	pipelineRetryAttempts = 3
	pipelineRetryDelay    = 500 * time.Millisecond
)

// PipelineRepository talks to the remote ingestion engine
type PipelineRepository interface {
	SubmitRun(ctx context.Context, request models.PipelineRunRequest) error
	// GetRun returns a NotFoundError if the engine does not know the run
	GetRun(ctx context.Context, runName string) (models.PipelineRun, error)
	InitializePrecomputedScores(ctx context.Context, request models.PipelineRunRequest) error
}

type pipelineRepository struct {
	config     infra.PipelineApiConfig
	client     *http.Client
	retryDelay time.Duration
}

func NewPipelineRepository(config infra.PipelineApiConfig, client *http.Client) PipelineRepository {
	return pipelineRepository{config: config, client: client, retryDelay: pipelineRetryDelay}
}

type pipelineStatusError struct {
	statusCode int
	body       string
}

func (e pipelineStatusError) Error() string {
	return "ingestion engine answered " + http.StatusText(e.statusCode) + ": " + e.body
}

func (r pipelineRepository) SubmitRun(ctx context.Context, request models.PipelineRunRequest) error {
	_, err := r.do(ctx, http.MethodPost, "/runs", request)
	if err != nil {
		return errors.Wrapf(err, "could not submit run %s", request.RunName)
	}
	return nil
}

func (r pipelineRepository) GetRun(ctx context.Context, runName string) (models.PipelineRun, error) {
	body, err := r.do(ctx, http.MethodGet, "/runs/"+url.PathEscape(runName), nil)
	var statusErr pipelineStatusError
	if errors.As(err, &statusErr) && statusErr.statusCode == http.StatusNotFound {
		return models.PipelineRun{}, errors.Wrapf(models.NotFoundError, "run %s", runName)
	} else if err != nil {
		return models.PipelineRun{}, errors.Wrapf(err, "could not read run %s", runName)
	}

	run := gjson.GetBytes(body, "run")
	if !run.Exists() {
		return models.PipelineRun{}, errors.Newf("unexpected ingestion engine answer for run %s", runName)
	}
	return models.PipelineRun{
		Name:   run.Get("name").String(),
		Status: models.PipelineRunStatusFrom(run.Get("status").String()),
		Error:  run.Get("error").String(),
	}, nil
}

func (r pipelineRepository) InitializePrecomputedScores(ctx context.Context, request models.PipelineRunRequest) error {
	_, err := r.do(ctx, http.MethodPost, "/precomputed_scores", request)
	if err != nil {
		return errors.Wrapf(err, "could not initialize precomputed scores of %s", request.StudyFileId)
	}
	return nil
}

// do retries network errors and server errors, client errors are returned immediately
func (r pipelineRepository) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		if encoded, err = json.Marshal(payload); err != nil {
			return nil, errors.Wrap(err, "could not encode ingestion engine request")
		}
	}

	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, method, r.config.BaseUrl+path, bytes.NewReader(encoded))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			if r.config.Token != "" {
				req.Header.Set("Authorization", "Bearer "+r.config.Token)
			}

			resp, err := r.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				return pipelineStatusError{statusCode: resp.StatusCode, body: string(body)}
			}
			if resp.StatusCode >= http.StatusBadRequest {
				return retry.Unrecoverable(pipelineStatusError{statusCode: resp.StatusCode, body: string(body)})
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(pipelineRetryAttempts),
		retry.Delay(r.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			utils.LoggerFromContext(ctx).WarnContext(ctx, "retrying ingestion engine call",
				"path", path, "attempt", n+1, "error", err.Error())
		}),
	)
	return body, err
}
