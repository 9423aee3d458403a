package infra

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	GOOGLE_METADATA_URL_PROJECT_ID = "http://metadata.google.internal/computeMetadata/v1/project/project-id"
	PROJECT_ID_KEY                 = "project_id"
)

// The project id does not change during the lifetime of the process
var PROJECT_ID_CACHE = expirable.NewLRU[string, string](1, nil, 0)

func GetProjectId() (string, error) {
	if projectId, exists := PROJECT_ID_CACHE.Get(PROJECT_ID_KEY); exists {
		return projectId, nil
	}

	var projectId string
	err := retry.Do(
		func() error {
			var err error
			projectId, err = getProjectIdFromMetadataServer()
			return err
		},
		retry.Attempts(3),
		retry.LastErrorOnly(true),
		retry.Delay(100*time.Millisecond),
	)
	if err != nil {
		return "", err
	}

	PROJECT_ID_CACHE.Add(PROJECT_ID_KEY, projectId)
	return projectId, nil
}

func getProjectIdFromMetadataServer() (string, error) {
	req, err := http.NewRequest(http.MethodGet, GOOGLE_METADATA_URL_PROJECT_ID, nil)
	if err != nil {
		return "", retry.Unrecoverable(err)
	}
	req.Header.Add("Metadata-Flavor", "Google")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		// expected outside of GCP, where the metadata server does not resolve
		fmt.Println("Could not connect to google cloud metadata server")
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("unexpected status code from google cloud metadata server: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
