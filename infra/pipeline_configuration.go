package infra

import (
	"bytes"
	_ "embed"
	"os"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/singlecellportal/ingest-orchestrator/models"
)

//go:embed pipeline_configuration.yaml
var defaultPipelineConfiguration []byte

// LoadPipelineConfiguration reads the bundle and dispatch tables from the given file, or from the embedded
// default when path is empty.
func LoadPipelineConfiguration(path string) (models.PipelineConfiguration, error) {
	raw := defaultPipelineConfiguration
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return models.PipelineConfiguration{}, errors.Wrapf(err, "could not read pipeline configuration %s", path)
		}
	}
	return ParsePipelineConfiguration(raw)
}

func ParsePipelineConfiguration(raw []byte) (models.PipelineConfiguration, error) {
	var cfg models.PipelineConfiguration

	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return models.PipelineConfiguration{}, errors.Wrap(err, "could not decode pipeline configuration")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return models.PipelineConfiguration{}, errors.Wrap(err, "invalid pipeline configuration")
	}

	for _, rule := range cfg.Bundles {
		if slices.Contains(rule.ChildTypes, rule.ParentType) {
			return models.PipelineConfiguration{}, errors.Newf("bundle %s cannot require its own type", rule.ParentType)
		}
	}

	return cfg, nil
}
