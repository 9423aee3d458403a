package models

import (
	"slices"
	"time"
)

// BundleRule says which sibling file types a parent type needs. OptionsKey is the key of the study file
// options under which a child references the id of its parent.
type BundleRule struct {
	ParentType StudyFileType   `yaml:"parent" validate:"required"`
	OptionsKey string          `yaml:"options_key" validate:"required"`
	ChildTypes []StudyFileType `yaml:"children" validate:"required,min=1,dive,required"`
}

type BundleRequirements []BundleRule

func (r BundleRequirements) RuleForParent(fileType StudyFileType) (BundleRule, bool) {
	for _, rule := range r {
		if rule.ParentType == fileType {
			return rule, true
		}
	}
	return BundleRule{}, false
}

func (r BundleRequirements) RulesForChild(fileType StudyFileType) []BundleRule {
	var rules []BundleRule
	for _, rule := range r {
		if slices.Contains(rule.ChildTypes, fileType) {
			rules = append(rules, rule)
		}
	}
	return rules
}

// DispatchTable maps each parseable file type to the ingest action it triggers. Types absent from the table are
// not parseable.
type DispatchTable map[StudyFileType]IngestAction

func (t DispatchTable) Parseable(fileType StudyFileType) bool {
	_, ok := t[fileType]
	return ok
}

type PipelineConfiguration struct {
	Bundles  BundleRequirements `yaml:"bundles" validate:"dive"`
	Dispatch DispatchTable      `yaml:"dispatch" validate:"required,min=1"`

	// Delay before the coordinate labels of a cluster are dispatched, so the cluster ingestion can initialize first
	CoordinateLabelsDelay time.Duration `yaml:"coordinate_labels_delay" validate:"gte=0s"`

	ParseLeaseDuration  time.Duration `yaml:"parse_lease_duration" validate:"gt=0s"`
	SignedUrlTtl        time.Duration `yaml:"signed_url_ttl" validate:"gt=0s"`
	InitialCleanupDelay time.Duration `yaml:"initial_cleanup_delay" validate:"gte=0s"`

	// Age after which a file still uploading without generation is considered a failed upload
	FailedUploadThreshold     time.Duration `yaml:"failed_upload_threshold" validate:"gt=0s"`
	FailedUploadSweepInterval time.Duration `yaml:"failed_upload_sweep_interval" validate:"gt=0s"`
}

// Analysis output pairing for which embedded visualization files are extracted
const (
	AnalysisNameInferCnv      = "infercnv"
	VisualizationNameIdeogram = "ideogram.js"
)
