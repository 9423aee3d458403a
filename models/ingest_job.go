package models

import (
	"github.com/cockroachdb/errors"
)

type IngestAction string

const (
	IngestActionCluster                     IngestAction = "ingest_cluster"
	IngestActionExpression                  IngestAction = "ingest_expression"
	IngestActionCellMetadata                IngestAction = "ingest_cell_metadata"
	IngestActionCoordinateLabels            IngestAction = "ingest_coordinate_labels"
	IngestActionInitializePrecomputedScores IngestAction = "initialize_precomputed_scores"
	IngestActionExtractAnalysisOutput       IngestAction = "extract_analysis_output"
)

var ingestActions = []IngestAction{
	IngestActionCluster,
	IngestActionExpression,
	IngestActionCellMetadata,
	IngestActionCoordinateLabels,
	IngestActionInitializePrecomputedScores,
	IngestActionExtractAnalysisOutput,
}

func (a IngestAction) Valid() bool {
	for _, action := range ingestActions {
		if action == a {
			return true
		}
	}
	return false
}

func (a *IngestAction) UnmarshalText(text []byte) error {
	action := IngestAction(text)
	if !action.Valid() {
		return errors.Wrapf(ErrUnknownAction, "'%s'", string(text))
	}
	*a = action
	return nil
}

// IngestJob describes one asynchronous ingestion request. StudyFileId is the file actually sent to the
// ingestion engine, which is not always the file that triggered the dispatch.
type IngestJob struct {
	Action        IngestAction
	StudyId       string
	StudyFileId   string
	UserId        string
	Reparse       bool
	PersistOnFail bool
	SkipPush      bool
	LeaseHolderId string
}

type ParseOutcome string

const (
	ParseOutcomeSubmitted       ParseOutcome = "submitted"
	ParseOutcomeWaitingOnBundle ParseOutcome = "waiting_on_bundle"
	ParseOutcomeNotParseable    ParseOutcome = "not_parseable"
	ParseOutcomeAlreadyParsing  ParseOutcome = "already_parsing"
)

type ParseResult struct {
	Outcome ParseOutcome
	Message string
	// Ids of the files whose parse lease was taken, empty unless the outcome is submitted
	LeasedFileIds []string
}

type ParseOptions struct {
	Reparse       bool
	PersistOnFail bool
}
