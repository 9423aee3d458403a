package models

import (
	"github.com/cockroachdb/errors"
)

// Base errors
var (
	BadParameterError = errors.New("bad parameter")

	NotFoundError = errors.New("not found")

	// ConflictError is returned when a concurrent update won the race on a record
	ConflictError = errors.New("duplicate value")
)

// DB related errors
var (
	ErrIgnoreRollBackError = errors.New("ignore rollback error")
)

// Study file pipeline errors
var (
	ErrUnknownFileType = errors.Wrap(BadParameterError, "unknown study file type")
	ErrUnknownAction   = errors.Wrap(BadParameterError, "unknown ingest action")

	// The parse lease of one or more files of a bundle is held by another dispatch
	ErrParseLeaseHeld = errors.Wrap(ConflictError, "parse lease is already held")

	ErrRemoteObjectNotFound = errors.Wrap(NotFoundError, "remote object not found")
)
