package models

import (
	"time"
)

type UploadStatus string

const (
	UploadStatusNew       UploadStatus = "new"
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusUploaded  UploadStatus = "uploaded"
)

func UploadStatusFrom(s string) UploadStatus {
	switch s {
	case "uploading":
		return UploadStatusUploading
	case "uploaded":
		return UploadStatusUploaded
	}
	return UploadStatusNew
}

// ParseState is the lifecycle of the ingestion of a file. It says nothing about who owns the file,
// see ParseLease for the mutual exclusion.
type ParseState string

const (
	ParseStateUnparsed ParseState = "unparsed"
	ParseStateParsing  ParseState = "parsing"
	ParseStateParsed   ParseState = "parsed"
)

func ParseStateFrom(s string) ParseState {
	switch s {
	case "parsing":
		return ParseStateParsing
	case "parsed":
		return ParseStateParsed
	}
	return ParseStateUnparsed
}

type ParseLease struct {
	HolderId  string
	ExpiresAt *time.Time
}

// Held reports whether the lease still excludes other dispatches at the given time.
// A lease without an expiry never lapses.
func (l ParseLease) Held(now time.Time) bool {
	if l.HolderId == "" {
		return false
	}
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

// Option keys read from StudyFile.Options
const (
	OptionAnalysisName      = "analysis_name"
	OptionVisualizationName = "visualization_name"
)

type StudyFile struct {
	Id                 string
	StudyId            string
	Name               string
	FileType           StudyFileType
	UploadFileName     string
	UploadFileSize     int64
	UploadStatus       UploadStatus
	ParseState         ParseState
	ParseLease         ParseLease
	BucketLocation     string
	Generation         *string
	Options            map[string]string
	IsLocal            bool
	QueuedForDeletion  bool
	ExternalUrl        *string
	UploadCleanupJobId *int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsParsing is true while a live lease excludes any other ingestion of the file
func (f StudyFile) IsParsing(now time.Time) bool {
	return f.ParseState == ParseStateParsing && f.ParseLease.Held(now)
}

func (f StudyFile) Option(key string) string {
	if f.Options == nil {
		return ""
	}
	return f.Options[key]
}

// LocalPath is the key of the local copy inside the local storage bucket
func (f StudyFile) LocalPath() string {
	return f.StudyId + "/" + f.UploadFileName
}

// RemotePath is the key of the file inside the study bucket
func (f StudyFile) RemotePath() string {
	if f.BucketLocation != "" {
		return f.BucketLocation
	}
	return f.UploadFileName
}

// HasGeneration compares generation tags as opaque strings
func (f StudyFile) HasGeneration(generation string) bool {
	return f.Generation != nil && *f.Generation == generation
}

type AcquireParseLeaseInput struct {
	StudyFileIds []string
	HolderId     string
	ExpiresAt    time.Time
}

type UpdateStudyFileInput struct {
	Id                 string
	UploadStatus       *UploadStatus
	Generation         *string
	IsLocal            *bool
	QueuedForDeletion  *bool
	UploadCleanupJobId *int64
}

type FinishParseInput struct {
	StudyFileId string
	HolderId    string
	Success     bool
}

type FailedUploadsFilter struct {
	CreatedBefore time.Time
}
