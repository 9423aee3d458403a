package models

import (
	"slices"
	"time"
)

type BundledFile struct {
	StudyFileId string
	FileType    StudyFileType
}

// StudyFileBundle groups one parent file with the sibling files it needs before it can be ingested
type StudyFileBundle struct {
	Id            string
	StudyId       string
	ParentId      string
	ParentType    StudyFileType
	RequiredTypes []StudyFileType
	Files         []BundledFile
	CreatedAt     time.Time
}

// Completed is true when every required child type has at least one attached file.
// A bundle without required types is trivially complete.
func (b StudyFileBundle) Completed() bool {
	for _, required := range b.RequiredTypes {
		if len(b.FilesOfType(required)) == 0 {
			return false
		}
	}
	return true
}

func (b StudyFileBundle) FilesOfType(fileType StudyFileType) []BundledFile {
	files := make([]BundledFile, 0, len(b.Files))
	for _, f := range b.Files {
		if f.FileType == fileType {
			files = append(files, f)
		}
	}
	return files
}

func (b StudyFileBundle) Contains(studyFileId string) bool {
	if b.ParentId == studyFileId {
		return true
	}
	return slices.ContainsFunc(b.Files, func(f BundledFile) bool { return f.StudyFileId == studyFileId })
}

// MemberIds returns the parent id followed by the attached files, in attachment order
func (b StudyFileBundle) MemberIds() []string {
	ids := make([]string, 0, len(b.Files)+1)
	ids = append(ids, b.ParentId)
	for _, f := range b.Files {
		ids = append(ids, f.StudyFileId)
	}
	return ids
}

// WithFiles returns a copy of the bundle with the files attached, skipping the ones already present
// and the ones whose type is not required by the bundle.
func (b StudyFileBundle) WithFiles(files ...BundledFile) StudyFileBundle {
	out := b
	out.Files = slices.Clone(b.Files)
	for _, f := range files {
		if out.Contains(f.StudyFileId) || !slices.Contains(b.RequiredTypes, f.FileType) {
			continue
		}
		out.Files = append(out.Files, f)
	}
	return out
}

type CreateStudyFileBundleInput struct {
	Id            string
	StudyId       string
	ParentId      string
	ParentType    StudyFileType
	RequiredTypes []StudyFileType
}

// BundleResolution is the answer of the bundle resolver for one file. A nil Bundle means that no bundle
// applies to the file, in which case it can proceed unconditionally.
type BundleResolution struct {
	Bundle *StudyFileBundle
}

func (r BundleResolution) Applicable() bool {
	return r.Bundle != nil
}

func (r BundleResolution) Completed() bool {
	return r.Bundle != nil && r.Bundle.Completed()
}
