package models

import (
	"github.com/cockroachdb/errors"
)

// StudyFileType is the closed set of file types a study file can be declared as.
// Every switch over it must list all the values: the default branch is reserved for assertion failures.
type StudyFileType int

const (
	FileTypeUnknown StudyFileType = iota
	FileTypeCluster
	FileTypeExpressionMatrix
	FileTypeMMCoordinateMatrix
	FileType10XGenes
	FileType10XBarcodes
	FileTypeMetadata
	FileTypeCoordinateLabels
	FileTypeGeneList
	FileTypeAnalysisOutput
	FileTypeBAM
	FileTypeBAMIndex
	FileTypeFastq
	FileTypeDocumentation
	FileTypeOther
)

var studyFileTypeNames = map[StudyFileType]string{
	FileTypeUnknown:            "Unknown",
	FileTypeCluster:            "Cluster",
	FileTypeExpressionMatrix:   "Expression Matrix",
	FileTypeMMCoordinateMatrix: "MM Coordinate Matrix",
	FileType10XGenes:           "10X Genes File",
	FileType10XBarcodes:        "10X Barcodes File",
	FileTypeMetadata:           "Metadata",
	FileTypeCoordinateLabels:   "Coordinate Labels",
	FileTypeGeneList:           "Gene List",
	FileTypeAnalysisOutput:     "Analysis Output",
	FileTypeBAM:                "BAM",
	FileTypeBAMIndex:           "BAM Index",
	FileTypeFastq:              "Fastq",
	FileTypeDocumentation:      "Documentation",
	FileTypeOther:              "Other",
}

func AllStudyFileTypes() []StudyFileType {
	types := make([]StudyFileType, 0, len(studyFileTypeNames)-1)
	for t := FileTypeCluster; t <= FileTypeOther; t++ {
		types = append(types, t)
	}
	return types
}

func (t StudyFileType) String() string {
	if name, ok := studyFileTypeNames[t]; ok {
		return name
	}
	return studyFileTypeNames[FileTypeUnknown]
}

// StudyFileTypeFrom returns FileTypeUnknown for any name outside of the closed set
func StudyFileTypeFrom(s string) StudyFileType {
	for t, name := range studyFileTypeNames {
		if name == s {
			return t
		}
	}
	return FileTypeUnknown
}

func (t StudyFileType) MarshalText() ([]byte, error) {
	if t == FileTypeUnknown {
		return nil, errors.Wrapf(ErrUnknownFileType, "cannot marshal file type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *StudyFileType) UnmarshalText(text []byte) error {
	parsed := StudyFileTypeFrom(string(text))
	if parsed == FileTypeUnknown {
		return errors.Wrapf(ErrUnknownFileType, "'%s'", string(text))
	}
	*t = parsed
	return nil
}
