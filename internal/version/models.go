package version

import (
	"time"

	"github.com/abduss/filemeta/internal/value"
)

// Record is an immutable snapshot of one point in a file's history.
type Record struct {
	ID                string         `json:"version_id"`
	FileID            string         `json:"file_id"`
	VersionNumber     int            `json:"version_number"`
	Timestamp         time.Time      `json:"timestamp"`
	Checksum          value.Checksum `json:"checksum"`
	AdditionalDetails string         `json:"additional_details,omitempty"`
}

// Info returns the version triple of the record.
func (r Record) Info() value.VersionInfo {
	return value.VersionInfo{
		Number:    r.VersionNumber,
		Timestamp: r.Timestamp,
		Checksum:  r.Checksum,
	}
}
