package metadata

import (
	"strings"
	"time"

	"github.com/abduss/filemeta/internal/errs"
	"github.com/abduss/filemeta/internal/value"
	"github.com/abduss/filemeta/internal/version"
)

// FileMetadata is the current state of one tracked file.
type FileMetadata struct {
	FileID                string          `json:"file_id"`
	Path                  string          `json:"path"`
	Checksum              value.Checksum  `json:"checksum"`
	Ownership             value.Ownership `json:"ownership"`
	CreationTimestamp     time.Time       `json:"creation_timestamp"`
	LastModifiedTimestamp time.Time       `json:"last_modified_timestamp"`
	CurrentVersionNumber  int             `json:"current_version_number"`
}

// CurrentVersion describes the version the record currently points at.
func (m FileMetadata) CurrentVersion() value.VersionInfo {
	return value.VersionInfo{
		Number:    m.CurrentVersionNumber,
		Timestamp: m.LastModifiedTimestamp,
		Checksum:  m.Checksum,
	}
}

// Input is a create-or-update request. VersionNumber and the timestamps are
// optional hints; the service derives the stored values itself.
type Input struct {
	FileID                string          `json:"file_id"`
	Path                  string          `json:"path"`
	Checksum              value.Checksum  `json:"checksum"`
	Ownership             value.Ownership `json:"ownership"`
	VersionNumber         *int            `json:"version_number,omitempty"`
	CreationTimestamp     *time.Time      `json:"creation_timestamp,omitempty"`
	LastModifiedTimestamp *time.Time      `json:"last_modified_timestamp,omitempty"`
	Details               string          `json:"details,omitempty"`
}

// Validate checks the request shape before any repository access.
func (in Input) Validate() error {
	if strings.TrimSpace(in.FileID) == "" {
		return errs.Validationf("file id must not be blank")
	}
	if err := value.ValidatePath(in.Path); err != nil {
		return err
	}
	if err := in.Checksum.Validate(); err != nil {
		return err
	}
	if err := in.Ownership.Validate(); err != nil {
		return err
	}
	if in.VersionNumber != nil && *in.VersionNumber < 1 {
		return errs.Validationf("version number must be at least 1, got %d", *in.VersionNumber)
	}
	if in.CreationTimestamp != nil && in.LastModifiedTimestamp != nil &&
		in.LastModifiedTimestamp.Before(*in.CreationTimestamp) {
		return errs.Validationf("last modified timestamp must not precede creation timestamp")
	}
	return nil
}

// Status tells whether a write created or updated the record.
type Status string

const (
	StatusCreated Status = "CREATED"
	StatusUpdated Status = "UPDATED"
)

// Result is the outcome of CreateOrUpdate.
type Result struct {
	Metadata         FileMetadata   `json:"metadata"`
	Version          version.Record `json:"version"`
	Status           Status         `json:"status"`
	ContentUnchanged bool           `json:"content_unchanged"`
}
