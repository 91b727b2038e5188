package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/abduss/filemeta/internal/conflict"
	"github.com/abduss/filemeta/internal/errs"
	"github.com/abduss/filemeta/internal/metadata"
	"github.com/abduss/filemeta/internal/version"
)

// MetadataStore implements metadata.Store.
type MetadataStore struct {
	db *DB
}

// LockFile is a no-op: units of work are already serialized.
func (s *MetadataStore) LockFile(context.Context, string) error {
	return nil
}

func (s *MetadataStore) FindByFileID(_ context.Context, fileID string) (metadata.FileMetadata, bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	meta, ok := s.db.metadata[fileID]
	return meta, ok, nil
}

// Save upserts meta. Like the PostgreSQL store it refuses to move a record
// backwards or sideways.
func (s *MetadataStore) Save(_ context.Context, meta metadata.FileMetadata) (metadata.FileMetadata, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if existing, ok := s.db.metadata[meta.FileID]; ok && existing.CurrentVersionNumber >= meta.CurrentVersionNumber {
		return metadata.FileMetadata{}, errs.Conflictf("file %s already moved past version %d", meta.FileID, meta.CurrentVersionNumber)
	}
	s.db.metadata[meta.FileID] = meta
	return meta, nil
}

// VersionStore implements version.Store.
type VersionStore struct {
	db *DB
}

// Save inserts record, enforcing unique ids and unique (file, number) pairs.
func (s *VersionStore) Save(_ context.Context, record version.Record) (version.Record, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.versions[record.ID]; ok {
		return version.Record{}, errs.Validationf("version id %s already exists", record.ID)
	}
	for _, existing := range s.db.versions {
		if existing.FileID == record.FileID && existing.VersionNumber == record.VersionNumber {
			return version.Record{}, errs.Validationf("version %d already exists for file %s", record.VersionNumber, record.FileID)
		}
	}
	s.db.versions[record.ID] = record
	return record, nil
}

func (s *VersionStore) FindByID(_ context.Context, versionID string) (version.Record, bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	rec, ok := s.db.versions[versionID]
	return rec, ok, nil
}

func (s *VersionStore) FindByFileID(_ context.Context, fileID string) ([]version.Record, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []version.Record
	for _, rec := range s.db.versions {
		if rec.FileID == fileID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].VersionNumber < out[j].VersionNumber
	})
	return out, nil
}

// ConflictStore implements conflict.Store.
type ConflictStore struct {
	db *DB
}

func (s *ConflictStore) Save(_ context.Context, res conflict.Resolution) (conflict.Resolution, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if existing, ok := s.db.resolutions[res.ID]; ok && existing.State.Terminal() {
		return conflict.Resolution{}, errs.Conflictf("conflict resolution %s is already %s", res.ID, existing.State)
	}
	res.ConflictingVersionIDs = slices.Clone(res.ConflictingVersionIDs)
	s.db.resolutions[res.ID] = res
	return res, nil
}

func (s *ConflictStore) FindByID(_ context.Context, id string) (conflict.Resolution, bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	res, ok := s.db.resolutions[id]
	return res, ok, nil
}

func (s *ConflictStore) FindByFileID(_ context.Context, fileID string) ([]conflict.Resolution, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []conflict.Resolution
	for _, res := range s.db.resolutions {
		if res.FileID == fileID {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResolutionTimestamp.Equal(out[j].ResolutionTimestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].ResolutionTimestamp.Before(out[j].ResolutionTimestamp)
	})
	return out, nil
}
