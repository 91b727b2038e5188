package version

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/abduss/filemeta/internal/clock"
	"github.com/abduss/filemeta/internal/errs"
	"github.com/abduss/filemeta/internal/value"
	"go.uber.org/zap"
)

// Store persists the append-only version history.
type Store interface {
	Save(ctx context.Context, record Record) (Record, error)
	FindByID(ctx context.Context, versionID string) (Record, bool, error)
	FindByFileID(ctx context.Context, fileID string) ([]Record, error)
}

// FileLookup reports whether a file has a current metadata record.
type FileLookup interface {
	Exists(ctx context.Context, fileID string) (bool, error)
}

// Service manages version history. Records are appended, never modified.
type Service struct {
	store  Store
	files  FileLookup
	clock  clock.Clock
	ids    clock.IDGenerator
	logger *zap.Logger
}

// NewService constructs a version service.
func NewService(store Store, clk clock.Clock, ids clock.IDGenerator, logger *zap.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if ids == nil {
		ids = clock.UUIDGenerator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		clock:  clk,
		ids:    ids,
		logger: logger,
	}
}

// TrackFiles lets GetHistory flag files that exist without any version.
func (s *Service) TrackFiles(files FileLookup) {
	s.files = files
}

// CreateVersion appends the next version for fileID. Numbering continues from
// the highest existing version. A concurrent append of the same number is
// rejected by the store's (file, number) uniqueness.
func (s *Service) CreateVersion(ctx context.Context, fileID string, checksum value.Checksum, details string) (Record, error) {
	if strings.TrimSpace(fileID) == "" {
		return Record{}, errs.Validationf("file id must not be blank")
	}
	if err := checksum.Validate(); err != nil {
		return Record{}, err
	}

	existing, err := s.store.FindByFileID(ctx, fileID)
	if err != nil {
		return Record{}, errs.Storage("load version history", err)
	}

	var previous *Record
	for i := range existing {
		if previous == nil || existing[i].VersionNumber > previous.VersionNumber {
			previous = &existing[i]
		}
	}

	next := 1
	if previous != nil {
		next = previous.VersionNumber + 1
	}

	record := Record{
		ID:            s.ids.New(),
		FileID:        fileID,
		VersionNumber: next,
		Timestamp:     s.clock.Now().UTC(),
		Checksum:      checksum,
	}
	info := record.Info()
	if err := info.Validate(); err != nil {
		return Record{}, err
	}

	notes := make([]string, 0, 3)
	if d := strings.TrimSpace(details); d != "" {
		notes = append(notes, d)
	}
	if previous != nil {
		prev := previous.Info()
		notes = append(notes, fmt.Sprintf("previous version: %d, checksum: %s", prev.Number, prev.Checksum))
		if info.HasSameContent(&prev) {
			notes = append(notes, fmt.Sprintf("content unchanged since version %d", previous.VersionNumber))
			s.logger.Warn("new version has same checksum as previous version",
				zap.String("file_id", fileID),
				zap.Int("previous_version", previous.VersionNumber),
			)
		}
	}

	record.AdditionalDetails = strings.Join(notes, "; ")

	saved, err := s.store.Save(ctx, record)
	if err != nil {
		return Record{}, errs.Storage("save version", err)
	}

	s.logger.Info("version created",
		zap.String("file_id", saved.FileID),
		zap.String("version_id", saved.ID),
		zap.Int("version_number", saved.VersionNumber),
	)
	return saved, nil
}

// GetHistory returns every version of fileID in ascending version order.
// An unknown file has an empty history.
func (s *Service) GetHistory(ctx context.Context, fileID string) ([]Record, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, errs.Validationf("file id must not be blank")
	}

	records, err := s.store.FindByFileID(ctx, fileID)
	if err != nil {
		return nil, errs.Storage("load version history", err)
	}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].VersionNumber < sorted[j].VersionNumber
	})

	if len(sorted) == 0 {
		s.checkMissingHistory(ctx, fileID)
	}
	for i, rec := range sorted {
		if rec.VersionNumber != i+1 {
			s.logger.Warn("version history is not contiguous",
				zap.String("file_id", fileID),
				zap.Int("expected_version", i+1),
				zap.Int("found_version", rec.VersionNumber),
			)
			break
		}
	}

	return sorted, nil
}

func (s *Service) checkMissingHistory(ctx context.Context, fileID string) {
	if s.files == nil {
		return
	}
	exists, err := s.files.Exists(ctx, fileID)
	if err != nil {
		s.logger.Warn("could not check file for missing history", zap.String("file_id", fileID), zap.Error(err))
		return
	}
	if exists {
		s.logger.Warn("file has metadata but no version history", zap.String("file_id", fileID))
	}
}

// GetVersion returns a single version by id.
func (s *Service) GetVersion(ctx context.Context, versionID string) (Record, error) {
	if strings.TrimSpace(versionID) == "" {
		return Record{}, errs.Validationf("version id must not be blank")
	}

	rec, found, err := s.store.FindByID(ctx, versionID)
	if err != nil {
		return Record{}, errs.Storage("load version", err)
	}
	if !found {
		return Record{}, errs.NotFoundf("version %s not found", versionID)
	}
	return rec, nil
}

// LatestNumber returns the highest version number recorded for fileID, or 0.
func (s *Service) LatestNumber(ctx context.Context, fileID string) (int, error) {
	records, err := s.store.FindByFileID(ctx, fileID)
	if err != nil {
		return 0, errs.Storage("load version history", err)
	}
	latest := 0
	for _, rec := range records {
		if rec.VersionNumber > latest {
			latest = rec.VersionNumber
		}
	}
	return latest, nil
}

// GetVersionsByIDs loads each id in order. Any missing id fails the whole call.
func (s *Service) GetVersionsByIDs(ctx context.Context, versionIDs []string) ([]Record, error) {
	records := make([]Record, 0, len(versionIDs))
	for _, id := range versionIDs {
		rec, err := s.GetVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
