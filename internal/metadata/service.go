package metadata

import (
	"context"
	"strconv"

	"github.com/abduss/filemeta/internal/clock"
	"github.com/abduss/filemeta/internal/errs"
	"github.com/abduss/filemeta/internal/notify"
	"github.com/abduss/filemeta/internal/storage"
	"github.com/abduss/filemeta/internal/value"
	"github.com/abduss/filemeta/internal/version"
	"go.uber.org/zap"
)

// Store persists the current metadata record of each file.
type Store interface {
	// LockFile serializes writers of fileID until the surrounding transaction ends.
	LockFile(ctx context.Context, fileID string) error
	FindByFileID(ctx context.Context, fileID string) (FileMetadata, bool, error)
	Save(ctx context.Context, meta FileMetadata) (FileMetadata, error)
}

// VersionAppender appends history records. Implemented by version.Service.
type VersionAppender interface {
	CreateVersion(ctx context.Context, fileID string, checksum value.Checksum, details string) (version.Record, error)
}

// Transactor runs fn as one atomic unit of work.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier receives write events. Delivery must not fail the write.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event)
}

// Service owns the lifecycle rules of FileMetadata.
type Service struct {
	store    Store
	versions VersionAppender
	tx       Transactor
	cache    Cache
	notifier Notifier
	clock    clock.Clock
	ids      clock.IDGenerator
	logger   *zap.Logger
}

// NewService wires the metadata service. cache and notifier may be nil.
func NewService(store Store, versions VersionAppender, tx Transactor, cache Cache, notifier Notifier, clk clock.Clock, ids clock.IDGenerator, logger *zap.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
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
		store:    store,
		versions: versions,
		tx:       tx,
		cache:    cache,
		notifier: notifier,
		clock:    clk,
		ids:      ids,
		logger:   logger,
	}
}

// CreateOrUpdate creates the record on first write for a file and updates it
// afterwards. The metadata save and the version append commit together.
func (s *Service) CreateOrUpdate(ctx context.Context, in Input) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	return s.write(ctx, in, false)
}

// AppendMergedVersion moves an existing file to a new version carrying
// checksum. It joins a transaction already open in ctx.
func (s *Service) AppendMergedVersion(ctx context.Context, fileID string, checksum value.Checksum, details string) (version.Record, error) {
	if err := checksum.Validate(); err != nil {
		return version.Record{}, err
	}

	var result Result
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, found, err := s.store.FindByFileID(ctx, fileID)
		if err != nil {
			return errs.Storage("load metadata", err)
		}
		if !found {
			return errs.NotFoundf("file %s not found", fileID)
		}

		result, err = s.write(ctx, Input{
			FileID:    existing.FileID,
			Path:      existing.Path,
			Checksum:  checksum,
			Ownership: existing.Ownership,
			Details:   details,
		}, true)
		return err
	})
	if err != nil {
		return version.Record{}, err
	}
	return result.Version, nil
}

func (s *Service) write(ctx context.Context, in Input, mustExist bool) (Result, error) {
	var result Result
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockFile(ctx, in.FileID); err != nil {
			return errs.Storage("lock file", err)
		}

		existing, found, err := s.store.FindByFileID(ctx, in.FileID)
		if err != nil {
			return errs.Storage("load metadata", err)
		}
		if mustExist && !found {
			return errs.NotFoundf("file %s not found", in.FileID)
		}

		now := s.clock.Now().UTC()
		next := FileMetadata{
			FileID:    in.FileID,
			Path:      in.Path,
			Checksum:  in.Checksum,
			Ownership: in.Ownership,
		}

		if !found {
			if in.VersionNumber != nil && *in.VersionNumber > 1 {
				return errs.Validationf("version number %d is invalid for a new file, expected 1", *in.VersionNumber)
			}
			next.CreationTimestamp = now
			next.LastModifiedTimestamp = now
			next.CurrentVersionNumber = 1
			result.Status = StatusCreated
		} else {
			next.CreationTimestamp = existing.CreationTimestamp
			next.LastModifiedTimestamp = now
			if existing.LastModifiedTimestamp.After(now) {
				next.LastModifiedTimestamp = existing.LastModifiedTimestamp
			}
			next.CurrentVersionNumber = existing.CurrentVersionNumber + 1
			if in.VersionNumber != nil && *in.VersionNumber != next.CurrentVersionNumber {
				s.logger.Warn("correcting caller supplied version number",
					zap.String("file_id", in.FileID),
					zap.Int("requested", *in.VersionNumber),
					zap.Int("assigned", next.CurrentVersionNumber),
				)
			}
			current := existing.CurrentVersion()
			if next.CurrentVersion().HasSameContent(&current) {
				result.ContentUnchanged = true
				s.logger.Info("metadata updated without content change",
					zap.String("file_id", in.FileID),
					zap.String("checksum", in.Checksum.String()),
				)
			}
			result.Status = StatusUpdated
		}

		saved, err := s.store.Save(ctx, next)
		if err != nil {
			return errs.Storage("save metadata", err)
		}

		rec, err := s.versions.CreateVersion(ctx, in.FileID, in.Checksum, in.Details)
		if err != nil {
			return err
		}
		if rec.VersionNumber != saved.CurrentVersionNumber {
			return errs.Conflictf("file %s: metadata is at version %d but history appended version %d",
				in.FileID, saved.CurrentVersionNumber, rec.VersionNumber)
		}

		result.Metadata = saved
		result.Version = rec

		written := result
		storage.AfterCommit(ctx, func() {
			s.afterWrite(context.WithoutCancel(ctx), written)
		})
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("metadata written",
		zap.String("file_id", result.Metadata.FileID),
		zap.String("status", string(result.Status)),
		zap.Int("version", result.Metadata.CurrentVersionNumber),
	)
	return result, nil
}

// afterWrite refreshes the cache and emits the write event. Both are best
// effort. Hooks of concurrent writers may run in any order, so the cache only
// accepts the record if it is not older than what it already holds.
func (s *Service) afterWrite(ctx context.Context, result Result) {
	fileID := result.Metadata.FileID
	if err := s.cache.Set(ctx, result.Metadata); err != nil {
		s.logger.Warn("cache population failed", zap.String("file_id", fileID), zap.Error(err))
		if err := s.cache.Invalidate(ctx, fileID); err != nil {
			s.logger.Warn("cache invalidation failed", zap.String("file_id", fileID), zap.Error(err))
		}
	}

	if s.notifier == nil {
		return
	}
	kind := notify.KindMetadataUpdated
	if result.Status == StatusCreated {
		kind = notify.KindMetadataCreated
	}
	s.notifier.Notify(ctx, notify.Event{
		ID:         s.ids.New(),
		Kind:       kind,
		FileID:     fileID,
		OccurredAt: s.clock.Now().UTC(),
		Attributes: map[string]string{
			"status":            string(result.Status),
			"version":           strconv.Itoa(result.Metadata.CurrentVersionNumber),
			"version_id":        result.Version.ID,
			"content_unchanged": strconv.FormatBool(result.ContentUnchanged),
		},
		Payload: result.Metadata,
	})
}

// Get returns the current metadata of fileID, consulting the cache first.
func (s *Service) Get(ctx context.Context, fileID string) (FileMetadata, error) {
	if fileID == "" {
		return FileMetadata{}, errs.Validationf("file id must not be blank")
	}

	if cached, ok, err := s.cache.Get(ctx, fileID); err != nil {
		s.logger.Warn("cache lookup failed", zap.String("file_id", fileID), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	meta, found, err := s.store.FindByFileID(ctx, fileID)
	if err != nil {
		return FileMetadata{}, errs.Storage("load metadata", err)
	}
	if !found {
		return FileMetadata{}, errs.NotFoundf("file %s not found", fileID)
	}

	if err := s.cache.Set(ctx, meta); err != nil {
		s.logger.Warn("cache population failed", zap.String("file_id", fileID), zap.Error(err))
	}
	return meta, nil
}

// Exists reports whether a record exists for fileID. It bypasses the cache.
func (s *Service) Exists(ctx context.Context, fileID string) (bool, error) {
	_, found, err := s.store.FindByFileID(ctx, fileID)
	if err != nil {
		return false, errs.Storage("load metadata", err)
	}
	return found, nil
}
