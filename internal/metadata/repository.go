package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abduss/filemeta/internal/errs"
	"github.com/abduss/filemeta/internal/storage"
	"github.com/abduss/filemeta/internal/value"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

// Repository stores file metadata in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a metadata repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LockFile takes a transaction-scoped advisory lock keyed by fileID.
func (r *Repository) LockFile(ctx context.Context, fileID string) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	if _, err := storage.Conn(ctx, r.pool).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, fileID); err != nil {
		return fmt.Errorf("lock file: %w", err)
	}
	return nil
}

// FindByFileID loads the current record. found is false when none exists.
func (r *Repository) FindByFileID(ctx context.Context, fileID string) (FileMetadata, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT file_id, path, checksum, owner, owner_group, ownership_details,
       creation_timestamp, last_modified_timestamp, current_version_number
FROM file_metadata
WHERE file_id = $1;`

	meta, err := scanMetadata(storage.Conn(ctx, r.pool).QueryRow(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FileMetadata{}, false, nil
		}
		return FileMetadata{}, false, fmt.Errorf("get file metadata: %w", err)
	}
	return meta, true, nil
}

// Save upserts the record. An update that would not move the version forward
// is rejected as a conflict.
func (r *Repository) Save(ctx context.Context, meta FileMetadata) (FileMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	details, err := json.Marshal(meta.Ownership.Details)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("encode ownership details: %w", err)
	}
	if meta.Ownership.Details == nil {
		details = []byte("{}")
	}

	query := `
INSERT INTO file_metadata (file_id, path, checksum, owner, owner_group, ownership_details,
                           creation_timestamp, last_modified_timestamp, current_version_number)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (file_id) DO UPDATE SET
    path = EXCLUDED.path,
    checksum = EXCLUDED.checksum,
    owner = EXCLUDED.owner,
    owner_group = EXCLUDED.owner_group,
    ownership_details = EXCLUDED.ownership_details,
    last_modified_timestamp = EXCLUDED.last_modified_timestamp,
    current_version_number = EXCLUDED.current_version_number
WHERE file_metadata.current_version_number < EXCLUDED.current_version_number
RETURNING file_id, path, checksum, owner, owner_group, ownership_details,
          creation_timestamp, last_modified_timestamp, current_version_number;`

	stored, err := scanMetadata(storage.Conn(ctx, r.pool).QueryRow(ctx, query,
		meta.FileID,
		meta.Path,
		string(meta.Checksum),
		meta.Ownership.Owner,
		meta.Ownership.Group,
		details,
		meta.CreationTimestamp,
		meta.LastModifiedTimestamp,
		meta.CurrentVersionNumber,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FileMetadata{}, errs.Conflictf("file %s already moved past version %d", meta.FileID, meta.CurrentVersionNumber)
		}
		return FileMetadata{}, fmt.Errorf("save file metadata: %w", err)
	}
	return stored, nil
}

func scanMetadata(row pgx.Row) (FileMetadata, error) {
	var (
		meta     FileMetadata
		checksum string
		details  []byte
	)
	if err := row.Scan(
		&meta.FileID,
		&meta.Path,
		&checksum,
		&meta.Ownership.Owner,
		&meta.Ownership.Group,
		&details,
		&meta.CreationTimestamp,
		&meta.LastModifiedTimestamp,
		&meta.CurrentVersionNumber,
	); err != nil {
		return FileMetadata{}, err
	}
	meta.Checksum = value.Checksum(checksum)
	meta.CreationTimestamp = meta.CreationTimestamp.UTC()
	meta.LastModifiedTimestamp = meta.LastModifiedTimestamp.UTC()
	if len(details) > 0 {
		var parsed map[string]any
		if err := json.Unmarshal(details, &parsed); err != nil {
			return FileMetadata{}, fmt.Errorf("decode ownership details: %w", err)
		}
		if len(parsed) > 0 {
			meta.Ownership.Details = parsed
		}
	}
	return meta, nil
}
