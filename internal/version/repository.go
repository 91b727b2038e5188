package version

import (
	"context"
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

// Repository stores versions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a version repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save inserts a version record. A duplicate (file_id, version_number) pair is
// reported as a validation error.
func (r *Repository) Save(ctx context.Context, record Record) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO file_versions (version_id, file_id, version_number, recorded_at, checksum, additional_details)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING version_id, file_id, version_number, recorded_at, checksum, additional_details;`

	row := storage.Conn(ctx, r.pool).QueryRow(ctx, query,
		record.ID,
		record.FileID,
		record.VersionNumber,
		record.Timestamp,
		string(record.Checksum),
		record.AdditionalDetails,
	)

	stored, err := scanRecord(row)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return Record{}, errs.Validationf("version %d already exists for file %s", record.VersionNumber, record.FileID)
		}
		return Record{}, fmt.Errorf("create version: %w", err)
	}
	return stored, nil
}

// FindByID loads a version by id.
func (r *Repository) FindByID(ctx context.Context, versionID string) (Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT version_id, file_id, version_number, recorded_at, checksum, additional_details
FROM file_versions
WHERE version_id = $1;`

	rec, err := scanRecord(storage.Conn(ctx, r.pool).QueryRow(ctx, query, versionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("get version: %w", err)
	}
	return rec, true, nil
}

// FindByFileID lists the versions of a file ordered by number.
func (r *Repository) FindByFileID(ctx context.Context, fileID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT version_id, file_id, version_number, recorded_at, checksum, additional_details
FROM file_versions
WHERE file_id = $1
ORDER BY version_number ASC;`

	rows, err := storage.Conn(ctx, r.pool).Query(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec      Record
		checksum string
	)
	if err := row.Scan(&rec.ID, &rec.FileID, &rec.VersionNumber, &rec.Timestamp, &checksum, &rec.AdditionalDetails); err != nil {
		return Record{}, err
	}
	rec.Checksum = value.Checksum(checksum)
	rec.Timestamp = rec.Timestamp.UTC()
	return rec, nil
}
