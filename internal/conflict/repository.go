package conflict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abduss/filemeta/internal/errs"
	"github.com/abduss/filemeta/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

// Repository stores conflict resolutions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a conflict repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const resolutionColumns = `id, file_id, conflicting_version_ids, strategy, state, resolved,
       resolution_timestamp, resulting_version_id, detail`

// Save inserts the resolution, or updates state and outcome of an existing one.
func (r *Repository) Save(ctx context.Context, res Resolution) (Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var resulting *string
	if res.ResultingVersionID != "" {
		resulting = &res.ResultingVersionID
	}

	query := `
INSERT INTO conflict_resolutions (` + resolutionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    state = EXCLUDED.state,
    resolved = EXCLUDED.resolved,
    resolution_timestamp = EXCLUDED.resolution_timestamp,
    resulting_version_id = EXCLUDED.resulting_version_id,
    detail = EXCLUDED.detail
WHERE conflict_resolutions.state NOT IN ('RESOLVED', 'AWAITING_MANUAL')
RETURNING ` + resolutionColumns + `;`

	stored, err := scanResolution(storage.Conn(ctx, r.pool).QueryRow(ctx, query,
		res.ID,
		res.FileID,
		res.ConflictingVersionIDs,
		string(res.Strategy),
		string(res.State),
		res.Resolved,
		res.ResolutionTimestamp,
		resulting,
		res.Detail,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Resolution{}, errs.Conflictf("conflict resolution %s is already final", res.ID)
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("save conflict resolution: %w", err)
	}
	return stored, nil
}

// FindByID loads a resolution by id.
func (r *Repository) FindByID(ctx context.Context, id string) (Resolution, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + resolutionColumns + ` FROM conflict_resolutions WHERE id = $1;`

	res, err := scanResolution(storage.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resolution{}, false, nil
		}
		return Resolution{}, false, fmt.Errorf("get conflict resolution: %w", err)
	}
	return res, true, nil
}

// FindByFileID lists the resolutions of a file, oldest first.
func (r *Repository) FindByFileID(ctx context.Context, fileID string) ([]Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + resolutionColumns + `
FROM conflict_resolutions
WHERE file_id = $1
ORDER BY resolution_timestamp ASC, id ASC;`

	rows, err := storage.Conn(ctx, r.pool).Query(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("list conflict resolutions: %w", err)
	}
	defer rows.Close()

	var list []Resolution
	for rows.Next() {
		res, err := scanResolution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conflict resolution: %w", err)
		}
		list = append(list, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflict resolutions: %w", err)
	}
	return list, nil
}

func scanResolution(row pgx.Row) (Resolution, error) {
	var (
		res       Resolution
		strategy  string
		state     string
		resulting *string
	)
	if err := row.Scan(
		&res.ID,
		&res.FileID,
		&res.ConflictingVersionIDs,
		&strategy,
		&state,
		&res.Resolved,
		&res.ResolutionTimestamp,
		&resulting,
		&res.Detail,
	); err != nil {
		return Resolution{}, err
	}
	res.Strategy = Strategy(strategy)
	res.State = State(state)
	res.ResolutionTimestamp = res.ResolutionTimestamp.UTC()
	if resulting != nil {
		res.ResultingVersionID = *resulting
	}
	return res, nil
}
