// Package memory is an in-process implementation of the metadata, version
// and conflict stores. Units of work are serialized and rolled back from a
// snapshot on error. It is safe for concurrent use.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/abduss/filemeta/internal/conflict"
	"github.com/abduss/filemeta/internal/metadata"
	"github.com/abduss/filemeta/internal/storage"
	"github.com/abduss/filemeta/internal/version"
)

// DB holds all records in maps.
type DB struct {
	txMu sync.Mutex // held for the whole unit of work
	mu   sync.RWMutex

	metadata    map[string]metadata.FileMetadata
	versions    map[string]version.Record
	resolutions map[string]conflict.Resolution
}

// New creates an empty database.
func New() *DB {
	return &DB{
		metadata:    make(map[string]metadata.FileMetadata),
		versions:    make(map[string]version.Record),
		resolutions: make(map[string]conflict.Resolution),
	}
}

type snapshot struct {
	metadata    map[string]metadata.FileMetadata
	versions    map[string]version.Record
	resolutions map[string]conflict.Resolution
}

// WithinTx runs fn with writers serialized. Any change made by fn is undone
// when it returns an error. Nested calls join the outer unit of work.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := storage.ScopeFrom(ctx); ok {
		return fn(ctx)
	}

	scope := &storage.Scope{}
	if err := db.run(storage.WithScope(ctx, scope), fn); err != nil {
		return err
	}
	scope.RunHooks()
	return nil
}

// run holds txMu for the duration of fn. A panic in fn rolls back and
// releases the lock before propagating.
func (db *DB) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	committed := false
	defer func() {
		if !committed {
			db.restore(snap)
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (db *DB) snapshot() snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return snapshot{
		metadata:    maps.Clone(db.metadata),
		versions:    maps.Clone(db.versions),
		resolutions: maps.Clone(db.resolutions),
	}
}

func (db *DB) restore(s snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.metadata = s.metadata
	db.versions = s.versions
	db.resolutions = s.resolutions
}

// Metadata returns the metadata store view.
func (db *DB) Metadata() *MetadataStore {
	return &MetadataStore{db: db}
}

// Versions returns the version store view.
func (db *DB) Versions() *VersionStore {
	return &VersionStore{db: db}
}

// Conflicts returns the conflict store view.
func (db *DB) Conflicts() *ConflictStore {
	return &ConflictStore{db: db}
}

// Ping always succeeds.
func (db *DB) Ping(context.Context) error {
	return nil
}
