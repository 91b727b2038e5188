package version

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abduss/filemeta/internal/errs"
	"github.com/abduss/filemeta/internal/testutil"
	"github.com/abduss/filemeta/internal/value"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCreateVersionStartsAtOne(t *testing.T) {
	store := newFakeStore()
	service := NewService(store, testutil.FixedClock(), testutil.NewStubIDGenerator("v"), nil)

	rec, err := service.CreateVersion(context.Background(), "file-1", "abc", "")
	if err != nil {
		t.Fatalf("CreateVersion returned error: %v", err)
	}
	if rec.VersionNumber != 1 {
		t.Fatalf("expected version 1, got %d", rec.VersionNumber)
	}
	if rec.ID != "v-1" {
		t.Fatalf("unexpected id %s", rec.ID)
	}
	if rec.AdditionalDetails != "" {
		t.Fatalf("expected no details for first version, got %q", rec.AdditionalDetails)
	}
}

func TestCreateVersionIncrementsAndRecordsPrevious(t *testing.T) {
	store := newFakeStore()
	clk := testutil.FixedClock()
	service := NewService(store, clk, testutil.NewStubIDGenerator("v"), nil)
	ctx := context.Background()

	if _, err := service.CreateVersion(ctx, "file-1", "abc", ""); err != nil {
		t.Fatalf("first CreateVersion returned error: %v", err)
	}
	clk.Advance(time.Minute)

	rec, err := service.CreateVersion(ctx, "file-1", "def", "edited by sync")
	if err != nil {
		t.Fatalf("second CreateVersion returned error: %v", err)
	}
	if rec.VersionNumber != 2 {
		t.Fatalf("expected version 2, got %d", rec.VersionNumber)
	}
	want := "edited by sync; previous version: 1, checksum: abc"
	if rec.AdditionalDetails != want {
		t.Fatalf("unexpected details %q", rec.AdditionalDetails)
	}
	if !rec.Timestamp.Equal(clk.Now()) {
		t.Fatalf("expected timestamp from clock, got %s", rec.Timestamp)
	}
}

func TestCreateVersionNotesUnchangedContent(t *testing.T) {
	store := newFakeStore()
	service := NewService(store, testutil.FixedClock(), testutil.NewStubIDGenerator("v"), nil)
	ctx := context.Background()

	if _, err := service.CreateVersion(ctx, "file-1", "abc", ""); err != nil {
		t.Fatalf("CreateVersion returned error: %v", err)
	}
	rec, err := service.CreateVersion(ctx, "file-1", "abc", "")
	if err != nil {
		t.Fatalf("CreateVersion returned error: %v", err)
	}
	if !strings.Contains(rec.AdditionalDetails, "content unchanged since version 1") {
		t.Fatalf("expected unchanged-content note, got %q", rec.AdditionalDetails)
	}
}

func TestCreateVersionRejectsInvalidInput(t *testing.T) {
	service := NewService(newFakeStore(), testutil.FixedClock(), testutil.NewStubIDGenerator("v"), nil)

	cases := []struct {
		name     string
		fileID   string
		checksum value.Checksum
	}{
		{name: "blank file", fileID: " ", checksum: "abc"},
		{name: "blank checksum", fileID: "file-1", checksum: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.CreateVersion(context.Background(), tc.fileID, tc.checksum, "")
			if !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateVersionStorageFailure(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("connection reset")
	service := NewService(store, testutil.FixedClock(), testutil.NewStubIDGenerator("v"), nil)

	_, err := service.CreateVersion(context.Background(), "file-1", "abc", "")
	if !errors.Is(err, errs.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestGetHistorySortsAscending(t *testing.T) {
	store := newFakeStore()
	base := testutil.FixedClock().Now()
	store.records = []Record{
		{ID: "v-3", FileID: "file-1", VersionNumber: 3, Timestamp: base, Checksum: "c"},
		{ID: "v-1", FileID: "file-1", VersionNumber: 1, Timestamp: base, Checksum: "a"},
		{ID: "v-2", FileID: "file-1", VersionNumber: 2, Timestamp: base, Checksum: "b"},
		{ID: "w-1", FileID: "file-2", VersionNumber: 1, Timestamp: base, Checksum: "z"},
	}
	service := NewService(store, testutil.FixedClock(), testutil.NewStubIDGenerator("v"), nil)

	history, err := service.GetHistory(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("GetHistory returned error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(history))
	}
	for i, rec := range history {
		if rec.VersionNumber != i+1 {
			t.Fatalf("position %d holds version %d", i, rec.VersionNumber)
		}
	}
}

func TestGetHistoryUnknownFileIsEmpty(t *testing.T) {
	service := NewService(newFakeStore(), testutil.FixedClock(), testutil.NewStubIDGenerator("v"), nil)

	history, err := service.GetHistory(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetHistory returned error: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d", len(history))
	}
}

func TestGetVersionNotFound(t *testing.T) {
	service := NewService(newFakeStore(), testutil.FixedClock(), testutil.NewStubIDGenerator("v"), nil)

	_, err := service.GetVersion(context.Background(), "nope")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetHistoryFlagsExistingFileWithoutVersions(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	service := NewService(newFakeStore(), testutil.FixedClock(), testutil.NewStubIDGenerator("v"), zap.New(core))
	service.TrackFiles(fakeLookup{"orphan": true})

	if _, err := service.GetHistory(context.Background(), "orphan"); err != nil {
		t.Fatalf("GetHistory returned error: %v", err)
	}
	if n := logs.FilterMessage("file has metadata but no version history").Len(); n != 1 {
		t.Fatalf("expected one missing-history warning, got %d", n)
	}

	if _, err := service.GetHistory(context.Background(), "unknown"); err != nil {
		t.Fatalf("GetHistory returned error: %v", err)
	}
	if n := logs.FilterMessage("file has metadata but no version history").Len(); n != 1 {
		t.Fatalf("expected no warning for an unknown file, got %d", n)
	}
}

func TestCreateVersionSurfacesDuplicateNumberFromStore(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errs.Validationf("version 1 already exists for file file-1")
	service := NewService(store, testutil.FixedClock(), testutil.NewStubIDGenerator("v"), nil)

	_, err := service.CreateVersion(context.Background(), "file-1", "abc", "")
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateVersionRejectsUnsetClock(t *testing.T) {
	service := NewService(newFakeStore(), testutil.NewStubClock(time.Time{}), testutil.NewStubIDGenerator("v"), nil)

	_, err := service.CreateVersion(context.Background(), "file-1", "abc", "")
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error for a zero timestamp, got %v", err)
	}
}

// --- helpers & fakes ---

type fakeLookup map[string]bool

func (f fakeLookup) Exists(_ context.Context, fileID string) (bool, error) {
	return f[fileID], nil
}

type fakeStore struct {
	records []Record
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (f *fakeStore) Save(_ context.Context, record Record) (Record, error) {
	if f.saveErr != nil {
		return Record{}, f.saveErr
	}
	f.records = append(f.records, record)
	return record, nil
}

func (f *fakeStore) FindByID(_ context.Context, versionID string) (Record, bool, error) {
	for _, rec := range f.records {
		if rec.ID == versionID {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

func (f *fakeStore) FindByFileID(_ context.Context, fileID string) ([]Record, error) {
	var out []Record
	for _, rec := range f.records {
		if rec.FileID == fileID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func TestGetVersionsByIDsKeepsOrderAndFailsOnMissing(t *testing.T) {
	store := newFakeStore()
	base := testutil.FixedClock().Now()
	store.records = []Record{
		{ID: "a", FileID: "file-1", VersionNumber: 1, Timestamp: base, Checksum: "x"},
		{ID: "b", FileID: "file-1", VersionNumber: 2, Timestamp: base, Checksum: "y"},
	}
	service := NewService(store, testutil.FixedClock(), testutil.NewStubIDGenerator("v"), nil)

	records, err := service.GetVersionsByIDs(context.Background(), []string{"b", "a"})
	if err != nil {
		t.Fatalf("GetVersionsByIDs returned error: %v", err)
	}
	if records[0].ID != "b" || records[1].ID != "a" {
		t.Fatalf("unexpected order: %s, %s", records[0].ID, records[1].ID)
	}

	if _, err := service.GetVersionsByIDs(context.Background(), []string{"a", "zzz"}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
