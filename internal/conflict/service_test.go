package conflict

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abduss/filemeta/internal/errs"
	"github.com/abduss/filemeta/internal/notify"
	"github.com/abduss/filemeta/internal/storage"
	"github.com/abduss/filemeta/internal/testutil"
	"github.com/abduss/filemeta/internal/value"
	"github.com/abduss/filemeta/internal/version"
)

var base = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func TestResolveLastModifiedPicksNewest(t *testing.T) {
	env := newTestEnv(
		rec("v1", "f1", 1, base, "c1"),
		rec("v2", "f1", 2, base.Add(time.Minute), "c2"),
	)

	res, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v1", "v2"}, LastModified)
	if err != nil {
		t.Fatalf("ResolveConflict returned error: %v", err)
	}
	if !res.Resolved || res.State != StateResolved {
		t.Fatalf("expected resolved, got %+v", res)
	}
	if res.ResultingVersionID != "v2" {
		t.Fatalf("expected winner v2, got %s", res.ResultingVersionID)
	}
	if res.ResolutionTimestamp.IsZero() {
		t.Fatalf("expected resolution timestamp set")
	}
	if len(env.store.saved) != 1 {
		t.Fatalf("expected resolution persisted")
	}
	if len(env.notifier.events) != 1 || env.notifier.events[0].Kind != notify.KindConflictResolved {
		t.Fatalf("expected conflict.resolved event, got %+v", env.notifier.events)
	}
}

func TestResolvePickStrategies(t *testing.T) {
	records := []version.Record{
		rec("v-b", "f1", 3, base.Add(2*time.Minute), "c3"),
		rec("v-a", "f1", 1, base.Add(5*time.Minute), "c1"),
		rec("v-c", "f1", 2, base, "c2"),
	}
	ids := []string{"v-b", "v-a", "v-c"}

	cases := []struct {
		strategy Strategy
		want     string
	}{
		{strategy: LastModified, want: "v-a"},
		{strategy: FirstModified, want: "v-c"},
		{strategy: ForceLatestVersion, want: "v-b"},
	}
	for _, tc := range cases {
		t.Run(string(tc.strategy), func(t *testing.T) {
			env := newTestEnv(records...)
			res, err := env.service.ResolveConflict(context.Background(), "f1", ids, tc.strategy)
			if err != nil {
				t.Fatalf("ResolveConflict returned error: %v", err)
			}
			if res.ResultingVersionID != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, res.ResultingVersionID)
			}
		})
	}
}

func TestResolveTieBreakPrefersSmallestID(t *testing.T) {
	env := newTestEnv(
		rec("v-z", "f1", 1, base, "c1"),
		rec("v-m", "f1", 2, base, "c2"),
		rec("v-a", "f1", 3, base, "c3"),
	)
	ids := []string{"v-z", "v-m", "v-a"}

	for _, strategy := range []Strategy{LastModified, FirstModified} {
		for i := 0; i < 3; i++ {
			res, err := env.service.ResolveConflict(context.Background(), "f1", ids, strategy)
			if err != nil {
				t.Fatalf("ResolveConflict returned error: %v", err)
			}
			if res.ResultingVersionID != "v-a" {
				t.Fatalf("%s run %d: expected v-a, got %s", strategy, i, res.ResultingVersionID)
			}
		}
	}
}

func TestResolveIsDeterministicAcrossInputOrder(t *testing.T) {
	env := newTestEnv(
		rec("v1", "f1", 1, base, "c1"),
		rec("v2", "f1", 2, base.Add(time.Second), "c2"),
		rec("v3", "f1", 3, base.Add(time.Second), "c3"),
	)

	first, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v1", "v2", "v3"}, LastModified)
	if err != nil {
		t.Fatalf("ResolveConflict returned error: %v", err)
	}
	second, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v3", "v1", "v2"}, LastModified)
	if err != nil {
		t.Fatalf("ResolveConflict returned error: %v", err)
	}
	if first.ResultingVersionID != second.ResultingVersionID {
		t.Fatalf("winner depends on input order: %s vs %s", first.ResultingVersionID, second.ResultingVersionID)
	}
}

func TestResolveRequiresTwoDistinctIDs(t *testing.T) {
	env := newTestEnv(rec("v1", "f1", 1, base, "c1"))

	inputs := [][]string{nil, {"v1"}, {"v1", "v1"}, {"v1", " "}}
	for _, strategy := range Strategies() {
		for _, ids := range inputs {
			_, err := env.service.ResolveConflict(context.Background(), "f1", ids, strategy)
			if !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("%s with %v: expected validation error, got %v", strategy, ids, err)
			}
		}
	}
	if len(env.store.saved) != 0 {
		t.Fatalf("expected nothing persisted")
	}
}

func TestResolveKeepBothWithSingleVersionFails(t *testing.T) {
	env := newTestEnv(rec("v1", "f1", 1, base, "c1"))

	_, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v1"}, KeepBoth)
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveKeepBoth(t *testing.T) {
	env := newTestEnv(
		rec("v1", "f1", 1, base, "c1"),
		rec("v2", "f1", 2, base, "c2"),
		rec("v3", "f1", 3, base, "c3"),
	)

	res, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v1", "v2", "v3"}, KeepBoth)
	if err != nil {
		t.Fatalf("ResolveConflict returned error: %v", err)
	}
	if !res.Resolved || res.ResultingVersionID != "" {
		t.Fatalf("expected resolved without a single winner, got %+v", res)
	}
	if len(res.ConflictingVersionIDs) != 3 {
		t.Fatalf("expected all versions retained, got %v", res.ConflictingVersionIDs)
	}
}

func TestResolveManualMergeAwaitsDecision(t *testing.T) {
	env := newTestEnv(
		rec("v1", "f1", 1, base, "c1"),
		rec("v2", "f1", 2, base, "c2"),
		rec("v3", "f1", 3, base, "c3"),
	)

	res, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v1", "v2"}, ManualMerge)
	if err != nil {
		t.Fatalf("ResolveConflict returned error: %v", err)
	}
	if res.Resolved || res.State != StateAwaitingManual {
		t.Fatalf("expected unresolved awaiting manual, got %+v", res)
	}
	if env.notifier.events[0].Kind != notify.KindConflictAwaitingManual {
		t.Fatalf("expected conflict.awaiting_manual event, got %s", env.notifier.events[0].Kind)
	}

	_, err = env.service.ResolveConflict(context.Background(), "f1", []string{"v1", "v2", "v3"}, ManualMerge)
	if !errors.Is(err, errs.ErrValidation) || !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected validation error for three versions, got %v", err)
	}
}

func TestResolveMergeSynthesizesNextVersion(t *testing.T) {
	env := newTestEnv(
		rec("v1", "f1", 1, base.Add(time.Hour), "c1"),
		rec("v2", "f1", 2, base, "c2"),
	)

	res, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v1", "v2"}, Merge)
	if err != nil {
		t.Fatalf("ResolveConflict returned error: %v", err)
	}
	if len(env.merger.calls) != 1 {
		t.Fatalf("expected one merged version, got %d", len(env.merger.calls))
	}
	merged := env.merger.calls[0]
	if merged.VersionNumber != 3 {
		t.Fatalf("expected merged version 3, got %d", merged.VersionNumber)
	}
	if merged.Checksum != "c1" {
		t.Fatalf("expected checksum of most recent input c1, got %s", merged.Checksum)
	}
	if res.ResultingVersionID != merged.ID || !res.Resolved {
		t.Fatalf("expected resulting version %s, got %+v", merged.ID, res)
	}
}

func TestResolveMergeRequiresLatestVersion(t *testing.T) {
	env := newTestEnv(
		rec("v1", "f1", 1, base, "c1"),
		rec("v2", "f1", 2, base, "c2"),
		rec("v3", "f1", 3, base, "c3"),
	)

	_, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v1", "v2"}, Merge)
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(env.merger.calls) != 0 {
		t.Fatalf("expected no version synthesized")
	}
	if !strings.Contains(errs.PublicMessage(err), "version numbers must stay unique") {
		t.Fatalf("expected message to explain the numbering guard, got %q", errs.PublicMessage(err))
	}
}

func TestResolutionNeverLeavesTerminalState(t *testing.T) {
	for _, state := range []State{StateResolved, StateAwaitingManual} {
		res := Resolution{ID: "r1", State: state}
		err := res.advance(StateValidated)
		if !errors.Is(err, errs.ErrConflict) {
			t.Fatalf("expected conflict leaving %s, got %v", state, err)
		}
		if res.State != state {
			t.Fatalf("expected state to stay %s, got %s", state, res.State)
		}
	}

	res := Resolution{ID: "r2", State: StateCreated}
	if err := res.advance(StateValidated); err != nil {
		t.Fatalf("advance from CREATED returned error: %v", err)
	}
	if err := res.advance(StateResolved); err != nil {
		t.Fatalf("advance from VALIDATED returned error: %v", err)
	}
}

func TestResolveMissingVersionIsNotFound(t *testing.T) {
	env := newTestEnv(rec("v1", "f1", 1, base, "c1"))

	_, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v1", "ghost"}, LastModified)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveRejectsForeignVersion(t *testing.T) {
	env := newTestEnv(
		rec("v1", "f1", 1, base, "c1"),
		rec("w1", "f2", 1, base, "c9"),
	)

	_, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v1", "w1"}, LastModified)
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveRejectsUnknownStrategy(t *testing.T) {
	env := newTestEnv(
		rec("v1", "f1", 1, base, "c1"),
		rec("v2", "f1", 2, base, "c2"),
	)

	_, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v1", "v2"}, Strategy("KEEP_LONGEST"))
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveStorageFailure(t *testing.T) {
	env := newTestEnv(
		rec("v1", "f1", 1, base, "c1"),
		rec("v2", "f1", 2, base, "c2"),
	)
	env.store.err = errors.New("disk full")

	_, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v1", "v2"}, LastModified)
	if !errors.Is(err, errs.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if len(env.notifier.events) != 0 {
		t.Fatalf("expected no notification when save fails")
	}
}

func TestGetAndListForFile(t *testing.T) {
	env := newTestEnv(
		rec("v1", "f1", 1, base, "c1"),
		rec("v2", "f1", 2, base, "c2"),
	)
	res, err := env.service.ResolveConflict(context.Background(), "f1", []string{"v1", "v2"}, KeepBoth)
	if err != nil {
		t.Fatalf("ResolveConflict returned error: %v", err)
	}

	got, err := env.service.Get(context.Background(), res.ID)
	if err != nil || got.ID != res.ID {
		t.Fatalf("Get returned %+v, %v", got, err)
	}
	if _, err := env.service.Get(context.Background(), "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	list, err := env.service.ListForFile(context.Background(), "f1")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListForFile returned %d records, %v", len(list), err)
	}
}

// --- helpers & fakes ---

type testEnv struct {
	service  *Service
	store    *fakeStore
	versions *fakeVersions
	merger   *fakeMerger
	notifier *fakeNotifier
}

func newTestEnv(records ...version.Record) *testEnv {
	versions := &fakeVersions{records: map[string]version.Record{}}
	for _, r := range records {
		versions.records[r.ID] = r
	}
	env := &testEnv{
		store:    &fakeStore{},
		versions: versions,
		merger:   &fakeMerger{versions: versions},
		notifier: &fakeNotifier{},
	}
	env.service = NewService(env.store, env.versions, env.merger, fakeTx{}, env.notifier,
		testutil.FixedClock(), testutil.NewStubIDGenerator("res"), nil)
	return env
}

func rec(id, fileID string, number int, at time.Time, checksum value.Checksum) version.Record {
	return version.Record{ID: id, FileID: fileID, VersionNumber: number, Timestamp: at, Checksum: checksum}
}

type fakeTx struct{}

func (fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := storage.ScopeFrom(ctx); ok {
		return fn(ctx)
	}
	scope := &storage.Scope{}
	if err := fn(storage.WithScope(ctx, scope)); err != nil {
		return err
	}
	scope.RunHooks()
	return nil
}

type fakeStore struct {
	saved []Resolution
	err   error
}

func (f *fakeStore) Save(_ context.Context, res Resolution) (Resolution, error) {
	if f.err != nil {
		return Resolution{}, f.err
	}
	f.saved = append(f.saved, res)
	return res, nil
}

func (f *fakeStore) FindByID(_ context.Context, id string) (Resolution, bool, error) {
	for _, res := range f.saved {
		if res.ID == id {
			return res, true, nil
		}
	}
	return Resolution{}, false, nil
}

func (f *fakeStore) FindByFileID(_ context.Context, fileID string) ([]Resolution, error) {
	var out []Resolution
	for _, res := range f.saved {
		if res.FileID == fileID {
			out = append(out, res)
		}
	}
	return out, nil
}

type fakeVersions struct {
	records map[string]version.Record
}

func (f *fakeVersions) GetVersion(_ context.Context, versionID string) (version.Record, error) {
	rec, ok := f.records[versionID]
	if !ok {
		return version.Record{}, errs.NotFoundf("version %s not found", versionID)
	}
	return rec, nil
}

func (f *fakeVersions) GetVersionsByIDs(ctx context.Context, versionIDs []string) ([]version.Record, error) {
	out := make([]version.Record, 0, len(versionIDs))
	for _, id := range versionIDs {
		rec, err := f.GetVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeVersions) LatestNumber(_ context.Context, fileID string) (int, error) {
	latest := 0
	for _, rec := range f.records {
		if rec.FileID == fileID && rec.VersionNumber > latest {
			latest = rec.VersionNumber
		}
	}
	return latest, nil
}

type fakeMerger struct {
	versions *fakeVersions
	calls    []version.Record
}

func (f *fakeMerger) AppendMergedVersion(ctx context.Context, fileID string, checksum value.Checksum, details string) (version.Record, error) {
	latest, _ := f.versions.LatestNumber(ctx, fileID)
	merged := version.Record{
		ID:                "merged-1",
		FileID:            fileID,
		VersionNumber:     latest + 1,
		Timestamp:         base.Add(24 * time.Hour),
		Checksum:          checksum,
		AdditionalDetails: details,
	}
	f.versions.records[merged.ID] = merged
	f.calls = append(f.calls, merged)
	return merged, nil
}

type fakeNotifier struct {
	events []notify.Event
}

func (f *fakeNotifier) Notify(_ context.Context, event notify.Event) {
	f.events = append(f.events, event)
}
