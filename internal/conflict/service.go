package conflict

import (
	"cmp"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/abduss/filemeta/internal/clock"
	"github.com/abduss/filemeta/internal/errs"
	"github.com/abduss/filemeta/internal/notify"
	"github.com/abduss/filemeta/internal/storage"
	"github.com/abduss/filemeta/internal/value"
	"github.com/abduss/filemeta/internal/version"
	"go.uber.org/zap"
)

// Store persists resolution records.
type Store interface {
	Save(ctx context.Context, res Resolution) (Resolution, error)
	FindByID(ctx context.Context, id string) (Resolution, bool, error)
	FindByFileID(ctx context.Context, fileID string) ([]Resolution, error)
}

// VersionReader loads the versions named in a conflict.
type VersionReader interface {
	GetVersionsByIDs(ctx context.Context, versionIDs []string) ([]version.Record, error)
	LatestNumber(ctx context.Context, fileID string) (int, error)
}

// Merger appends the synthesized version produced by MERGE.
type Merger interface {
	AppendMergedVersion(ctx context.Context, fileID string, checksum value.Checksum, details string) (version.Record, error)
}

// Transactor runs fn as one atomic unit of work.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier receives resolution events.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event)
}

// Service is the conflict resolution engine.
type Service struct {
	store    Store
	versions VersionReader
	merger   Merger
	tx       Transactor
	notifier Notifier
	clock    clock.Clock
	ids      clock.IDGenerator
	logger   *zap.Logger
}

// NewService wires the engine. notifier may be nil.
func NewService(store Store, versions VersionReader, merger Merger, tx Transactor, notifier Notifier, clk clock.Clock, ids clock.IDGenerator, logger *zap.Logger) *Service {
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
		merger:   merger,
		tx:       tx,
		notifier: notifier,
		clock:    clk,
		ids:      ids,
		logger:   logger,
	}
}

// ResolveConflict settles the conflict between versionIDs of fileID using
// strategy and records the outcome. MANUAL_MERGE is not an error: it returns
// an unresolved record in state AWAITING_MANUAL.
func (s *Service) ResolveConflict(ctx context.Context, fileID string, versionIDs []string, strategy Strategy) (Resolution, error) {
	if strings.TrimSpace(fileID) == "" {
		return Resolution{}, errs.Validationf("file id must not be blank")
	}
	ids := distinct(versionIDs)
	if len(ids) < 2 {
		return Resolution{}, errs.Validationf("at least 2 distinct version ids are required, got %d", len(ids))
	}
	if !strategy.Valid() {
		return Resolution{}, errs.Validationf("unknown resolution strategy %q", strategy)
	}

	res := Resolution{
		ID:                    s.ids.New(),
		FileID:                fileID,
		ConflictingVersionIDs: ids,
		Strategy:              strategy,
		State:                 StateCreated,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		records, err := s.load(ctx, fileID, ids)
		if err != nil {
			return err
		}
		if err := res.advance(StateValidated); err != nil {
			return err
		}

		if err := strategy.checkPrecondition(len(records)); err != nil {
			return err
		}
		if err := s.apply(ctx, &res, records); err != nil {
			return err
		}
		res.ResolutionTimestamp = s.clock.Now().UTC()

		saved, err := s.store.Save(ctx, res)
		if err != nil {
			return errs.Storage("save conflict resolution", err)
		}
		res = saved

		outcome := res
		storage.AfterCommit(ctx, func() {
			s.publish(context.WithoutCancel(ctx), outcome)
		})
		return nil
	})
	if err != nil {
		s.logger.Info("conflict resolution rejected",
			zap.String("file_id", fileID),
			zap.String("strategy", string(strategy)),
			zap.Error(err),
		)
		return Resolution{}, err
	}

	s.logger.Info("conflict resolution recorded",
		zap.String("file_id", fileID),
		zap.String("resolution_id", res.ID),
		zap.String("strategy", string(strategy)),
		zap.String("state", string(res.State)),
		zap.String("resulting_version_id", res.ResultingVersionID),
	)
	return res, nil
}

func (s *Service) load(ctx context.Context, fileID string, ids []string) ([]version.Record, error) {
	records, err := s.versions.GetVersionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.FileID != fileID {
			return nil, errs.Validationf("version %s belongs to file %s, not %s", rec.ID, rec.FileID, fileID)
		}
	}
	return records, nil
}

// apply computes the outcome for res.Strategy. Every strategy is handled here.
func (s *Service) apply(ctx context.Context, res *Resolution, records []version.Record) error {
	switch res.Strategy {
	case LastModified:
		return settle(res, pick(records, byTimestamp))
	case FirstModified:
		return settle(res, pick(records, func(a, b version.Record) int { return -byTimestamp(a, b) }))
	case ForceLatestVersion:
		return settle(res, pick(records, byNumber))
	case KeepBoth:
		res.Resolved = true
		res.Detail = fmt.Sprintf("all %d versions retained", len(records))
		return res.advance(StateResolved)
	case ManualMerge:
		res.Resolved = false
		res.Detail = "awaiting manual decision"
		return res.advance(StateAwaitingManual)
	case Merge:
		return s.merge(ctx, res, records)
	default:
		return errs.Validationf("unknown resolution strategy %q", res.Strategy)
	}
}

func settle(res *Resolution, winner version.Record) error {
	res.Resolved = true
	res.ResultingVersionID = winner.ID
	res.Detail = fmt.Sprintf("selected version %s (number %d)", winner.ID, winner.VersionNumber)
	return res.advance(StateResolved)
}

// merge synthesizes version max+1 carrying the checksum of the most recent
// input. The inputs must include the file's latest version so the new number
// continues the history without a gap.
func (s *Service) merge(ctx context.Context, res *Resolution, records []version.Record) error {
	if s.merger == nil {
		return errs.Validationf("strategy %s is not available", Merge)
	}

	highest := pick(records, byNumber)
	latest, err := s.versions.LatestNumber(ctx, res.FileID)
	if err != nil {
		return err
	}
	if highest.VersionNumber != latest {
		return errs.Wrap(errs.ErrValidation,
			fmt.Sprintf("strategy %s requires the latest version %d among the inputs (highest given is %d): "+
				"the merged version is numbered after the highest input and version numbers must stay unique per file",
				Merge, latest, highest.VersionNumber),
			errs.ErrConflict)
	}

	source := pick(records, byTimestamp)
	numbers := make([]string, 0, len(records))
	for _, rec := range records {
		numbers = append(numbers, strconv.Itoa(rec.VersionNumber))
	}

	merged, err := s.merger.AppendMergedVersion(ctx, res.FileID, source.Checksum,
		fmt.Sprintf("merged from versions %s", strings.Join(numbers, ", ")))
	if err != nil {
		return err
	}
	if merged.VersionNumber != highest.VersionNumber+1 {
		return errs.Conflictf("merge produced version %d, expected %d", merged.VersionNumber, highest.VersionNumber+1)
	}

	res.Resolved = true
	res.ResultingVersionID = merged.ID
	res.Detail = fmt.Sprintf("merged into version %d with checksum of %s", merged.VersionNumber, source.ID)
	return res.advance(StateResolved)
}

func (s *Service) publish(ctx context.Context, res Resolution) {
	if s.notifier == nil {
		return
	}
	kind := notify.KindConflictResolved
	if res.State == StateAwaitingManual {
		kind = notify.KindConflictAwaitingManual
	}
	s.notifier.Notify(ctx, notify.Event{
		ID:         s.ids.New(),
		Kind:       kind,
		FileID:     res.FileID,
		OccurredAt: res.ResolutionTimestamp,
		Attributes: map[string]string{
			"strategy": string(res.Strategy),
			"resolved": strconv.FormatBool(res.Resolved),
		},
		Payload: res,
	})
}

// Get loads a resolution record by id.
func (s *Service) Get(ctx context.Context, id string) (Resolution, error) {
	res, found, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Resolution{}, errs.Storage("load conflict resolution", err)
	}
	if !found {
		return Resolution{}, errs.NotFoundf("conflict resolution %s not found", id)
	}
	return res, nil
}

// ListForFile returns the resolutions recorded for fileID, oldest first.
func (s *Service) ListForFile(ctx context.Context, fileID string) ([]Resolution, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, errs.Validationf("file id must not be blank")
	}
	list, err := s.store.FindByFileID(ctx, fileID)
	if err != nil {
		return nil, errs.Storage("list conflict resolutions", err)
	}
	return list, nil
}

// pick returns the record that compares highest; ties go to the smallest id.
func pick(records []version.Record, compare func(a, b version.Record) int) version.Record {
	best := records[0]
	for _, rec := range records[1:] {
		c := compare(rec, best)
		if c > 0 || (c == 0 && rec.ID < best.ID) {
			best = rec
		}
	}
	return best
}

func byTimestamp(a, b version.Record) int {
	ai, bi := a.Info(), b.Info()
	switch {
	case ai.IsNewerThan(&bi):
		return 1
	case bi.IsNewerThan(&ai):
		return -1
	}
	return 0
}

func byNumber(a, b version.Record) int {
	return cmp.Compare(a.VersionNumber, b.VersionNumber)
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
