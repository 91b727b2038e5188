package conflict

import (
	"strings"

	"github.com/abduss/filemeta/internal/errs"
)

// Strategy names the rule used to settle a conflict.
type Strategy string

const (
	LastModified       Strategy = "LAST_MODIFIED"
	FirstModified      Strategy = "FIRST_MODIFIED"
	ForceLatestVersion Strategy = "FORCE_LATEST_VERSION"
	KeepBoth           Strategy = "KEEP_BOTH"
	ManualMerge        Strategy = "MANUAL_MERGE"
	Merge              Strategy = "MERGE"
)

// Strategies lists every supported strategy.
func Strategies() []Strategy {
	return []Strategy{LastModified, FirstModified, ForceLatestVersion, KeepBoth, ManualMerge, Merge}
}

var aliases = map[string]Strategy{
	"MANUAL":   ManualMerge,
	"KEEP_ALL": KeepBoth,
}

// ParseStrategy resolves a strategy name case-insensitively. The legacy names
// MANUAL and KEEP_ALL are accepted.
func ParseStrategy(raw string) (Strategy, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	if alias, ok := aliases[name]; ok {
		return alias, nil
	}
	s := Strategy(name)
	if !s.Valid() {
		return "", errs.Validationf("unknown resolution strategy %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the supported strategies.
func (s Strategy) Valid() bool {
	switch s {
	case LastModified, FirstModified, ForceLatestVersion, KeepBoth, ManualMerge, Merge:
		return true
	}
	return false
}

// checkPrecondition validates the number of distinct versions for s.
func (s Strategy) checkPrecondition(n int) error {
	switch s {
	case LastModified, FirstModified, ForceLatestVersion:
		if n < 1 {
			return preconditionFailed(s, "at least 1 version")
		}
	case KeepBoth, Merge:
		if n < 2 {
			return preconditionFailed(s, "at least 2 versions")
		}
	case ManualMerge:
		if n != 2 {
			return preconditionFailed(s, "exactly 2 versions")
		}
	}
	return nil
}

func preconditionFailed(s Strategy, want string) error {
	return errs.Wrap(errs.ErrValidation, "strategy "+string(s)+" requires "+want, errs.ErrConflict)
}

func (s Strategy) String() string {
	return string(s)
}
