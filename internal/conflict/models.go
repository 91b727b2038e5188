package conflict

import (
	"time"

	"github.com/abduss/filemeta/internal/errs"
)

// State tracks a resolution through CREATED, VALIDATED and then RESOLVED or
// AWAITING_MANUAL.
type State string

const (
	StateCreated        State = "CREATED"
	StateValidated      State = "VALIDATED"
	StateResolved       State = "RESOLVED"
	StateAwaitingManual State = "AWAITING_MANUAL"
)

// Terminal reports whether no further automatic transition happens from s.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateAwaitingManual
}

// Resolution is the audit record of one settled (or deferred) conflict.
type Resolution struct {
	ID                    string    `json:"id"`
	FileID                string    `json:"file_id"`
	ConflictingVersionIDs []string  `json:"conflicting_version_ids"`
	Strategy              Strategy  `json:"resolution_strategy"`
	State                 State     `json:"state"`
	Resolved              bool      `json:"resolved"`
	ResolutionTimestamp   time.Time `json:"resolution_timestamp"`
	ResultingVersionID    string    `json:"resulting_version_id,omitempty"`
	Detail                string    `json:"detail,omitempty"`
}

// advance moves r to next. A resolution in a terminal state never moves again.
func (r *Resolution) advance(next State) error {
	if r.State.Terminal() {
		return errs.Conflictf("conflict resolution %s is already %s", r.ID, r.State)
	}
	r.State = next
	return nil
}
