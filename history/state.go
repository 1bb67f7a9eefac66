// Package history implements the Time Machine: a stored, bidirectional
// history of workspace mutations with blob storage, compaction, undo/redo/
// restore, and a diff view. All of its state lives inside the workspace it
// watches, under the reserved "/.time" prefix; nothing outside this package
// may read or write that prefix directly.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentws/agentws/pathnorm"
	"github.com/agentws/agentws/workspace"
)

// Root is the reserved directory under which all Time Machine state lives.
const (
	Root        = pathnorm.Reserved
	entriesDir  = Root + "/entries"
	blobsDir    = Root + "/blobs"
	stateFile   = Root + "/state.json"
	stateSchema = 1
)

// Default retention parameters, per spec.md §4.4.
const (
	DefaultKeepRecent = 50
	DefaultMaxEntries = 200
	DefaultMergeGroup = 5
)

// ErrCursorOutOfRange indicates a corrupt or impossible cursor value was
// loaded from state.json; this should never happen from code in this
// package, only from a hand-edited or foreign-written state file.
var ErrCursorOutOfRange = errors.New("history: cursor out of range")

// RetentionPolicy bounds journal growth via compaction (see compact).
type RetentionPolicy struct {
	KeepRecent int `json:"keepRecent"`
	MaxEntries int `json:"maxEntries"`
	MergeGroup int `json:"mergeGroup"`
}

// DefaultRetentionPolicy returns the spec's default retention parameters.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		KeepRecent: DefaultKeepRecent,
		MaxEntries: DefaultMaxEntries,
		MergeGroup: DefaultMergeGroup,
	}
}

// EntrySummary is the lightweight, always-resident record of one journal
// entry kept in state.json; the full Entry (with changes and blob paths) is
// loaded on demand from entries/<id>.json.
type EntrySummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	Tool         string    `json:"tool"`
	Compacted    bool      `json:"compacted"`
	ChangedPaths []string  `json:"changedPaths"`
}

// State is the schema-versioned record persisted at /.time/state.json.
type State struct {
	Schema    int             `json:"schema"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Entries   []EntrySummary  `json:"entries"`
	Cursor    int             `json:"cursor"`
	Retention RetentionPolicy `json:"retention"`
}

// TimeMachine mediates all reads and writes under the reserved namespace of
// a single *workspace.Workspace.
type TimeMachine struct {
	ws    *workspace.Workspace
	now   func() time.Time
	newID func() (string, error)
}

// Option configures a TimeMachine constructed by New.
type Option func(*TimeMachine)

// WithClock overrides the clock used to stamp entries; tests use this for
// determinism.
func WithClock(now func() time.Time) Option {
	return func(tm *TimeMachine) { tm.now = now }
}

// WithIDGenerator overrides entry id generation; tests use this for
// determinism.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(tm *TimeMachine) { tm.newID = gen }
}

// New returns a TimeMachine bound to ws.
func New(ws *workspace.Workspace, opts ...Option) *TimeMachine {
	tm := &TimeMachine{
		ws:    ws,
		now:   time.Now,
		newID: newEntryID,
	}

	for _, opt := range opts {
		opt(tm)
	}

	return tm
}

// ensureLayout makes sure /.time, /.time/entries, and /.time/blobs exist.
func (tm *TimeMachine) ensureLayout() {
	_ = tm.ws.Mkdir(Root, true)
	_ = tm.ws.Mkdir(entriesDir, true)
	_ = tm.ws.Mkdir(blobsDir, true)
}

// loadState reads state.json, or returns a freshly initialized State if it
// does not yet exist.
func (tm *TimeMachine) loadState() (*State, error) {
	data, err := tm.ws.ReadFile(stateFile)
	if err != nil {
		if errors.Is(err, workspace.ErrNotFound) {
			now := tm.now()
			return &State{
				Schema:    stateSchema,
				CreatedAt: now,
				UpdatedAt: now,
				Entries:   nil,
				Cursor:    0,
				Retention: DefaultRetentionPolicy(),
			}, nil
		}

		return nil, fmt.Errorf("history: loading state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("history: parsing state: %w", err)
	}

	if st.Cursor < 0 || st.Cursor > len(st.Entries) {
		return nil, fmt.Errorf("history: cursor %d outside [0,%d]: %w", st.Cursor, len(st.Entries), ErrCursorOutOfRange)
	}

	return &st, nil
}

// saveState persists st, stamping UpdatedAt.
func (tm *TimeMachine) saveState(st *State) error {
	st.UpdatedAt = tm.now()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encoding state: %w", err)
	}

	if err := tm.ws.WriteFile(stateFile, data, true); err != nil {
		return fmt.Errorf("history: writing state: %w", err)
	}

	return nil
}

// State returns the current persisted state, for read-only inspection
// (history listings). It does not mutate the workspace.
func (tm *TimeMachine) State() (*State, error) {
	return tm.loadState()
}

func entryPath(id string) string {
	return fmt.Sprintf("%s/%s.json", entriesDir, id)
}

func blobPath(id, side, relPath string) string {
	return fmt.Sprintf("%s/%s/%s/%s", blobsDir, id, side, relPath)
}

// blobEntryDir returns the root blob directory for entry id, covering both
// the "before" and "after" sides.
func blobEntryDir(id string) string {
	return blobsDir + "/" + id
}
