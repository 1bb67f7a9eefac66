package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/agentws/agentws/pathnorm"
)

// Snapshot is a partial view of workspace state supplied by the caller
// (typically the Host Session, which knows exactly which paths a mutating
// tool touched) for Record to diff against.
type Snapshot struct {
	Files map[string][]byte
	Dirs  map[string]struct{}
}

// Record computes the change set between before and after, and — if it is
// non-empty — appends a new journal entry for it, writing blobs for every
// changed file and running compaction. If there is nothing to record (every
// path is byte-identical between before and after), Record returns (nil,
// nil) and adds no entry; a redo tail beyond the cursor is discarded in
// either case.
func (tm *TimeMachine) Record(tool, note string, before, after Snapshot) (*EntrySummary, error) {
	tm.ensureLayout()

	st, err := tm.loadState()
	if err != nil {
		return nil, err
	}

	discarded := false
	if st.Cursor < len(st.Entries) {
		if err := tm.discardRedoTail(st); err != nil {
			return nil, err
		}

		discarded = true
	}

	changes := diffSnapshots(before, after)
	if changes.Empty() {
		if discarded {
			return nil, tm.saveState(st)
		}

		return nil, nil
	}

	id, err := tm.newID()
	if err != nil {
		return nil, err
	}

	for i := range changes.Files {
		fc := &changes.Files[i]
		rel := strings.TrimPrefix(fc.Path, "/")

		if fc.BeforeExists {
			fc.BeforeBlob = blobPath(id, "before", rel)
			if err := tm.ws.WriteFile(fc.BeforeBlob, before.Files[fc.Path], true); err != nil {
				return nil, fmt.Errorf("history: writing before blob for %q: %w", fc.Path, err)
			}
		}

		if fc.AfterExists {
			fc.AfterBlob = blobPath(id, "after", rel)
			if err := tm.ws.WriteFile(fc.AfterBlob, after.Files[fc.Path], true); err != nil {
				return nil, fmt.Errorf("history: writing after blob for %q: %w", fc.Path, err)
			}
		}
	}

	entry := &Entry{
		ID:        id,
		CreatedAt: tm.now(),
		Tool:      tool,
		Note:      note,
		Changes:   changes,
	}

	if err := tm.writeEntry(entry); err != nil {
		return nil, err
	}

	summary := EntrySummary{
		ID:           entry.ID,
		CreatedAt:    entry.CreatedAt,
		Tool:         entry.Tool,
		ChangedPaths: changes.ChangedPaths(),
	}

	st.Entries = append(st.Entries, summary)
	st.Cursor = len(st.Entries)

	if err := tm.compact(st); err != nil {
		return nil, err
	}

	if err := tm.saveState(st); err != nil {
		return nil, err
	}

	return &summary, nil
}

// diffSnapshots computes the file and directory change sets between before
// and after, dropping no-op file changes (identical byte content on both
// sides) and excluding the root and the reserved namespace from directory
// changes.
func diffSnapshots(before, after Snapshot) ChangeSet {
	var cs ChangeSet

	filePaths := make(map[string]struct{}, len(before.Files)+len(after.Files))
	for p := range before.Files {
		filePaths[p] = struct{}{}
	}

	for p := range after.Files {
		filePaths[p] = struct{}{}
	}

	sorted := sortedKeys(filePaths)

	for _, p := range sorted {
		if pathnorm.IsReserved(p) {
			continue
		}

		beforeData, beforeOK := before.Files[p]
		afterData, afterOK := after.Files[p]

		if beforeOK && afterOK && bytes.Equal(beforeData, afterData) {
			continue
		}

		fc := FileChange{
			Kind:         ChangeKindFile,
			Path:         p,
			BeforeExists: beforeOK,
			AfterExists:  afterOK,
		}

		if beforeOK {
			fc.BeforeSize = int64(len(beforeData))
			fc.BeforeHash = contentHash(beforeData)
		}

		if afterOK {
			fc.AfterSize = int64(len(afterData))
			fc.AfterHash = contentHash(afterData)
		}

		cs.Files = append(cs.Files, fc)
	}

	dirPaths := make(map[string]struct{}, len(before.Dirs)+len(after.Dirs))
	for p := range before.Dirs {
		dirPaths[p] = struct{}{}
	}

	for p := range after.Dirs {
		dirPaths[p] = struct{}{}
	}

	for _, p := range sortedKeys(dirPaths) {
		if p == "/" || pathnorm.IsReserved(p) {
			continue
		}

		_, beforeOK := before.Dirs[p]
		_, afterOK := after.Dirs[p]

		if beforeOK == afterOK {
			continue
		}

		cs.Dirs = append(cs.Dirs, DirChange{
			Kind:         ChangeKindDir,
			Path:         p,
			BeforeExists: beforeOK,
			AfterExists:  afterOK,
		})
	}

	return cs
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func (tm *TimeMachine) writeEntry(e *Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encoding entry %s: %w", e.ID, err)
	}

	if err := tm.ws.WriteFile(entryPath(e.ID), data, true); err != nil {
		return fmt.Errorf("history: writing entry %s: %w", e.ID, err)
	}

	return nil
}

func (tm *TimeMachine) loadEntry(id string) (*Entry, error) {
	data, err := tm.ws.ReadFile(entryPath(id))
	if err != nil {
		return nil, fmt.Errorf("history: loading entry %s: %w", id, err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("history: parsing entry %s: %w", id, err)
	}

	return &e, nil
}

// discardRedoTail deletes every entry at and after the cursor (the redo
// stack) along with their blobs, then truncates st.Entries to the cursor.
func (tm *TimeMachine) discardRedoTail(st *State) error {
	for _, summary := range st.Entries[st.Cursor:] {
		tm.ws.DeleteSubtree(blobEntryDir(summary.ID))
		_ = tm.ws.Delete(entryPath(summary.ID))
	}

	st.Entries = st.Entries[:st.Cursor]

	return nil
}
