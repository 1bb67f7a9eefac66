package history

import (
	"errors"
	"fmt"
	"sort"

	"github.com/agentws/agentws/workspace"
)

// side selects which half of a change an apply operates on.
type side string

const (
	sideBefore side = "before"
	sideAfter  side = "after"
)

// Undo moves the cursor backward by up to steps entries, applying each
// entry's "before" state in reverse chronological order. It stops early if
// the cursor reaches 0. It returns the number of steps actually applied.
func (tm *TimeMachine) Undo(steps int) (int, error) {
	st, err := tm.loadState()
	if err != nil {
		return 0, err
	}

	applied := 0

	for applied < steps && st.Cursor > 0 {
		summary := st.Entries[st.Cursor-1]

		entry, err := tm.loadEntry(summary.ID)
		if err != nil {
			return applied, err
		}

		if err := tm.apply(entry, sideBefore); err != nil {
			return applied, err
		}

		st.Cursor--
		applied++
	}

	if err := tm.saveState(st); err != nil {
		return applied, err
	}

	return applied, nil
}

// Redo moves the cursor forward by up to steps entries, applying each
// entry's "after" state in chronological order. It stops early if the
// cursor reaches the head. It returns the number of steps actually applied.
func (tm *TimeMachine) Redo(steps int) (int, error) {
	st, err := tm.loadState()
	if err != nil {
		return 0, err
	}

	applied := 0

	for applied < steps && st.Cursor < len(st.Entries) {
		summary := st.Entries[st.Cursor]

		entry, err := tm.loadEntry(summary.ID)
		if err != nil {
			return applied, err
		}

		if err := tm.apply(entry, sideAfter); err != nil {
			return applied, err
		}

		st.Cursor++
		applied++
	}

	if err := tm.saveState(st); err != nil {
		return applied, err
	}

	return applied, nil
}

// ErrEntryNotFound is returned by Restore when id does not name a known
// entry.
var ErrEntryNotFound = errors.New("history: entry not found")

// Restore moves the cursor to index(id)+1, undoing or redoing as needed so
// the workspace ends up equal to id's "after" state.
func (tm *TimeMachine) Restore(id string) error {
	st, err := tm.loadState()
	if err != nil {
		return err
	}

	idx := -1

	for i, summary := range st.Entries {
		if summary.ID == id {
			idx = i
			break
		}
	}

	if idx < 0 {
		return fmt.Errorf("history: restoring %s: %w", id, ErrEntryNotFound)
	}

	target := idx + 1

	switch {
	case st.Cursor > target:
		_, err = tm.Undo(st.Cursor - target)
	case st.Cursor < target:
		_, err = tm.Redo(target - st.Cursor)
	}

	return err
}

// apply writes which-side of entry's changes into the workspace: files are
// set to the side's blob bytes (or deleted if the side does not exist);
// directories that must exist are created first (shortest path first),
// then directories that must not exist are deleted (longest path first,
// best-effort — a directory left non-empty by unrelated state is silently
// skipped, per spec.md §4.4).
func (tm *TimeMachine) apply(entry *Entry, which side) error {
	for _, fc := range entry.Changes.Files {
		exists, blob := fc.BeforeExists, fc.BeforeBlob
		if which == sideAfter {
			exists, blob = fc.AfterExists, fc.AfterBlob
		}

		if !exists {
			if err := tm.ws.Delete(fc.Path); err != nil && !errors.Is(err, workspace.ErrNotFound) {
				return fmt.Errorf("history: applying %s to %q: %w", which, fc.Path, err)
			}

			continue
		}

		data, err := tm.ws.ReadFile(blob)
		if err != nil {
			return fmt.Errorf("history: reading blob %q: %w", blob, err)
		}

		if err := tm.ws.WriteFile(fc.Path, data, true); err != nil {
			return fmt.Errorf("history: applying %s to %q: %w", which, fc.Path, err)
		}
	}

	var toCreate, toDelete []string

	for _, dc := range entry.Changes.Dirs {
		exists := dc.BeforeExists
		if which == sideAfter {
			exists = dc.AfterExists
		}

		if exists {
			toCreate = append(toCreate, dc.Path)
		} else {
			toDelete = append(toDelete, dc.Path)
		}
	}

	sort.Slice(toCreate, func(i, j int) bool { return len(toCreate[i]) < len(toCreate[j]) })
	for _, p := range toCreate {
		_ = tm.ws.Mkdir(p, true)
	}

	sort.Slice(toDelete, func(i, j int) bool { return len(toDelete[i]) > len(toDelete[j]) })
	for _, p := range toDelete {
		_ = tm.ws.Delete(p) // best-effort: non-empty due to unrelated state is skipped silently
	}

	return nil
}
