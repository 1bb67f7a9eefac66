package history

import (
	"fmt"
	"strings"
)

// compact folds the oldest group(s) of entries into a single compacted
// entry while st.Entries exceeds st.Retention.MaxEntries and at least two
// entries remain outside the KeepRecent tail, per spec.md §4.4.
//
// Open question resolved (spec.md §9): when the cursor falls inside the
// group being compacted, the cursor is clamped to the start of the new
// compacted entry's position (cursor becomes "not yet applied" relative to
// it) rather than its end. This means a compaction that spans the cursor
// effectively performs an implicit undo down to that boundary: any entries
// in the merged group that were "ahead" of the old cursor were redoable
// before compaction and are folded away — their future existence, being
// unapplied, is exactly the state a clamp-to-start preserves. A reader who
// wants "stay applied across a compacted cursor" should compact only the
// KeepRecent-excluded prefix, which this implementation already guarantees
// never includes the cursor's own entry index when KeepRecent >= 1.
func (tm *TimeMachine) compact(st *State) error {
	for len(st.Entries) > st.Retention.MaxEntries {
		mergeable := len(st.Entries) - st.Retention.KeepRecent
		if mergeable < 2 {
			break
		}

		groupSize := st.Retention.MergeGroup
		if groupSize > mergeable {
			groupSize = mergeable
		}

		if groupSize < 2 {
			break
		}

		if err := tm.compactGroup(st, groupSize); err != nil {
			return err
		}
	}

	return nil
}

// compactGroup merges the oldest groupSize entries of st into one.
func (tm *TimeMachine) compactGroup(st *State, groupSize int) error {
	group := st.Entries[:groupSize]

	entries := make([]*Entry, 0, groupSize)

	for _, summary := range group {
		entry, err := tm.loadEntry(summary.ID)
		if err != nil {
			return err
		}

		entries = append(entries, entry)
	}

	collapsed := collapseEntries(entries)

	newID, err := tm.newID()
	if err != nil {
		return err
	}

	for i := range collapsed.Files {
		fc := &collapsed.Files[i]
		rel := strings.TrimPrefix(fc.Path, "/")

		if fc.BeforeExists {
			oldBlob := fc.BeforeBlob
			fc.BeforeBlob = blobPath(newID, "before", rel)

			if err := tm.copyBlob(oldBlob, fc.BeforeBlob); err != nil {
				return err
			}
		}

		if fc.AfterExists {
			oldBlob := fc.AfterBlob
			fc.AfterBlob = blobPath(newID, "after", rel)

			if err := tm.copyBlob(oldBlob, fc.AfterBlob); err != nil {
				return err
			}
		}
	}

	compactedFrom := make([]string, 0, groupSize)
	for _, summary := range group {
		compactedFrom = append(compactedFrom, summary.ID)
	}

	newEntry := &Entry{
		ID:            newID,
		CreatedAt:     entries[len(entries)-1].CreatedAt,
		Tool:          "compact",
		Note:          fmt.Sprintf("compacted %d entries", groupSize),
		Changes:       collapsed,
		CompactedFrom: compactedFrom,
	}

	if err := tm.writeEntry(newEntry); err != nil {
		return err
	}

	for _, summary := range group {
		tm.ws.DeleteSubtree(blobEntryDir(summary.ID))
		_ = tm.ws.Delete(entryPath(summary.ID))
	}

	newSummary := EntrySummary{
		ID:           newEntry.ID,
		CreatedAt:    newEntry.CreatedAt,
		Tool:         newEntry.Tool,
		Compacted:    true,
		ChangedPaths: collapsed.ChangedPaths(),
	}

	st.Entries = append([]EntrySummary{newSummary}, st.Entries[groupSize:]...)

	st.Cursor -= groupSize - 1
	if st.Cursor < 0 {
		st.Cursor = 0
	}

	if st.Cursor > len(st.Entries) {
		st.Cursor = len(st.Entries)
	}

	return nil
}

// copyBlob copies the blob at oldPath to newPath inside the workspace.
func (tm *TimeMachine) copyBlob(oldPath, newPath string) error {
	data, err := tm.ws.ReadFile(oldPath)
	if err != nil {
		return fmt.Errorf("history: reading blob %q during compaction: %w", oldPath, err)
	}

	if err := tm.ws.WriteFile(newPath, data, true); err != nil {
		return fmt.Errorf("history: writing blob %q during compaction: %w", newPath, err)
	}

	return nil
}

// collapseEntries folds an ordered (oldest-first) slice of entries into one
// equivalent ChangeSet: for each path, the earliest entry's "before" side
// and the latest entry's "after" side survive. No-op results (file:
// identical before/after content; dir: identical before/after existence)
// are dropped.
func collapseEntries(entries []*Entry) ChangeSet {
	type fileFold struct {
		first, last FileChange
		sawFirst    bool
	}

	fileOrder := make([]string, 0)
	files := make(map[string]*fileFold)

	type dirFold struct {
		first, last DirChange
		sawFirst    bool
	}

	dirOrder := make([]string, 0)
	dirs := make(map[string]*dirFold)

	for _, entry := range entries {
		for _, fc := range entry.Changes.Files {
			f, ok := files[fc.Path]
			if !ok {
				f = &fileFold{}
				files[fc.Path] = f
				fileOrder = append(fileOrder, fc.Path)
			}

			if !f.sawFirst {
				f.first = fc
				f.sawFirst = true
			}

			f.last = fc
		}

		for _, dc := range entry.Changes.Dirs {
			d, ok := dirs[dc.Path]
			if !ok {
				d = &dirFold{}
				dirs[dc.Path] = d
				dirOrder = append(dirOrder, dc.Path)
			}

			if !d.sawFirst {
				d.first = dc
				d.sawFirst = true
			}

			d.last = dc
		}
	}

	var cs ChangeSet

	for _, path := range fileOrder {
		f := files[path]

		merged := FileChange{
			Kind:         ChangeKindFile,
			Path:         path,
			BeforeExists: f.first.BeforeExists,
			AfterExists:  f.last.AfterExists,
			BeforeBlob:   f.first.BeforeBlob,
			AfterBlob:    f.last.AfterBlob,
			BeforeSize:   f.first.BeforeSize,
			AfterSize:    f.last.AfterSize,
			BeforeHash:   f.first.BeforeHash,
			AfterHash:    f.last.AfterHash,
		}

		if merged.BeforeExists && merged.AfterExists && merged.BeforeHash == merged.AfterHash {
			continue
		}

		cs.Files = append(cs.Files, merged)
	}

	for _, path := range dirOrder {
		d := dirs[path]

		merged := DirChange{
			Kind:         ChangeKindDir,
			Path:         path,
			BeforeExists: d.first.BeforeExists,
			AfterExists:  d.last.AfterExists,
		}

		if merged.BeforeExists == merged.AfterExists {
			continue
		}

		cs.Dirs = append(cs.Dirs, merged)
	}

	return cs
}
