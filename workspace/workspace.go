// Package workspace implements the Virtual Workspace: an in-memory POSIX
// file tree persisted as a ZIP container.
//
// A Workspace holds a mapping from file path to an immutable byte sequence,
// plus the set of directory paths. It is not safe for concurrent use; the
// Host Session owns serialization (see spec.md §5).
package workspace

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agentws/agentws/pathnorm"
)

// Sentinel errors for the conditions spec.md §7 calls "not-found",
// "not-a-directory", "non-empty", "already-exists", and "corrupt-archive".
var (
	ErrNotFound         = errors.New("workspace: not found")
	ErrNotADirectory    = errors.New("workspace: not a directory")
	ErrNonEmpty         = errors.New("workspace: directory not empty")
	ErrAlreadyExists    = errors.New("workspace: already exists")
	ErrCorruptArchive   = errors.New("workspace: corrupt archive")
	ErrRefuseDeleteRoot = errors.New("workspace: cannot delete root")
)

// EntryType distinguishes files from directories in Stat results.
type EntryType int

const (
	// TypeFile marks a regular file entry.
	TypeFile EntryType = iota
	// TypeDir marks a directory entry.
	TypeDir
)

// Stat describes the result of a stat() call.
type Stat struct {
	Type EntryType
	Size int64
}

// Workspace is the in-memory POSIX file tree. The zero value has no maps and
// no root directory and is not usable; construct one with New.
type Workspace struct {
	files map[string][]byte
	dirs  map[string]struct{}
}

// New returns an empty Workspace containing only the root directory.
func New() *Workspace {
	return &Workspace{
		files: make(map[string][]byte),
		dirs:  map[string]struct{}{"/": {}},
	}
}

// Stat returns the entry at p, or (Stat{}, false) if nothing exists there.
func (w *Workspace) Stat(p string) (Stat, bool) {
	p = pathnorm.Normalize(p)

	if data, ok := w.files[p]; ok {
		return Stat{Type: TypeFile, Size: int64(len(data))}, true
	}

	if _, ok := w.dirs[p]; ok {
		return Stat{Type: TypeDir}, true
	}

	return Stat{}, false
}

// List returns the sorted, de-duplicated names of the immediate children of
// directory p.
func (w *Workspace) List(p string) ([]string, error) {
	p = pathnorm.Normalize(p)

	if _, ok := w.dirs[p]; !ok {
		if _, isFile := w.files[p]; isFile {
			return nil, fmt.Errorf("listing %q: %w", p, ErrNotADirectory)
		}

		return nil, fmt.Errorf("listing %q: %w", p, ErrNotFound)
	}

	seen := make(map[string]struct{})

	for fp := range w.files {
		if pathnorm.Dirname(fp) == p {
			seen[pathnorm.Basename(fp)] = struct{}{}
		}
	}

	for dp := range w.dirs {
		if dp == p {
			continue
		}

		if pathnorm.Dirname(dp) == p {
			seen[pathnorm.Basename(dp)] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

// ReadFile returns the raw bytes stored at p.
func (w *Workspace) ReadFile(p string) ([]byte, error) {
	p = pathnorm.Normalize(p)

	data, ok := w.files[p]
	if !ok {
		return nil, fmt.Errorf("reading %q: %w", p, ErrNotFound)
	}

	return data, nil
}

// WriteFile stores data at p, implicitly materializing all ancestor
// directories. If overwrite is false and a file already exists at p,
// ErrAlreadyExists is returned and no state changes.
func (w *Workspace) WriteFile(p string, data []byte, overwrite bool) error {
	p = pathnorm.Normalize(p)

	if !overwrite {
		if _, ok := w.files[p]; ok {
			return fmt.Errorf("writing %q: %w", p, ErrAlreadyExists)
		}
	}

	if _, ok := w.dirs[p]; ok {
		return fmt.Errorf("writing %q: %w", p, ErrNotADirectory)
	}

	w.materializeAncestors(p)

	cp := make([]byte, len(data))
	copy(cp, data)
	w.files[p] = cp

	return nil
}

// Mkdir creates directory p. If recursive is false, the immediate parent of
// p must already exist.
func (w *Workspace) Mkdir(p string, recursive bool) error {
	p = pathnorm.Normalize(p)

	if _, ok := w.files[p]; ok {
		return fmt.Errorf("mkdir %q: %w", p, ErrAlreadyExists)
	}

	if !recursive {
		parent := pathnorm.Dirname(p)
		if _, ok := w.dirs[parent]; !ok {
			return fmt.Errorf("mkdir %q: parent %q: %w", p, parent, ErrNotFound)
		}
	}

	w.materializeAncestors(p)
	w.dirs[p] = struct{}{}

	return nil
}

// Delete removes the file or empty directory at p. Deleting the root is
// refused. Deleting a non-empty directory fails with ErrNonEmpty.
func (w *Workspace) Delete(p string) error {
	p = pathnorm.Normalize(p)

	if p == "/" {
		return fmt.Errorf("deleting %q: %w", p, ErrRefuseDeleteRoot)
	}

	if _, ok := w.files[p]; ok {
		delete(w.files, p)
		return nil
	}

	if _, ok := w.dirs[p]; ok {
		prefix := p + "/"

		for fp := range w.files {
			if strings.HasPrefix(fp, prefix) {
				return fmt.Errorf("deleting %q: %w", p, ErrNonEmpty)
			}
		}

		for dp := range w.dirs {
			if dp != p && strings.HasPrefix(dp, prefix) {
				return fmt.Errorf("deleting %q: %w", p, ErrNonEmpty)
			}
		}

		delete(w.dirs, p)

		return nil
	}

	return fmt.Errorf("deleting %q: %w", p, ErrNotFound)
}

// DeleteSubtree force-removes p and, if it is a directory, every file and
// directory beneath it, without the non-empty check Delete applies. It never
// removes the root.
//
// This bypasses the normal POSIX-like Delete contract and exists only for
// privileged internal callers (the Time Machine) that need to purge a whole
// reserved-namespace subtree — e.g. discarding an old entry's blobs — in one
// step.
func (w *Workspace) DeleteSubtree(p string) {
	p = pathnorm.Normalize(p)
	if p == "/" {
		return
	}

	prefix := p + "/"

	for fp := range w.files {
		if fp == p || strings.HasPrefix(fp, prefix) {
			delete(w.files, fp)
		}
	}

	for dp := range w.dirs {
		if dp == p || strings.HasPrefix(dp, prefix) {
			delete(w.dirs, dp)
		}
	}
}

// materializeAncestors ensures every ancestor directory of p exists.
func (w *Workspace) materializeAncestors(p string) {
	dir := pathnorm.Dirname(p)

	for {
		if _, ok := w.dirs[dir]; ok {
			return
		}

		w.dirs[dir] = struct{}{}

		if dir == "/" {
			return
		}

		dir = pathnorm.Dirname(dir)
	}
}

// Files returns a snapshot copy of every file path currently stored. Used by
// the Time Machine and Host Session to compute before/after change sets;
// callers must not assume iteration order.
func (w *Workspace) Files() map[string][]byte {
	out := make(map[string][]byte, len(w.files))
	for p, data := range w.files {
		cp := make([]byte, len(data))
		copy(cp, data)
		out[p] = cp
	}

	return out
}

// Dirs returns a snapshot copy of every directory path currently stored.
func (w *Workspace) Dirs() map[string]struct{} {
	out := make(map[string]struct{}, len(w.dirs))
	for p := range w.dirs {
		out[p] = struct{}{}
	}

	return out
}
