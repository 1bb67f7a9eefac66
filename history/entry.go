package history

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// ChangeKind distinguishes a file change from a directory change within an
// Entry.
type ChangeKind string

const (
	// ChangeKindFile marks a file content change.
	ChangeKindFile ChangeKind = "file"
	// ChangeKindDir marks a directory existence change.
	ChangeKindDir ChangeKind = "dir"
)

// FileChange records one file's before/after state for a single entry.
type FileChange struct {
	Kind         ChangeKind `json:"kind"`
	Path         string     `json:"path"`
	BeforeExists bool       `json:"beforeExists"`
	AfterExists  bool       `json:"afterExists"`
	BeforeBlob   string     `json:"beforeBlob,omitempty"`
	AfterBlob    string     `json:"afterBlob,omitempty"`
	BeforeSize   int64      `json:"beforeSize,omitempty"`
	AfterSize    int64      `json:"afterSize,omitempty"`
	BeforeHash   string     `json:"beforeHash,omitempty"`
	AfterHash    string     `json:"afterHash,omitempty"`
}

// DirChange records one directory's before/after existence for a single
// entry.
type DirChange struct {
	Kind         ChangeKind `json:"kind"`
	Path         string     `json:"path"`
	BeforeExists bool       `json:"beforeExists"`
	AfterExists  bool       `json:"afterExists"`
}

// ChangeSet is the full set of file and directory changes recorded by one
// entry.
type ChangeSet struct {
	Files []FileChange `json:"files,omitempty"`
	Dirs  []DirChange  `json:"dirs,omitempty"`
}

// Empty reports whether the change set carries no changes at all.
func (cs ChangeSet) Empty() bool {
	return len(cs.Files) == 0 && len(cs.Dirs) == 0
}

// ChangedPaths returns the union of file and directory paths touched by cs,
// for EntrySummary.ChangedPaths.
func (cs ChangeSet) ChangedPaths() []string {
	paths := make([]string, 0, len(cs.Files)+len(cs.Dirs))
	for _, fc := range cs.Files {
		paths = append(paths, fc.Path)
	}

	for _, dc := range cs.Dirs {
		paths = append(paths, dc.Path)
	}

	return paths
}

// Entry is the full per-entry record persisted at entries/<id>.json.
type Entry struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Tool          string    `json:"tool"`
	Note          string    `json:"note,omitempty"`
	Changes       ChangeSet `json:"changes"`
	CompactedFrom []string  `json:"compactedFrom,omitempty"`
}

// contentHash returns the hex-encoded BLAKE3 digest of data.
func contentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// newEntryID mints an entry id of the form
// "YYYY-MM-DDTHH-MM-SS-<ms>Z_<6hex>". Ids minted in different milliseconds
// sort in creation order while the wall clock moves forward; two ids minted
// within the same millisecond differ only in a random suffix, so their
// relative order is not defined.
func newEntryID() (string, error) {
	now := time.Now().UTC()

	ts := fmt.Sprintf("%04d-%02d-%02dT%02d-%02d-%02d-%03dZ",
		now.Year(), now.Month(), now.Day(),
		now.Hour(), now.Minute(), now.Second(), now.Nanosecond()/int(time.Millisecond))

	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("history: generating entry id: %w", err)
	}

	return ts + "_" + hex.EncodeToString(suffix), nil
}
