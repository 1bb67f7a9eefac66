package history

import (
	"fmt"

	"github.com/agentws/agentws/internal/textsniff"
)

// FileOpKind classifies a single file's change in a Diff result.
type FileOpKind string

const (
	// FileOpAdded marks a file that did not exist before and exists after.
	FileOpAdded FileOpKind = "file+"
	// FileOpRemoved marks a file that existed before and does not exist after.
	FileOpRemoved FileOpKind = "file-"
	// FileOpModified marks a file that exists on both sides with different
	// content.
	FileOpModified FileOpKind = "file~"
)

// DirOpKind classifies a single directory's change in a Diff result.
type DirOpKind string

const (
	// DirOpAdded marks a directory that came into existence.
	DirOpAdded DirOpKind = "dir+"
	// DirOpRemoved marks a directory that stopped existing.
	DirOpRemoved DirOpKind = "dir-"
)

// FileOp is one file's presentation in a Diff result.
type FileOp struct {
	Path          string     `json:"path"`
	Kind          FileOpKind `json:"kind"`
	Binary        bool       `json:"binary"`
	StartLine     int        `json:"startLine,omitempty"`
	BeforePreview []string   `json:"beforePreview,omitempty"`
	AfterPreview  []string   `json:"afterPreview,omitempty"`
	// BeforeHash/AfterHash are the BLAKE3 content digests recorded at write
	// time, letting a caller detect silent blob corruption without
	// re-reading and re-hashing the blob itself.
	BeforeHash string `json:"beforeHash,omitempty"`
	AfterHash  string `json:"afterHash,omitempty"`
}

// DirOp is one directory's presentation in a Diff result.
type DirOp struct {
	Path string    `json:"path"`
	Kind DirOpKind `json:"kind"`
}

// DiffResult is the human-readable diff view produced by Diff.
type DiffResult struct {
	EntryID        string   `json:"entryId"`
	Files          []FileOp `json:"files"`
	Dirs           []DirOp  `json:"dirs"`
	TruncatedFiles bool     `json:"truncatedFiles"`
}

// Diff produces a human-readable diff view of the entry identified by id.
func (tm *TimeMachine) Diff(id string, maxFiles, maxPreviewLines int) (*DiffResult, error) {
	entry, err := tm.loadEntry(id)
	if err != nil {
		return nil, fmt.Errorf("history: diffing %s: %w", id, err)
	}

	result := &DiffResult{EntryID: id}

	for i, fc := range entry.Changes.Files {
		if i >= maxFiles {
			result.TruncatedFiles = true
			break
		}

		op, err := tm.diffFile(fc, maxPreviewLines)
		if err != nil {
			return nil, err
		}

		result.Files = append(result.Files, op)
	}

	for _, dc := range entry.Changes.Dirs {
		kind := DirOpRemoved
		if dc.AfterExists {
			kind = DirOpAdded
		}

		result.Dirs = append(result.Dirs, DirOp{Path: dc.Path, Kind: kind})
	}

	return result, nil
}

func (tm *TimeMachine) diffFile(fc FileChange, maxPreviewLines int) (FileOp, error) {
	op := FileOp{Path: fc.Path, BeforeHash: fc.BeforeHash, AfterHash: fc.AfterHash}

	switch {
	case !fc.BeforeExists && fc.AfterExists:
		op.Kind = FileOpAdded
	case fc.BeforeExists && !fc.AfterExists:
		op.Kind = FileOpRemoved
	default:
		op.Kind = FileOpModified
	}

	var beforeData, afterData []byte

	var err error

	if fc.BeforeExists {
		beforeData, err = tm.ws.ReadFile(fc.BeforeBlob)
		if err != nil {
			return op, fmt.Errorf("history: reading before blob for %q: %w", fc.Path, err)
		}
	}

	if fc.AfterExists {
		afterData, err = tm.ws.ReadFile(fc.AfterBlob)
		if err != nil {
			return op, fmt.Errorf("history: reading after blob for %q: %w", fc.Path, err)
		}
	}

	if textsniff.IsBinary(beforeData) || textsniff.IsBinary(afterData) {
		op.Binary = true
		return op, nil
	}

	linesBefore := textsniff.SplitLines(beforeData)
	linesAfter := textsniff.SplitLines(afterData)

	start := 0
	for start < len(linesBefore) && start < len(linesAfter) && linesBefore[start] == linesAfter[start] {
		start++
	}

	endBefore := len(linesBefore)
	endAfter := len(linesAfter)

	for endBefore > start && endAfter > start && linesBefore[endBefore-1] == linesAfter[endAfter-1] {
		endBefore--
		endAfter--
	}

	op.StartLine = start + 1
	op.BeforePreview = previewWindow(linesBefore, start, endBefore, maxPreviewLines)
	op.AfterPreview = previewWindow(linesAfter, start, endAfter, maxPreviewLines)

	return op, nil
}

func previewWindow(lines []string, start, end, maxLines int) []string {
	if start >= end || start >= len(lines) {
		return nil
	}

	limit := end
	if start+maxLines < limit {
		limit = start + maxLines
	}

	return append([]string(nil), lines[start:limit]...)
}
