package tools

import (
	"strings"

	"github.com/agentws/agentws/internal/textsniff"
	"github.com/agentws/agentws/pathnorm"
)

// LineEntry is one line of a fs_read_lines or fs_search result.
type LineEntry struct {
	LineNumber int    `json:"lineNumber"`
	Content    string `json:"content"`
}

// ReadLinesResult is the result of ReadLines.
type ReadLinesResult struct {
	Path       string      `json:"path"`
	StartLine  int         `json:"startLine"`
	EndLine    int         `json:"endLine"`
	TotalLines int         `json:"totalLines"`
	Lines      []LineEntry `json:"lines"`
}

// ReadLines returns the 1-based inclusive line range [startLine, endLine],
// clamped to the file's actual line count.
func (f *Facade) ReadLines(p string, startLine, endLine int, maxBytes int64) (*ReadLinesResult, error) {
	data, err := f.readBytes(p, maxBytes)
	if err != nil {
		return nil, err
	}

	p = pathnorm.Normalize(p)

	lines := textsniff.SplitLines(data)
	total := len(lines)

	start, end := clampRange(startLine, endLine, total)

	result := &ReadLinesResult{
		Path:       p,
		StartLine:  start,
		EndLine:    end,
		TotalLines: total,
	}

	for i := start; i <= end && i >= 1; i++ {
		result.Lines = append(result.Lines, LineEntry{LineNumber: i, Content: lines[i-1]})
	}

	return result, nil
}

// clampRange clamps a 1-based [start,end] range into [1,total], returning
// an empty-but-valid range (start > end) if total is zero.
func clampRange(start, end, total int) (int, int) {
	if start < 1 {
		start = 1
	}

	if end > total {
		end = total
	}

	if total == 0 {
		return 1, 0
	}

	if start > total {
		start = total + 1
	}

	if end < start {
		end = start - 1
	}

	return start, end
}

// PatchLines replaces the 1-based inclusive line range [startLine, endLine]
// with replacement (itself possibly multi-line), preserving all other
// lines verbatim. If startLine exceeds the file's line count, the
// replacement is appended after the end of the file (spec.md §9 resolves
// this open question as append-after-end rather than reject).
//
// Behavior is undefined if the file contains NUL bytes; per spec.md §4.3 it
// is always treated as text.
func (f *Facade) PatchLines(p, replacement string, startLine, endLine int) error {
	data, err := f.readBytes(p, 0)
	if err != nil {
		return err
	}

	p = pathnorm.Normalize(p)

	lines := textsniff.SplitLines(data)
	total := len(lines)

	if startLine < 1 {
		startLine = 1
	}

	replacementLines := splitReplacement(replacement)

	var result []string

	switch {
	case startLine > total:
		result = append(result, lines...)
		result = append(result, replacementLines...)
	default:
		if endLine > total {
			endLine = total
		}

		if endLine < startLine {
			endLine = startLine - 1
		}

		result = append(result, lines[:startLine-1]...)
		result = append(result, replacementLines...)
		result = append(result, lines[endLine:]...)
	}

	return f.writeBytes(p, []byte(strings.Join(result, "\n")), true)
}

// splitReplacement splits a (possibly multi-line) replacement string into
// its constituent lines without introducing a trailing empty line for a
// trailing newline, since the caller is supplying line content, not raw
// file bytes with a guaranteed final terminator.
func splitReplacement(replacement string) []string {
	if replacement == "" {
		return []string{""}
	}

	normalized := strings.ReplaceAll(replacement, "\r\n", "\n")
	normalized = strings.TrimSuffix(normalized, "\n")

	return strings.Split(normalized, "\n")
}
