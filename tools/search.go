package tools

import (
	"sort"
	"strings"

	"github.com/agentws/agentws/internal/textsniff"
	"github.com/agentws/agentws/pathnorm"
	"github.com/agentws/agentws/workspace"
)

// SearchResult is one match (plus its surrounding context) found by Search.
type SearchResult struct {
	Path             string      `json:"path"`
	MatchLine        int         `json:"matchLine"`
	ContextStartLine int         `json:"contextStartLine"`
	ContextEndLine   int         `json:"contextEndLine"`
	Lines            []LineEntry `json:"lines"`
}

// SearchSummary is the overall outcome of a Search call.
type SearchSummary struct {
	Results            []SearchResult `json:"results"`
	ScannedFiles       int            `json:"scannedFiles"`
	MatchedFiles       int            `json:"matchedFiles"`
	SkippedBinaryFiles int            `json:"skippedBinaryFiles"`
	Truncated          bool           `json:"truncated"`
}

// SearchOptions configures Search. A nil CaseSensitive means "smart case":
// case-sensitive iff Query contains an uppercase character.
type SearchOptions struct {
	Query         string
	PathPrefix    string
	MaxResults    int
	ContextLines  int
	MaxLineLength int
	CaseSensitive *bool
}

const (
	defaultMaxResults    = 8
	defaultContextLines  = 2
	defaultMaxLineLength = 240
	ellipsis             = "…"
)

// Search performs a literal text search with small contexts, per spec.md
// §4.3. It never returns matches under the reserved namespace and never
// returns more than opts.MaxResults results.
func (f *Facade) Search(opts SearchOptions) (*SearchSummary, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	contextLines := opts.ContextLines
	if contextLines < 0 {
		contextLines = defaultContextLines
	}

	maxLineLength := opts.MaxLineLength
	if maxLineLength <= 0 {
		maxLineLength = defaultMaxLineLength
	}

	caseSensitive := opts.CaseSensitive != nil && *opts.CaseSensitive
	if opts.CaseSensitive == nil {
		caseSensitive = hasUpper(opts.Query)
	}

	prefix, err := checkNotReserved(opts.PathPrefix)
	if err != nil {
		return nil, err
	}

	if prefix == "" {
		prefix = "/"
	}

	paths, err := f.searchScope(prefix)
	if err != nil {
		return nil, err
	}

	summary := &SearchSummary{}

	query := opts.Query
	if !caseSensitive {
		query = strings.ToLower(query)
	}

	for _, path := range paths {
		if len(summary.Results) >= maxResults {
			summary.Truncated = true
			break
		}

		data, err := f.ws.ReadFile(path)
		if err != nil {
			continue
		}

		summary.ScannedFiles++

		if textsniff.IsBinary(data) {
			summary.SkippedBinaryFiles++
			continue
		}

		fileResults, truncatedHere := searchFile(path, data, query, caseSensitive, contextLines, maxLineLength, maxResults-len(summary.Results))
		if len(fileResults) > 0 {
			summary.MatchedFiles++
			summary.Results = append(summary.Results, fileResults...)
		}

		if truncatedHere {
			summary.Truncated = true
			break
		}
	}

	return summary, nil
}

// searchScope returns the sorted, ascending list of file paths to search:
// prefix itself if it is a file, or every non-reserved file beneath it if
// it is a directory.
func (f *Facade) searchScope(prefix string) ([]string, error) {
	if st, ok := f.ws.Stat(prefix); ok && st.Type == workspace.TypeFile {
		return []string{prefix}, nil
	}

	var paths []string

	dirPrefix := prefix
	if dirPrefix != "/" {
		dirPrefix += "/"
	}

	for path := range f.ws.Files() {
		if pathnorm.IsReserved(path) {
			continue
		}

		if prefix == "/" || strings.HasPrefix(path, dirPrefix) {
			paths = append(paths, path)
		}
	}

	sort.Strings(paths)

	return paths, nil
}

// searchFile scans one file's lines for query, returning up to limit
// results and whether the scan stopped early because it hit that limit.
func searchFile(path string, data []byte, query string, caseSensitive bool, contextLines, maxLineLength, limit int) ([]SearchResult, bool) {
	lines := textsniff.SplitLines(data)

	before := newRingBuffer(contextLines)

	var results []SearchResult

	i := 0
	for i < len(lines) {
		line := lines[i]
		lineNo := i + 1

		haystack := line
		if !caseSensitive {
			haystack = strings.ToLower(haystack)
		}

		if !strings.Contains(haystack, query) {
			before.push(lineNo, line)
			i++

			continue
		}

		if len(results) >= limit {
			return results, true
		}

		contextEntries := before.entries()

		var lineEntries []LineEntry
		for _, e := range contextEntries {
			lineEntries = append(lineEntries, LineEntry{LineNumber: e.num, Content: clip(e.content, maxLineLength)})
		}

		lineEntries = append(lineEntries, LineEntry{LineNumber: lineNo, Content: clip(line, maxLineLength)})

		endLine := lineNo
		for j := 1; j <= contextLines && i+j < len(lines); j++ {
			lineEntries = append(lineEntries, LineEntry{LineNumber: lineNo + j, Content: clip(lines[i+j], maxLineLength)})
			endLine = lineNo + j
		}

		startLine := lineNo
		if len(contextEntries) > 0 {
			startLine = contextEntries[0].num
		}

		results = append(results, SearchResult{
			Path:             path,
			MatchLine:        lineNo,
			ContextStartLine: startLine,
			ContextEndLine:   endLine,
			Lines:            lineEntries,
		})

		before.push(lineNo, line)
		i++
	}

	return results, false
}

func clip(s string, maxLen int) string {
	if len([]rune(s)) <= maxLen {
		return s
	}

	runes := []rune(s)

	return string(runes[:maxLen]) + ellipsis
}

func hasUpper(s string) bool {
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}

	return false
}

type ringEntry struct {
	num     int
	content string
}

// ringBuffer holds the last N "before" context lines seen during a scan.
type ringBuffer struct {
	size  int
	items []ringEntry
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{size: size}
}

func (r *ringBuffer) push(num int, content string) {
	if r.size == 0 {
		return
	}

	r.items = append(r.items, ringEntry{num: num, content: content})

	if len(r.items) > r.size {
		r.items = r.items[len(r.items)-r.size:]
	}
}

func (r *ringBuffer) entries() []ringEntry {
	return r.items
}
