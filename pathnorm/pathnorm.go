// Package pathnorm canonicalizes user-supplied paths into the single POSIX
// absolute form the rest of agentws assumes internally.
//
// Every interface boundary (Workspace, Tools Facade, VFS Shims) normalizes
// its path arguments through this package before touching workspace state;
// internal code may assume any path it receives is already canonical.
package pathnorm

import (
	"errors"
	"strings"
)

// ErrNotAString is returned by Normalize when given a non-string input.
//
// Normalize's signature is string, so this only matters for callers that
// type-assert an interface{} before calling it (e.g. a JSON-decoded tool
// argument); it exists so those callers have a sentinel to compare against.
var ErrNotAString = errors.New("pathnorm: path is not a string")

// Reserved is the path prefix under which the Time Machine keeps its
// persistent state. It and everything beneath it must behave, from every
// caller's perspective except the Time Machine itself, as if it does not
// exist.
const Reserved = "/.time"

// NormalizeAny normalizes v as a path after asserting it is a string.
// Use this at boundaries that receive untyped tool arguments; use Normalize
// directly when the input is already a Go string.
func NormalizeAny(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", ErrNotAString
	}

	return Normalize(s), nil
}

// Normalize canonicalizes p into a single POSIX absolute form rooted at "/".
//
// Rules, applied in order:
//  1. platform backslashes are translated to forward slashes
//  2. "~" and "~/..." are treated as aliases for "/" and "/..."
//  3. a leading "/" is prepended if missing
//  4. "." segments are collapsed and ".." segments are resolved without
//     escaping root (leading ".." segments are discarded once at root)
//  5. trailing slashes are stripped, except for the root itself
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")

	switch {
	case p == "~":
		p = "/"
	case strings.HasPrefix(p, "~/"):
		p = "/" + p[2:]
	case !strings.HasPrefix(p, "/"):
		p = "/" + p
	}

	segments := strings.Split(p, "/")
	stack := make([]string, 0, len(segments))

	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}

	if len(stack) == 0 {
		return "/"
	}

	return "/" + strings.Join(stack, "/")
}

// IsReserved reports whether p (already normalized) falls under the Time
// Machine's reserved namespace.
func IsReserved(p string) bool {
	return p == Reserved || strings.HasPrefix(p, Reserved+"/")
}

// Dirname returns the normalized parent directory of p.
func Dirname(p string) string {
	p = Normalize(p)
	if p == "/" {
		return "/"
	}

	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}

	return p[:idx]
}

// Basename returns the final path segment of p, or "/" for the root.
func Basename(p string) string {
	p = Normalize(p)
	if p == "/" {
		return "/"
	}

	idx := strings.LastIndex(p, "/")

	return p[idx+1:]
}

// Join normalizes every argument and joins them as POSIX path segments,
// then re-normalizes the result.
func Join(base string, parts ...string) string {
	base = Normalize(base)

	all := make([]string, 0, len(parts)+1)
	all = append(all, strings.TrimPrefix(base, "/"))

	for _, part := range parts {
		all = append(all, strings.TrimPrefix(Normalize(part), "/"))
	}

	joined := "/" + strings.Join(all, "/")

	return Normalize(joined)
}
