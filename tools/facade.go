// Package tools implements the Tools Facade: a thin mediator that wraps
// Workspace operations with hidden-namespace enforcement, argument
// normalization, line-oriented read/patch, and literal text search with
// small contexts. Every operation here is synchronous and returns either a
// success value or a categorized error (spec.md §7); nothing partially
// succeeds.
package tools

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/agentws/agentws/pathnorm"
	"github.com/agentws/agentws/workspace"
)

// ErrAccessDenied is returned whenever an operation targets the reserved
// "/.time" namespace.
var ErrAccessDenied = errors.New("tools: access denied")

// ErrTooLarge is returned by Read when the target file exceeds the caller's
// maxBytes limit.
var ErrTooLarge = errors.New("tools: file too large")

// ErrUnsupportedEncoding is returned when an Encoding value other than
// EncodingText or EncodingBase64 is requested.
var ErrUnsupportedEncoding = errors.New("tools: unsupported encoding")

// Encoding selects how Read/Write's content string is interpreted, per
// spec.md §4.3's fs_read(path, enc, maxBytes) / fs_write(path, content, enc,
// overwrite) contract.
type Encoding string

const (
	// EncodingText is the default: content is the literal file text.
	EncodingText Encoding = "text"
	// EncodingBase64 carries arbitrary binary content as standard base64.
	EncodingBase64 Encoding = "base64"
)

func decodeContent(content string, enc Encoding) ([]byte, error) {
	switch enc {
	case "", EncodingText:
		return []byte(content), nil
	case EncodingBase64:
		data, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 content: %w", err)
		}

		return data, nil
	default:
		return nil, fmt.Errorf("%q: %w", enc, ErrUnsupportedEncoding)
	}
}

func encodeContent(data []byte, enc Encoding) (string, error) {
	switch enc {
	case "", EncodingText:
		return string(data), nil
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		return "", fmt.Errorf("%q: %w", enc, ErrUnsupportedEncoding)
	}
}

// Facade mediates Tools Facade operations against a single Workspace.
type Facade struct {
	ws *workspace.Workspace
}

// New returns a Facade bound to ws.
func New(ws *workspace.Workspace) *Facade {
	return &Facade{ws: ws}
}

// checkNotReserved normalizes p and fails with ErrAccessDenied if it falls
// under the Time Machine's reserved namespace.
func checkNotReserved(p string) (string, error) {
	p = pathnorm.Normalize(p)
	if pathnorm.IsReserved(p) {
		return "", fmt.Errorf("%q: %w", p, ErrAccessDenied)
	}

	return p, nil
}

// Stat mirrors Workspace.Stat with reserved-namespace enforcement.
func (f *Facade) Stat(p string) (workspace.Stat, bool, error) {
	p, err := checkNotReserved(p)
	if err != nil {
		return workspace.Stat{}, false, err
	}

	st, ok := f.ws.Stat(p)

	return st, ok, nil
}

// List mirrors Workspace.List with reserved-namespace enforcement; listing
// "/" additionally elides the name ".time" so the reserved directory is
// invisible even though it technically exists in the directory set.
func (f *Facade) List(p string) ([]string, error) {
	p, err := checkNotReserved(p)
	if err != nil {
		return nil, err
	}

	names, err := f.ws.List(p)
	if err != nil {
		return nil, err
	}

	if p != "/" {
		return names, nil
	}

	filtered := names[:0:0]

	for _, n := range names {
		if n == ".time" {
			continue
		}

		filtered = append(filtered, n)
	}

	return filtered, nil
}

// Mkdir mirrors Workspace.Mkdir with reserved-namespace enforcement.
func (f *Facade) Mkdir(p string, recursive bool) error {
	p, err := checkNotReserved(p)
	if err != nil {
		return err
	}

	return f.ws.Mkdir(p, recursive)
}

// Delete mirrors Workspace.Delete with reserved-namespace enforcement.
func (f *Facade) Delete(p string) error {
	p, err := checkNotReserved(p)
	if err != nil {
		return err
	}

	return f.ws.Delete(p)
}

// Write decodes content per enc (EncodingText: literal; EncodingBase64:
// standard base64) and writes the resulting bytes to p, with
// reserved-namespace enforcement.
func (f *Facade) Write(p string, content string, enc Encoding, overwrite bool) error {
	p, err := checkNotReserved(p)
	if err != nil {
		return err
	}

	data, err := decodeContent(content, enc)
	if err != nil {
		return err
	}

	return f.ws.WriteFile(p, data, overwrite)
}

// Read returns the content at p encoded per enc (EncodingText: literal;
// EncodingBase64: standard base64), failing with ErrTooLarge if the file
// exceeds maxBytes (maxBytes <= 0 means unlimited).
func (f *Facade) Read(p string, enc Encoding, maxBytes int64) (string, error) {
	data, err := f.readBytes(p, maxBytes)
	if err != nil {
		return "", err
	}

	return encodeContent(data, enc)
}

// readBytes is the raw byte-level read used internally by operations (line
// splitting, patching) that always work in terms of text regardless of the
// encoding a caller asked fs_read/fs_write for.
func (f *Facade) readBytes(p string, maxBytes int64) ([]byte, error) {
	p, err := checkNotReserved(p)
	if err != nil {
		return nil, err
	}

	data, err := f.ws.ReadFile(p)
	if err != nil {
		return nil, err
	}

	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("reading %q (%d bytes > %d): %w", p, len(data), maxBytes, ErrTooLarge)
	}

	return data, nil
}

// writeBytes is the raw byte-level write used internally by PatchLines,
// which always operates on decoded text lines rather than a caller-supplied
// encoding.
func (f *Facade) writeBytes(p string, content []byte, overwrite bool) error {
	p, err := checkNotReserved(p)
	if err != nil {
		return err
	}

	return f.ws.WriteFile(p, content, overwrite)
}
