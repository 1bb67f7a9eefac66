package workspace

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/agentws/agentws/pathnorm"
)

// ImportZip replaces the workspace's entire state with the contents of buf,
// a standard ZIP archive whose member names are workspace paths without the
// leading slash. Directory ancestors are synthesized from each file's path;
// empty directories are not preserved by a round trip since ZIP member names
// here are file paths only.
func (w *Workspace) ImportZip(buf []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return fmt.Errorf("importing zip: %w: %v", ErrCorruptArchive, err)
	}

	files := make(map[string][]byte, len(reader.File))
	dirs := map[string]struct{}{"/": {}}

	for _, zf := range reader.File {
		if zf.FileInfo().IsDir() {
			continue
		}

		p := pathnorm.Normalize(zf.Name)

		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("importing zip: reading %q: %w: %v", zf.Name, ErrCorruptArchive, err)
		}

		data, err := io.ReadAll(rc)
		_ = rc.Close()

		if err != nil {
			return fmt.Errorf("importing zip: reading %q: %w: %v", zf.Name, ErrCorruptArchive, err)
		}

		files[p] = data

		dir := pathnorm.Dirname(p)
		for {
			if _, ok := dirs[dir]; ok {
				break
			}

			dirs[dir] = struct{}{}

			if dir == "/" {
				break
			}

			dir = pathnorm.Dirname(dir)
		}
	}

	w.files = files
	w.dirs = dirs

	return nil
}

// ExportZipBuffer serializes the workspace's files (directories are
// implicit in file paths and are not separately emitted) into a standard
// ZIP archive.
func (w *Workspace) ExportZipBuffer() ([]byte, error) {
	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	for _, p := range paths {
		member := p[1:] // strip leading "/"

		fw, err := zw.Create(member)
		if err != nil {
			return nil, fmt.Errorf("exporting zip: creating %q: %w", member, err)
		}

		if _, err := fw.Write(w.files[p]); err != nil {
			return nil, fmt.Errorf("exporting zip: writing %q: %w", member, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("exporting zip: %w", err)
	}

	return buf.Bytes(), nil
}
