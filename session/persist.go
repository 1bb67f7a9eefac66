package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// atomicWrite implements the teacher-style atomic write: write to a
// temporary sibling path, then rename over the destination; on platforms
// that refuse a rename over an existing file, delete the destination and
// retry once.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".agentws-*.tmp")
	if err != nil {
		return fmt.Errorf("session: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)

		return fmt.Errorf("session: writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("session: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if removeErr := os.Remove(path); removeErr == nil {
			if retryErr := os.Rename(tmpPath, path); retryErr == nil {
				return nil
			}
		}

		_ = os.Remove(tmpPath)

		return fmt.Errorf("session: renaming temp file into place: %w", err)
	}

	return nil
}
