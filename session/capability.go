package session

import (
	"errors"

	"github.com/agentws/agentws/pathnorm"
	"github.com/agentws/agentws/workspace"
)

// errReservedPath is surfaced to guest code as a thrown JS exception when it
// touches the reserved namespace, matching spec.md §4.6: reads behave as
// nonexistent, mutations are denied.
var errReservedPath = errors.New("access denied: reserved path")

// wsCapability adapts a *workspace.Workspace to exec.Capability, enforcing
// the reserved-namespace policy at the capability boundary rather than
// inside the guest-visible shim modules.
type wsCapability struct {
	ws *workspace.Workspace
}

func (c *wsCapability) ReadFile(p string) ([]byte, error) {
	p = pathnorm.Normalize(p)
	if pathnorm.IsReserved(p) {
		return nil, workspace.ErrNotFound
	}

	return c.ws.ReadFile(p)
}

func (c *wsCapability) WriteFile(p string, data []byte) error {
	p = pathnorm.Normalize(p)
	if pathnorm.IsReserved(p) {
		return errReservedPath
	}

	return c.ws.WriteFile(p, data, true)
}

func (c *wsCapability) Readdir(p string) ([]string, error) {
	p = pathnorm.Normalize(p)
	if pathnorm.IsReserved(p) {
		return nil, workspace.ErrNotFound
	}

	names, err := c.ws.List(p)
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

func (c *wsCapability) Stat(p string) (string, int64, bool) {
	p = pathnorm.Normalize(p)
	if pathnorm.IsReserved(p) {
		return "", 0, false
	}

	st, ok := c.ws.Stat(p)
	if !ok {
		return "", 0, false
	}

	if st.Type == workspace.TypeDir {
		return "dir", 0, true
	}

	return "file", st.Size, true
}

func (c *wsCapability) Mkdir(p string, recursive bool) error {
	p = pathnorm.Normalize(p)
	if pathnorm.IsReserved(p) {
		return errReservedPath
	}

	return c.ws.Mkdir(p, recursive)
}

func (c *wsCapability) DeletePath(p string) error {
	p = pathnorm.Normalize(p)
	if pathnorm.IsReserved(p) {
		return errReservedPath
	}

	return c.ws.Delete(p)
}
