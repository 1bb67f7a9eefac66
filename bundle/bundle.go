// Package bundle implements the Bundler: it resolves a guest entry module
// and everything it transitively imports against a workspace plus a fixed
// set of VFS shims, and compiles the result into a single self-contained
// CommonJS blob the Executor can run. No host filesystem path ever reaches
// esbuild; every OnLoad is served from the workspace or an embedded shim.
package bundle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentws/agentws/pathnorm"
	"github.com/agentws/agentws/workspace"
	"github.com/evanw/esbuild/pkg/api"
)

// ErrBundleFailure is returned for any unresolved import, blocked
// specifier, or missing entry module.
var ErrBundleFailure = errors.New("bundle: bundle failure")

// Result is the outcome of a successful Build.
type Result struct {
	// Code is the bundled CommonJS source, ready to be wrapped in the
	// (require, module, exports) entry trio by the Executor.
	Code string
}

// Build resolves entryPath within ws and compiles it and its transitive
// imports into a single CommonJS blob.
func Build(ws *workspace.Workspace, entryPath string) (*Result, error) {
	entryPath = pathnorm.Normalize(entryPath)

	r := &workspaceResolver{ws: ws}

	resolvedEntry, ok := r.firstExisting(entryPath)
	if !ok {
		return nil, fmt.Errorf("%w: entry %q not found", ErrBundleFailure, entryPath)
	}

	result := api.Build(api.BuildOptions{
		EntryPoints: []string{resolvedEntry},
		Bundle:      true,
		Write:       false,
		Format:      api.FormatCommonJS,
		Platform:    api.PlatformNeutral,
		Plugins:     []api.Plugin{r.plugin()},
		LogLevel:    api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrBundleFailure, formatBuildErrors(result.Errors))
	}

	if len(result.OutputFiles) == 0 {
		return nil, fmt.Errorf("%w: no output produced for %q", ErrBundleFailure, entryPath)
	}

	return &Result{Code: string(result.OutputFiles[0].Contents)}, nil
}

func formatBuildErrors(msgs []api.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Text)
	}

	return strings.Join(parts, "; ")
}
