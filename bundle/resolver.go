package bundle

import (
	"fmt"
	"path"
	"strings"

	"github.com/agentws/agentws/pathnorm"
	"github.com/agentws/agentws/workspace"
	"github.com/evanw/esbuild/pkg/api"
)

const (
	nsWorkspace = "agentws-ws"
	nsShim      = "agentws-shim"
)

// candidateSuffixes is the fixed extension/index resolution order from
// spec.md §4.5: exact match first, then these extensions, then index.* in
// the same extension order.
var candidateSuffixes = []string{"", ".ts", ".tsx", ".js", ".mjs", ".cjs", ".json"}

// workspaceResolver implements the §4.5 resolution order against ws: shim
// names, relative specifiers, absolute-in-workspace specifiers, the fixed
// denylist, then a bundler error for everything else. It never touches the
// host filesystem.
type workspaceResolver struct {
	ws *workspace.Workspace
}

func (r *workspaceResolver) plugin() api.Plugin {
	return api.Plugin{
		Name: "agentws-workspace",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, r.onResolve)
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: nsWorkspace}, r.onLoadWorkspace)
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: nsShim}, r.onLoadShim)
		},
	}
}

func (r *workspaceResolver) onResolve(args api.OnResolveArgs) (api.OnResolveResult, error) {
	spec := args.Path

	if _, ok := shimSources[spec]; ok {
		return api.OnResolveResult{Path: spec, Namespace: nsShim}, nil
	}

	switch {
	case strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../"):
		importerDir := pathnorm.Dirname(args.Importer)
		resolved := path.Join(importerDir, spec)

		return r.resolveInWorkspace(resolved, spec, args.Importer)

	case strings.HasPrefix(spec, "/") || strings.HasPrefix(spec, "~/"):
		return r.resolveInWorkspace(pathnorm.Normalize(spec), spec, args.Importer)
	}

	if denylist[spec] {
		return api.OnResolveResult{}, fmt.Errorf("%w: %q imported by %q (denylisted capability)", ErrBundleFailure, spec, args.Importer)
	}

	return api.OnResolveResult{}, fmt.Errorf("%w: cannot resolve %q imported by %q", ErrBundleFailure, spec, args.Importer)
}

// resolveInWorkspace applies the extension/index search order against a
// normalized workspace path, returning a bundler error naming both the
// specifier and importer on total failure.
func (r *workspaceResolver) resolveInWorkspace(normalized, originalSpec, importer string) (api.OnResolveResult, error) {
	if hit, ok := r.firstExisting(normalized); ok {
		return api.OnResolveResult{Path: hit, Namespace: nsWorkspace}, nil
	}

	indexBase := strings.TrimSuffix(normalized, "/") + "/index"
	if hit, ok := r.firstExisting(indexBase); ok {
		return api.OnResolveResult{Path: hit, Namespace: nsWorkspace}, nil
	}

	return api.OnResolveResult{}, fmt.Errorf("%w: cannot resolve %q imported by %q", ErrBundleFailure, originalSpec, importer)
}

func (r *workspaceResolver) firstExisting(base string) (string, bool) {
	for _, suffix := range candidateSuffixes {
		candidate := base + suffix
		if st, ok := r.ws.Stat(candidate); ok && st.Type == workspace.TypeFile {
			return candidate, true
		}
	}

	return "", false
}

func (r *workspaceResolver) onLoadWorkspace(args api.OnLoadArgs) (api.OnLoadResult, error) {
	data, err := r.ws.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, fmt.Errorf("%w: reading %q: %v", ErrBundleFailure, args.Path, err)
	}

	contents := string(data)
	loader := loaderFor(args.Path)

	return api.OnLoadResult{Contents: &contents, Loader: loader}, nil
}

func (r *workspaceResolver) onLoadShim(args api.OnLoadArgs) (api.OnLoadResult, error) {
	src, ok := shimSources[args.Path]
	if !ok {
		return api.OnLoadResult{}, fmt.Errorf("%w: unknown shim %q", ErrBundleFailure, args.Path)
	}

	return api.OnLoadResult{Contents: &src, Loader: api.LoaderJS}, nil
}

func loaderFor(p string) api.Loader {
	switch {
	case strings.HasSuffix(p, ".ts"):
		return api.LoaderTS
	case strings.HasSuffix(p, ".tsx"):
		return api.LoaderTSX
	case strings.HasSuffix(p, ".json"):
		return api.LoaderJSON
	default:
		return api.LoaderJS
	}
}
