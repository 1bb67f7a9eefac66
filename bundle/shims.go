package bundle

import _ "embed"

//go:embed shims/fs.js
var fsShimSource string

//go:embed shims/os.js
var osShimSource string

//go:embed shims/path.js
var pathShimSource string

// shimSources maps a shim's specifier, bare or "node:"-prefixed, to its
// embedded module source (spec.md §4.5: "fs, os, path, with an optional
// platform prefix equivalent"), mirroring denylist's bare/"node:" pairing.
var shimSources = map[string]string{
	"fs":        fsShimSource,
	"node:fs":   fsShimSource,
	"os":        osShimSource,
	"node:os":   osShimSource,
	"path":      pathShimSource,
	"node:path": pathShimSource,
}
