package bundle

// denylist is the fixed set of capability-bearing bare specifiers rejected
// at the bundler boundary as defense-in-depth, even though none of them
// would resolve via the shim or workspace rules anyway.
var denylist = map[string]bool{
	"process":             true,
	"child_process":       true,
	"node:child_process":  true,
	"worker_threads":      true,
	"node:worker_threads": true,
	"inspector":           true,
	"node:inspector":      true,
	"net":                 true,
	"node:net":            true,
	"dgram":               true,
	"node:dgram":          true,
	"dns":                 true,
	"node:dns":            true,
	"http":                true,
	"node:http":           true,
	"https":               true,
	"node:https":          true,
	"cluster":             true,
	"node:cluster":        true,
	"vm":                  true,
	"node:vm":             true,
}
