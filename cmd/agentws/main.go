// Command agentws is a portable agent workspace: a single ZIP-backed POSIX
// filesystem with undo/redo history and a constrained JS/TS execution
// sandbox, operated entirely through this CLI.
package main

import (
	"os"
)

func main() {
	os.Exit(Run(os.Stdin, os.Stdout, os.Stderr, os.Args, envMap(os.Environ())))
}

func envMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))

	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}

	return env
}
