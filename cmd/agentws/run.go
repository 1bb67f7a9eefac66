package main

import (
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/agentws/agentws/internal/metrics"
	"github.com/agentws/agentws/session"
)

// sandboxRunSubcommand must match session.sandboxRunSubcommand; it is not
// exported, so this is the one place the string is duplicated rather than
// imported.
const sandboxRunSubcommand = "__sandbox-run"

// Run is the CLI's isolated entry point: no direct access to os.Stdin et
// al, so tests can drive it with in-memory streams. Returns the process
// exit code.
func Run(stdin io.Reader, stdout, stderr io.Writer, args []string, env map[string]string) int {
	if len(args) > 1 && args[1] == sandboxRunSubcommand {
		return session.RunChild(stdin, stdout)
	}

	flags := flag.NewFlagSet("agentws", flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {}
	flags.SetOutput(&strings.Builder{})

	flags.String("workspace", "", "path to the workspace ZIP file")
	flagConfig := flags.String("config", "", "path to a JSONC config file")
	flags.Int("timeout-ms", 0, "default js_exec wall-clock timeout in milliseconds")
	flags.String("metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	flagHelp := flags.BoolP("help", "h", false, "show help")

	if err := flags.Parse(args[1:]); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	rest := flags.Args()

	if *flagHelp || len(rest) == 0 {
		printUsage(stdout)
		return 0
	}

	cfg, err := LoadConfig(LoadConfigInput{ConfigPath: *flagConfig, EnvVars: env, CLIFlags: flags})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	var metricsRegistry *metrics.Metrics
	if cfg.MetricsAddr != "" {
		metricsRegistry = metrics.New()
		go serveMetrics(cfg.MetricsAddr, metricsRegistry, stderr)
	}

	sess, err := session.Open(cfg.WorkspacePath, session.WithMetrics(metricsRegistry))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	return dispatch(sess, cfg, rest, stdout, stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `agentws: a portable agent workspace

Usage:
  agentws [--workspace path] [--config path] <command> [args...]

Commands:
  fs-read <path> [enc]
  fs-read-lines <path> <start> <end>
  fs-write <path> <-|content> [enc]
  fs-patch-lines <path> <start> <end> <-|replacement>
  fs-list <path>
  fs-stat <path>
  fs-mkdir <path> [-p]
  fs-delete <path>
  fs-search <pattern> [path]
  exec <entryPath> [-- argv...]
  history
  diff <entryId>
  undo [steps]
  redo [steps]
  restore <entryId>
`)
}

func serveMetrics(addr string, m *metrics.Metrics, stderr io.Writer) {
	mux := newMetricsMux(m)

	if err := listenAndServe(addr, mux); err != nil {
		fmt.Fprintf(stderr, "metrics server stopped: %v\n", err)
	}
}
