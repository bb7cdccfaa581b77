// Command autonoma drives one orchestration run: start a fresh one,
// resume an interrupted one, adopt an existing project, or query a
// running one's status.json. The command tree itself is deliberately
// thin — a CLI dispatcher is out of scope here, so subcommands are
// parsed by hand rather than pulling in a command framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kream0/autonoma-sub001/internal/config"
	"github.com/kream0/autonoma-sub001/internal/orchestrator"
	"github.com/kream0/autonoma-sub001/internal/version"
)

const (
	exitComplete = 0
	exitFailed   = 1
	exitTimeout  = 2
	exitBlocked  = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("autonoma", flag.ContinueOnError)
	showVersion := fs.Bool("version", false, "print version information and exit")
	timeout := fs.Duration("timeout", 0, "abort the run and exit 2 if it has not reached a terminal phase within this duration (0 disables)")
	sessionID := fs.String("session", "default", "session id scoping this run's database tables")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: autonoma [flags] <start|resume|adopt|status> [args...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitFailed
	}

	if *showVersion {
		fmt.Println(version.Full())
		return exitComplete
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return exitFailed
	}

	cmd, rest := rest[0], rest[1:]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "autonoma: loading configuration: %v\n", err)
		return exitFailed
	}
	if err := cfg.ValidateForRun(); err != nil {
		fmt.Fprintf(os.Stderr, "autonoma: invalid configuration: %v\n", err)
		return exitFailed
	}

	if cmd == "status" {
		return runStatus(cfg.Project.WorkingDir)
	}

	o, err := orchestrator.New(cfg, cfg.Project.WorkingDir, *sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autonoma: %v\n", err)
		return exitFailed
	}
	defer o.Close(context.Background())

	ctx := context.Background()
	var cancel context.CancelFunc
	var effectiveTimeout time.Duration = *timeout
	if effectiveTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, effectiveTimeout)
		defer cancel()
	}

	switch cmd {
	case "start":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "usage: autonoma start <requirements-path>")
			return exitFailed
		}
		err = o.Start(ctx, rest[0])
	case "resume":
		err = o.Resume(ctx)
	case "adopt":
		if len(rest) < 1 {
			fmt.Fprintln(os.Stderr, "usage: autonoma adopt <requirements-path> [context-file...]")
			return exitFailed
		}
		err = o.Adopt(ctx, rest[0], rest[1:])
	default:
		fmt.Fprintf(os.Stderr, "autonoma: unknown command %q\n", cmd)
		fs.Usage()
		return exitFailed
	}

	return exitCodeFor(ctx, o, err)
}

// exitCodeFor maps a finished run's outcome to the spec's exit-code
// contract: a context deadline takes priority (2), an unresolved
// human-queue escalation at exit means the run is blocked on a human
// (3), any other error means the phase itself failed (1), and a clean
// return with no error means the run reached "complete" (0).
func exitCodeFor(ctx context.Context, o *orchestrator.Orchestrator, runErr error) int {
	if ctx.Err() == context.DeadlineExceeded {
		return exitTimeout
	}
	if runErr != nil {
		if o.HasUnresolvedHumanQueue() {
			return exitBlocked
		}
		return exitFailed
	}
	return exitComplete
}

func runStatus(workDir string) int {
	data, err := os.ReadFile(workDir + "/.autonoma/status.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "autonoma: reading status.json: %v\n", err)
		return exitFailed
	}
	fmt.Println(string(data))
	return exitComplete
}
