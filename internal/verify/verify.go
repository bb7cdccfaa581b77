// Package verify implements the Verifier: running a project's build,
// test, lint, and type-check commands with independent timeouts and
// reporting pass/fail plus captured output per criterion.
package verify

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// Criterion identifies one verification check.
type Criterion string

const (
	CriterionBuild     Criterion = "build_succeeds"
	CriterionTest      Criterion = "tests_pass"
	CriterionLint      Criterion = "lint_clean"
	CriterionTypeCheck Criterion = "types_check"
)

// Default per-criterion timeouts.
const (
	DefaultTypeCheckTimeout = 60 * time.Second
	DefaultBuildTimeout     = 180 * time.Second
	DefaultTestTimeout      = 300 * time.Second
	DefaultLintTimeout      = 60 * time.Second
)

// Check is one configured verification command: what to run, how long to
// give it, and whether a failure blocks the task (Required) or is merely
// surfaced to the next reviewing agent (advisory).
type Check struct {
	Criterion Criterion
	Command   []string
	Timeout   time.Duration
	Required  bool
}

// Result is the outcome of running a single Check.
type Result struct {
	Criterion Criterion
	Passed    bool
	Required  bool
	TimedOut  bool
	ExitCode  int
	Output    string
	Duration  time.Duration
}

// Report aggregates every Check's Result for one verification pass.
type Report struct {
	Results []Result
}

// Passed reports whether every required check passed. Advisory checks
// never block this.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if res.Required && !res.Passed {
			return false
		}
	}
	return true
}

// Failed returns the required checks that did not pass, in run order.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Required && !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// StandardChecks builds the four criteria a default verification pass
// expects, sourced from a build-system detection (commands and
// whether Go's vet/lint/type-check are collapsed into one toolchain
// call), with the default timeouts and required=true for build+tests,
// required=false (advisory) for lint.
func StandardChecks(buildCmd, testCmd, lintCmd, typeCheckCmd []string) []Check {
	var checks []Check
	if len(typeCheckCmd) > 0 {
		checks = append(checks, Check{CriterionTypeCheck, typeCheckCmd, DefaultTypeCheckTimeout, true})
	}
	if len(buildCmd) > 0 {
		checks = append(checks, Check{CriterionBuild, buildCmd, DefaultBuildTimeout, true})
	}
	if len(testCmd) > 0 {
		checks = append(checks, Check{CriterionTest, testCmd, DefaultTestTimeout, true})
	}
	if len(lintCmd) > 0 {
		checks = append(checks, Check{CriterionLint, lintCmd, DefaultLintTimeout, false})
	}
	return checks
}

// Verifier runs a configured set of Checks against a working directory.
type Verifier struct {
	WorkDir string
	Checks  []Check
}

// New constructs a Verifier over the given working directory and checks.
func New(workDir string, checks []Check) *Verifier {
	return &Verifier{WorkDir: workDir, Checks: checks}
}

// Run executes every configured Check in order, each under its own
// timeout derived from ctx, and returns the aggregate Report. A later
// check still runs even if an earlier required one failed — the caller
// sees every criterion's status, not just the first failure.
func (v *Verifier) Run(ctx context.Context) *Report {
	report := &Report{Results: make([]Result, 0, len(v.Checks))}
	for _, c := range v.Checks {
		report.Results = append(report.Results, v.runOne(ctx, c))
	}
	return report
}

func (v *Verifier) runOne(ctx context.Context, c Check) Result {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultBuildTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res := Result{Criterion: c.Criterion, Required: c.Required}

	if len(c.Command) == 0 {
		res.Passed = true
		res.Duration = time.Since(start)
		return res
	}

	cmd := exec.CommandContext(runCtx, c.Command[0], c.Command[1:]...)
	cmd.Dir = v.WorkDir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Output = buf.String()

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.Passed = false
		return res
	}
	if err == nil {
		res.Passed = true
		return res
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
	}
	res.Passed = false
	return res
}
