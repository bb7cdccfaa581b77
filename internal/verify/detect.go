package verify

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DetectCommands inspects a project root and returns the shell words for
// its build, test, lint, and type-check commands, defaulting to the
// project's own toolchain conventions. Go projects get `go vet` as both
// the lint and type-check criterion unless a golangci-lint config is
// present, in which case lint upgrades to it; Node projects are read from
// package.json scripts.
func DetectCommands(rootDir string) (build, test, lint, typeCheck []string) {
	if fileExists(filepath.Join(rootDir, "go.mod")) {
		build = []string{"go", "build", "./..."}
		test = []string{"go", "test", "./..."}
		typeCheck = []string{"go", "vet", "./..."}
		lint = []string{"go", "vet", "./..."}
		if fileExists(filepath.Join(rootDir, ".golangci.yml")) || fileExists(filepath.Join(rootDir, ".golangci.yaml")) {
			lint = []string{"golangci-lint", "run"}
		}
		return build, test, lint, typeCheck
	}

	if fileExists(filepath.Join(rootDir, "package.json")) {
		runner := "npm"
		runArgs := []string{"run"}
		switch {
		case fileExists(filepath.Join(rootDir, "pnpm-lock.yaml")):
			runner = "pnpm"
		case fileExists(filepath.Join(rootDir, "yarn.lock")):
			runner = "yarn"
		case fileExists(filepath.Join(rootDir, "bun.lockb")):
			runner = "bun"
			runArgs = []string{"run"}
		}
		scripts := readPackageScripts(rootDir)
		build = scriptCommand(runner, runArgs, scripts, "build", "compile")
		test = scriptCommand(runner, runArgs, scripts, "test", "test:unit")
		lint = scriptCommand(runner, runArgs, scripts, "lint", "eslint")
		typeCheck = scriptCommand(runner, runArgs, scripts, "typecheck", "type-check")
		return build, test, lint, typeCheck
	}

	if fileExists(filepath.Join(rootDir, "Makefile")) {
		targets := parseMakefileTargets(rootDir)
		build = makeCommand(targets, "build", "all")
		test = makeCommand(targets, "test", "check")
		lint = makeCommand(targets, "lint", "vet")
		return build, test, lint, nil
	}

	return nil, nil, nil, nil
}

func readPackageScripts(rootDir string) map[string]string {
	data, err := os.ReadFile(filepath.Join(rootDir, "package.json"))
	if err != nil {
		return nil
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil
	}
	return pkg.Scripts
}

func scriptCommand(runner string, runArgs []string, scripts map[string]string, names ...string) []string {
	for _, n := range names {
		if _, ok := scripts[n]; ok {
			if runner == "npm" {
				return append(append([]string{runner}, runArgs...), n)
			}
			return []string{runner, n}
		}
	}
	return nil
}

func makeCommand(targets []string, names ...string) []string {
	for _, n := range names {
		if contains(targets, n) {
			return []string{"make", n}
		}
	}
	return nil
}

func parseMakefileTargets(rootDir string) []string {
	f, err := os.Open(filepath.Join(rootDir, "Makefile"))
	if err != nil {
		return nil
	}
	defer f.Close()

	var targets []string
	targetRegex := regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_-]*):`)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := targetRegex.FindStringSubmatch(scanner.Text()); len(m) > 1 && !strings.HasPrefix(m[1], ".") {
			targets = append(targets, m[1])
		}
	}
	return targets
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
