package recipe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aurcache/aurcache/internal/runner"
)

// shellEvalTimeout bounds the bounded subprocess spec.md §4.3 mandates.
const shellEvalTimeout = 10 * time.Second

// wrapperScript sources the recipe under `set -euo pipefail` and echoes a
// well-formed KEY=value line per target variable, expanding arrays with
// [@].
const wrapperScript = `set -euo pipefail
source "$1"
for key in %s; do
	val="${!key-}"
	if [[ "$(declare -p "$key" 2>/dev/null)" == "declare -a"* ]]; then
		eval "vals=(\"\${$key[@]}\")"
		printf '%%s=(' "$key"
		printf '%%s ' "${vals[@]}" 2>/dev/null || true
		printf ')\n'
	else
		printf '%%s=%%s\n' "$key" "$val"
	fi
done
`

// shellEval implements spec.md §4.3's strategy 1: write the recipe to a
// temp file, source it under bash, echo each target variable. Any failure
// (non-zero exit, timeout, malformed output) is the caller's cue to fall
// back to the line scan.
func shellEval(ctx context.Context, r *runner.Runner, name string, data []byte, now time.Time) (*Record, error) {
	dir, err := os.MkdirTemp("", "aurcache-recipe-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	recipePath := filepath.Join(dir, "PKGBUILD")
	if err := os.WriteFile(recipePath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write recipe: %w", err)
	}

	keys := append(append([]string{}, scalarKeys...), arrayKeys...)
	script := fmt.Sprintf(wrapperScript, strings.Join(keys, " "))

	result, err := r.Run(ctx, "bash", []string{"-c", script, "bash", recipePath}, runner.WithTimeout(shellEvalTimeout))
	if err != nil {
		return nil, fmt.Errorf("shell-eval recipe %s: %w", name, err)
	}
	if !result.OK {
		return nil, fmt.Errorf("shell-eval recipe %s: exit %d: %s", name, result.ExitCode, result.Stderr)
	}

	return parseEchoedLines(name, result.Stdout, now)
}

func parseEchoedLines(name string, output []byte, now time.Time) (*Record, error) {
	values := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		values[line[:idx]] = line[idx+1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan shell-eval output: %w", err)
	}

	rec := newDefaultRecord(name, now)

	pkgbase := stripQuotes(values["pkgbase"])
	if pkgbase == "" {
		pkgbase = name
	}
	rec.PackageBase = pkgbase
	rec.Version = versionOf(stripQuotes(values["pkgver"]), stripQuotes(values["pkgrel"]))

	if v := stripQuotes(values["pkgdesc"]); v != "" {
		rec.Description = v
	}
	if v := stripQuotes(values["url"]); v != "" {
		rec.URL = v
	}
	if v := stripQuotes(values["maintainer"]); v != "" {
		rec.Maintainer = v
	}

	rec.License = arrayValue(values["license"])
	rec.Depends = arrayValue(values["depends"])
	rec.MakeDepends = arrayValue(values["makedepends"])
	rec.Conflicts = arrayValue(values["conflicts"])
	rec.Provides = arrayValue(values["provides"])
	rec.Replaces = arrayValue(values["replaces"])
	rec.Keywords = arrayValue(values["keywords"])

	return rec, nil
}
