package recipe

import (
	"context"
	"log/slog"
	"time"

	"github.com/aurcache/aurcache/internal/runner"
)

// Parser extracts Records from build recipes, trying shell evaluation
// first (if enabled) and falling back to a line scan.
type Parser struct {
	runner    *runner.Runner
	shellEval bool
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Parser. shellEval opts into the shell-evaluation strategy;
// per spec.md §9's recommendation, the line-scan path is the default and
// shell-eval is explicitly opt-in.
func New(r *runner.Runner, shellEval bool, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{runner: r, shellEval: shellEval, now: time.Now, logger: logger}
}

// Parse extracts a Record from a recipe's raw bytes.
func (p *Parser) Parse(ctx context.Context, name string, data []byte) *Record {
	now := p.now()

	if p.shellEval {
		rec, err := shellEval(ctx, p.runner, name, data, now)
		if err == nil {
			return rec
		}
		p.logger.Debug("shell-eval recipe parse failed, falling back to line scan", "package", name, "err", err)
	}

	return lineScan(name, data, now)
}
