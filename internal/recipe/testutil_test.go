package recipe

import (
	"testing"

	"github.com/aurcache/aurcache/internal/runner"
)

func realRunnerForTest(t *testing.T) *runner.Runner {
	t.Helper()
	return runner.New(nil)
}
