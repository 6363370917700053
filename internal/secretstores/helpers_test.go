package secretstores

import (
	"fmt"
	"sync"
	"testing"

	"github.com/systmms/passup/internal/prompt"
	"github.com/systmms/passup/tests/testutil"
)

// counterGenerator hands out "rotated-1", "rotated-2", ...
type counterGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *counterGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("rotated-%d", g.n), nil
}

func testOptions(t *testing.T, path string, answers ...string) (Options, *prompt.Sequence, *testutil.TestLogger) {
	t.Helper()
	prompter := prompt.NewSequence(answers...)
	logger := testutil.NewTestLogger(t)
	return Options{
		Name:      "test",
		Path:      path,
		Prompter:  prompter,
		Generator: &counterGenerator{},
		Logger:    logger.Logger,
	}, prompter, logger
}
