package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/dsl"
	"github.com/stretchr/testify/require"
)

// WriteFiles writes files below dir, creating parent directories.
// Names use forward slashes. It fails the test immediately on error.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// Scenario builds the reference corpus: task T1 uses semantic S1, which
// uses primitive P1. Generating T1 with topic "tests" yields
// "Task: Be concise. Focus: tests".
func Scenario(t *testing.T) *memory.Store {
	t.Helper()
	b := dsl.New()
	ScenarioRules(b)
	store, err := b.Build()
	require.NoError(t, err)
	return store
}

// ScenarioRules declares the reference corpus on b, so tests can extend it.
func ScenarioRules(b *dsl.Builder) {
	b.Primitive("P1").Category("instruction").Content("Be concise.")
	b.Semantic("S1").Category("generation").Content("{{ primitive_rules }} Focus: {{ topic }}").Uses("P1")
	b.Task("T1").Content("Task: {{ semantic_rules }}").Uses("S1")
}
