package tui

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintReport(t *testing.T) {
	report := &domain.Report{
		Valid:    false,
		Errors:   []string{"Duplicate task rule name: 'pr' (2 occurrences)"},
		Warnings: []string{"Unused primitive rule: 'bullets' (id 2)"},
		Order:    []string{"content_integrity", "duplicate_names"},
		Checks: map[string]domain.CheckResult{
			"content_integrity": {Name: "content_integrity", Description: "Rule content validation", Valid: true},
			"duplicate_names":   {Name: "duplicate_names", Description: "Duplicate name validation", Count: 1},
		},
	}

	var buf bytes.Buffer
	PrintReport(&buf, report, termenv.Ascii)
	out := buf.String()

	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "PASS  content_integrity"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "FAIL  duplicate_names"), lines[1])
	assert.Contains(t, lines[1], "(1)")
	assert.Contains(t, out, "FAIL  Duplicate task rule name: 'pr' (2 occurrences)")
	assert.Contains(t, out, "WARN  Unused primitive rule: 'bullets' (id 2)")
	assert.Contains(t, out, "corpus has 1 error(s)")

	buf.Reset()
	PrintReport(&buf, &domain.Report{Valid: true}, termenv.Ascii)
	assert.Equal(t, "\nPASS corpus is valid\n", buf.String())
}

func TestRendererAndBanner(t *testing.T) {
	render, err := NewRenderer()
	require.NoError(t, err)
	out, err := render("# Review\n\nBe concise.")
	require.NoError(t, err)
	assert.Contains(t, out, "Be concise.")

	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|___/")

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTerminal(f))
}
