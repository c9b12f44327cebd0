package validation_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/render"
	"github.com/aretw0/strata/pkg/validation"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type corpus struct {
	t     *testing.T
	store *memory.Store
}

func newCorpus(t *testing.T) *corpus {
	return &corpus{t: t, store: memory.NewStore()}
}

func (c *corpus) rule(kind domain.Kind, name, content string) int64 {
	c.t.Helper()
	r := domain.Rule{Kind: kind, Name: name, Content: content}
	if kind == domain.KindPrimitive {
		r.Category = "instruction"
	}
	saved, err := c.store.SaveRule(context.Background(), r)
	require.NoError(c.t, err)
	return saved.ID
}

func (c *corpus) relate(parent domain.Kind, parentID int64, child domain.Kind, childID int64) domain.Relation {
	c.t.Helper()
	rel, err := c.store.SaveRelation(context.Background(), domain.Relation{
		ParentKind: parent, ParentID: parentID, ChildKind: child, ChildID: childID, Weight: 1,
	})
	require.NoError(c.t, err)
	return rel
}

func (c *corpus) version(kind domain.Kind, id int64, n int) {
	c.t.Helper()
	_, err := c.store.SaveVersion(context.Background(), domain.RuleVersion{Kind: kind, RuleID: id, Number: n})
	require.NoError(c.t, err)
}

// healthy builds a small corpus that passes every check without warnings.
func healthy(t *testing.T) (*corpus, map[string]int64) {
	c := newCorpus(t)
	ids := map[string]int64{
		"T1": c.rule(domain.KindTask, "T1", "Task: {{ semantic_rules }}"),
		"S1": c.rule(domain.KindSemantic, "S1", "{{ primitive_rules }} Focus: {{ topic }}"),
		"P1": c.rule(domain.KindPrimitive, "P1", "Be concise."),
	}
	c.relate(domain.KindTask, ids["T1"], domain.KindSemantic, ids["S1"])
	c.relate(domain.KindSemantic, ids["S1"], domain.KindPrimitive, ids["P1"])
	c.version(domain.KindTask, ids["T1"], 1)
	c.version(domain.KindTask, ids["T1"], 2)
	return c, ids
}

func newEngine(t *testing.T, c *corpus, opts ...validation.Option) *validation.Engine {
	opts = append([]validation.Option{
		validation.WithLogger(zaptest.NewLogger(t)),
		validation.WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	return validation.New(c.store, render.NewJinja(), opts...)
}

func TestRunAllChecks_Healthy(t *testing.T) {
	c, _ := healthy(t)
	report := newEngine(t, c).RunAllChecks(context.Background())

	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
	assert.Zero(t, report.IssueCount())
	assert.Equal(t, fixedNow, report.CheckedAt)
	assert.Equal(t, []string{
		validation.CheckContent,
		validation.CheckRelations,
		validation.CheckTemplates,
		validation.CheckCycles,
		validation.CheckOrphans,
		validation.CheckDuplicates,
		validation.CheckVersions,
		validation.CheckOverrides,
	}, report.Order)
	for _, name := range report.Order {
		assert.True(t, report.Checks[name].Valid, name)
		assert.NotEmpty(t, report.Checks[name].Description, name)
	}
}

func TestRunAllChecks_ReportsExactlyTheInjectedDefects(t *testing.T) {
	c, ids := healthy(t)
	ctx := context.Background()

	gone := c.rule(domain.KindPrimitive, "P2", "temporary")
	c.relate(domain.KindSemantic, ids["S1"], domain.KindPrimitive, gone)
	require.NoError(t, c.store.DeleteRule(ctx, domain.KindPrimitive, gone))

	dup := c.rule(domain.KindSemantic, "S1", "again")
	c.relate(domain.KindTask, ids["T1"], domain.KindSemantic, dup)

	c.version(domain.KindTask, ids["T1"], 4)

	report := newEngine(t, c).RunAllChecks(ctx)

	assert.False(t, report.Valid)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 3, report.IssueCount())

	for name, want := range map[string]int{
		validation.CheckRelations:  1,
		validation.CheckDuplicates: 1,
		validation.CheckVersions:   1,
	} {
		res := report.Checks[name]
		assert.False(t, res.Valid, name)
		assert.Equal(t, want, res.Count, name)
	}
	assert.Contains(t, report.Checks[validation.CheckRelations].Issues[0].Message, "missing child primitive_")
	assert.Contains(t, report.Checks[validation.CheckVersions].Issues[0].Message, "expected 3, found 4")
	assert.Equal(t, "S1", report.Checks[validation.CheckDuplicates].Issues[0].Name)
}

func TestRunAllChecks_ContentAndTemplates(t *testing.T) {
	c := newCorpus(t)
	ctx := context.Background()

	_, err := c.store.SaveRule(ctx, domain.Rule{Kind: domain.KindPrimitive, Name: "nocat", Content: "x"})
	require.NoError(t, err)
	_, err = c.store.SaveRule(ctx, domain.Rule{Kind: domain.KindSemantic, Name: "badcat", Content: "x", Category: "poetry"})
	require.NoError(t, err)
	c.rule(domain.KindTask, "empty", "  ")
	c.rule(domain.KindTask, "broken", "{% for x in %}")
	c.rule(domain.KindPrimitive, "rawish", "{% if %}")

	report := newEngine(t, c).RunAllChecks(ctx)
	content := report.Checks[validation.CheckContent]
	require.Equal(t, 3, content.Count)

	templates := report.Checks[validation.CheckTemplates]
	require.Equal(t, 1, templates.Count)
	assert.Equal(t, "broken", templates.Issues[0].Name)

	assert.Contains(t, report.Warnings, "Unused semantic rule: 'badcat' (id 1)")
	found := false
	for _, w := range report.Warnings {
		if strings.HasPrefix(w, "Primitive rule 'rawish'") {
			found = true
		}
	}
	assert.True(t, found, "primitive parse failures are warnings: %v", report.Warnings)
}

func TestRunAllChecks_OrphansAndOverrides(t *testing.T) {
	c, ids := healthy(t)
	ctx := context.Background()

	_, err := c.store.SaveTag(ctx, domain.RuleTag{Kind: domain.KindPrimitive, RuleID: 404, Tag: "ghost"})
	require.NoError(t, err)
	c.version(domain.KindSemantic, 405, 1)

	s2 := c.rule(domain.KindSemantic, "S2", "x")
	_, err = c.store.SaveRelation(ctx, domain.Relation{
		ParentKind: domain.KindTask, ParentID: ids["T1"],
		ChildKind: domain.KindSemantic, ChildID: s2,
		Weight: 1, ContextOverride: "{not json",
	})
	require.NoError(t, err)

	report := newEngine(t, c).RunAllChecks(ctx)
	assert.Equal(t, 2, report.Checks[validation.CheckOrphans].Count)
	assert.Equal(t, 1, report.Checks[validation.CheckOverrides].Count)
	assert.Contains(t, report.Checks[validation.CheckOverrides].Issues[0].Message, "context_override")
}

type failingCorpus struct {
	*memory.Store
}

var errVersions = errors.New("versions table unavailable")

func (failingCorpus) ListVersions(context.Context) ([]domain.RuleVersion, error) {
	return nil, errVersions
}

func TestRunAllChecks_CheckFailureIsIsolated(t *testing.T) {
	c, _ := healthy(t)
	e := validation.New(failingCorpus{c.store}, render.NewJinja(),
		validation.WithLogger(zaptest.NewLogger(t)),
		validation.WithCheck(validation.Check{
			Name:        "explodes",
			Description: "Always panics",
			Run: func(context.Context, *validation.View) ([]domain.Issue, error) {
				panic("boom")
			},
		}),
	)

	report := e.RunAllChecks(context.Background())
	assert.False(t, report.Valid)
	require.Len(t, report.Errors, 3)
	assert.Contains(t, report.Errors[0], "validation check 'orphaned_records' failed")
	assert.Contains(t, report.Errors[1], "validation check 'version_sequence' failed")
	assert.Contains(t, report.Errors[2], "validation check 'explodes' failed: panic: boom")

	assert.True(t, report.Checks[validation.CheckRelations].Valid)
	assert.True(t, report.Checks[validation.CheckDuplicates].Valid)
	assert.Equal(t, "explodes", report.Order[len(report.Order)-1])
}

type integrityStore struct {
	*memory.Store
	problems []string
}

func (s integrityStore) CheckIntegrity(context.Context) ([]string, error) {
	return s.problems, nil
}

func TestRunAllChecks_StoreIntegrity(t *testing.T) {
	c, _ := healthy(t)
	e := validation.New(integrityStore{Store: c.store, problems: []string{"row 3 missing from index"}}, render.NewJinja())

	assert.Contains(t, e.Checks(), validation.CheckStoreIntegrity)
	report := e.RunAllChecks(context.Background())
	assert.False(t, report.Valid)
	assert.Equal(t, 1, report.Checks[validation.CheckStoreIntegrity].Count)
}

func TestCheckConflicts(t *testing.T) {
	c, _ := healthy(t)
	second := c.rule(domain.KindPrimitive, "P1", "other")
	c.rule(domain.KindPrimitive, "P1", "third")

	conflicts, err := newEngine(t, c).CheckConflicts(context.Background())
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, domain.ConflictDuplicateName, conflicts[0].Type)
	assert.Equal(t, domain.KindPrimitive, conflicts[0].Kind)
	assert.Equal(t, []int64{1, second, second + 1}, conflicts[0].IDs)
	assert.Equal(t, "Duplicate primitive rule name: 'P1' (3 occurrences)", conflicts[0].Message)
}

func TestFindCycles(t *testing.T) {
	tests := []struct {
		name  string
		graph map[string][]string
		want  [][]string
	}{
		{
			name:  "acyclic",
			graph: map[string][]string{"task_1": {"semantic_1", "semantic_2"}, "semantic_1": {"primitive_1"}},
			want:  [][]string{},
		},
		{
			name:  "self loop",
			graph: map[string][]string{"a": {"a"}},
			want:  [][]string{{"a", "a"}},
		},
		{
			name:  "triangle",
			graph: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}},
			want:  [][]string{{"a", "b", "c", "a"}},
		},
		{
			name:  "two back edges",
			graph: map[string][]string{"a": {"b"}, "b": {"a", "c"}, "c": {"b"}},
			want:  [][]string{{"a", "b", "a"}, {"b", "c", "b"}},
		},
		{
			name:  "diamond is not a cycle",
			graph: map[string][]string{"a": {"b", "c"}, "b": {"d"}, "c": {"d"}},
			want:  [][]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validation.FindCycles(tt.graph))
		})
	}
}
