package compose_test

import (
	"context"
	"testing"

	"github.com/aretw0/strata/pkg/compose"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

var nextID int64

func node(kind domain.Kind, name, content string, order int, children ...*domain.ResolvedNode) *domain.ResolvedNode {
	nextID++
	return &domain.ResolvedNode{
		Kind:     kind,
		Rule:     domain.Rule{ID: nextID, Kind: kind, Name: name, Content: content},
		Link:     &domain.Link{OrderIndex: order, Weight: 1},
		Children: children,
	}
}

func task(content string, children ...*domain.ResolvedNode) *domain.ResolvedNode {
	n := node(domain.KindTask, "task", content, 0, children...)
	n.Link = nil
	return n
}

func prim(name, content string) *domain.ResolvedNode {
	return node(domain.KindPrimitive, name, content, 0)
}

func sem(name, content string, children ...*domain.ResolvedNode) *domain.ResolvedNode {
	return node(domain.KindSemantic, name, content, 0, children...)
}

func newComposer(t *testing.T, opts ...compose.Option) *compose.Composer {
	opts = append([]compose.Option{compose.WithLogger(zaptest.NewLogger(t))}, opts...)
	return compose.New(render.NewJinja(), opts...)
}

func TestRender_Scenario(t *testing.T) {
	tree := task("Task: {{semantic_rules}}",
		sem("S1", "{{primitive_rules}} Focus: {{topic}}",
			prim("P1", "Be concise."),
		),
	)

	out, err := newComposer(t).Render(context.Background(), tree, map[string]any{"topic": "tests"})
	require.NoError(t, err)
	assert.Equal(t, "Task: Be concise. Focus: tests", out.Text)
	assert.Empty(t, out.Diagnostics)
}

func TestRender_JoinsInOrderAndDeduplicates(t *testing.T) {
	tree := task("{{ semantic_rules }}\n==\n{{ primitive_rules }}",
		sem("first", "[{{ primitive_rules }}]", prim("a", "alpha"), prim("b", "beta")),
		sem("second", "[{{ primitive_rules }}]", prim("a2", "alpha"), prim("c", "{{ word }}")),
	)

	out, err := newComposer(t).Render(context.Background(), tree, map[string]any{"word": "gamma"})
	require.NoError(t, err)
	assert.Equal(t, "[alpha\nbeta]\n\n[alpha\ngamma]\n==\nalpha\nbeta\ngamma", out.Text)
}

func TestRender_SeparatorsAreConfigurable(t *testing.T) {
	tree := task("{{ semantic_rules }}",
		sem("one", "{{ primitive_rules }}", prim("a", "x"), prim("b", "y")),
		sem("two", "z"),
	)

	c := newComposer(t, compose.WithSemanticSeparator("\n\n---\n\n"), compose.WithPrimitiveSeparator(" | "))
	out, err := c.Render(context.Background(), tree, nil)
	require.NoError(t, err)
	assert.Equal(t, "x | y\n\n---\n\nz", out.Text)
}

func TestRender_PrimitiveFailureFallsBackToRawContent(t *testing.T) {
	broken := "{% if %}raw"
	tree := task("{{ semantic_rules }}",
		sem("s", "{{ primitive_rules }}", prim("ok", "fine"), prim("bad", broken)),
	)

	out, err := newComposer(t).Render(context.Background(), tree, nil)
	require.NoError(t, err)
	assert.Equal(t, "fine\n"+broken, out.Text)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, domain.LevelWarning, out.Diagnostics[0].Level)
	assert.Equal(t, "bad", out.Diagnostics[0].RuleName)
	assert.Equal(t, domain.KindPrimitive, out.Diagnostics[0].Kind)
}

func TestRender_DegradeLeavesWarningsToHooks(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tree := task("{{ semantic_rules }}",
		sem("s", "{{ primitive_rules }}", prim("bad", "{% if %}raw")),
	)

	out, err := compose.New(render.NewJinja(), compose.WithLogger(zap.New(core))).Render(context.Background(), tree, nil)
	require.NoError(t, err)
	require.Len(t, out.Diagnostics, 1)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestRender_SemanticFailureInsertsMarker(t *testing.T) {
	tree := task("{{ semantic_rules }}",
		sem("broken", "{% for %}", prim("p", "x")),
		sem("healthy", "still here"),
	)

	out, err := newComposer(t).Render(context.Background(), tree, nil)
	require.NoError(t, err)
	assert.Contains(t, out.Text, "<!-- Error rendering semantic rule broken: ")
	assert.Contains(t, out.Text, "still here")
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, domain.LevelError, out.Diagnostics[0].Level)
	assert.Equal(t, "broken", out.Diagnostics[0].RuleName)
}

func TestRender_TaskFailureIsFatal(t *testing.T) {
	tree := task("{% endfor %}", sem("s", "ok"))

	_, err := newComposer(t).Render(context.Background(), tree, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTemplateRender)
	assert.ErrorIs(t, err, domain.ErrTemplateSyntax)

	var rerr *domain.TemplateRenderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "task", rerr.RuleName)
	assert.Equal(t, domain.KindTask, rerr.Kind)
}

func TestRender_ContextOverride(t *testing.T) {
	overridden := sem("formal", "{{ tone }}: {{ primitive_rules }}", prim("p", "speak {{ tone }}"))
	overridden.Link.ContextOverride = `{"tone":"formal"}`
	plain := sem("default", "{{ tone }}", prim("q", "x"))
	plain.Link.OrderIndex = 1

	tree := task("{{ semantic_rules }} / {{ tone }}", overridden, plain)

	out, err := newComposer(t).Render(context.Background(), tree, map[string]any{"tone": "casual"})
	require.NoError(t, err)
	assert.Equal(t, "formal: speak formal\n\ncasual / casual", out.Text)
}

func TestRender_InvalidOverrideIsIgnored(t *testing.T) {
	s := sem("s", "{{ tone }}")
	s.Link.ContextOverride = `{not json`
	tree := task("{{ semantic_rules }}", s)

	out, err := newComposer(t).Render(context.Background(), tree, map[string]any{"tone": "casual"})
	require.NoError(t, err)
	assert.Equal(t, "casual", out.Text)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, domain.LevelWarning, out.Diagnostics[0].Level)
	assert.Contains(t, out.Diagnostics[0].Message, "context_override")
}

func TestRender_UnresolvedChildrenReported(t *testing.T) {
	s := sem("s", "{{ primitive_rules }}", prim("p", "x"))
	s.Unresolved = []domain.Unresolved{{RelationID: 9, Kind: domain.KindPrimitive, ID: 77, Reason: "primitive rule 77 not found"}}
	tree := task("{{ semantic_rules }}", s)

	out, err := newComposer(t).Render(context.Background(), tree, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", out.Text)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, int64(77), out.Diagnostics[0].RuleID)
}

func TestRender_SemanticRoot(t *testing.T) {
	root := sem("s", "<{{ primitive_rules }}>", prim("a", "1"), prim("b", "2"))
	root.Link = nil

	out, err := newComposer(t).Render(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, "<1\n2>", out.Text)
}

func TestRender_CancelledContext(t *testing.T) {
	tree := task("{{ semantic_rules }}", sem("s", "x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newComposer(t).Render(ctx, tree, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWrap(t *testing.T) {
	c := compose.New(render.NewJinja())

	tests := []struct {
		target string
		want   string
	}{
		{"plain", "body"},
		{"claude", "<thinking>\nProcessing the following prompt requirements:\n</thinking>\n\nbody"},
		{"GPT", "System: You are a helpful assistant following these guidelines:\n\nbody"},
		{"gemini", "Instructions: Please follow these guidelines carefully:\n\nbody"},
		{"unknown-model", "body"},
		{"", "body"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Wrap("body", tt.target))
		})
	}

	assert.Equal(t, []string{"claude", "gemini", "gpt", "plain"}, c.Targets())
}

func TestWrap_CustomTargets(t *testing.T) {
	c := compose.New(render.NewJinja(), compose.WithTargets(map[string]compose.Frame{
		"Markdown": {Prefix: "```\n", Suffix: "\n```"},
	}))
	assert.Equal(t, "```\nx\n```", c.Wrap("x", "markdown"))

	f, ok := c.Frame("MARKDOWN")
	assert.True(t, ok)
	assert.Equal(t, "\n```", f.Suffix)
}
