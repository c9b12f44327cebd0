package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/strata/internal/presentation/graph"
	"github.com/aretw0/strata/pkg/domain"
)

func node(kind domain.Kind, id int64, name string, link *domain.Link, children ...*domain.ResolvedNode) *domain.ResolvedNode {
	return &domain.ResolvedNode{
		Kind:     kind,
		Rule:     domain.Rule{ID: id, Kind: kind, Name: name},
		Link:     link,
		Children: children,
	}
}

func TestGenerateMermaid(t *testing.T) {
	shared := node(domain.KindPrimitive, 1, "concise", &domain.Link{Weight: 1})

	tests := []struct {
		name     string
		tree     *domain.ResolvedNode
		overlay  *graph.Overlay
		contains []string
		count    map[string]int
	}{
		{
			name: "Shapes By Kind",
			tree: node(domain.KindTask, 1, "review", nil,
				node(domain.KindSemantic, 2, "style", &domain.Link{Weight: 1}, shared)),
			contains: []string{
				"task_1((\"review\"))",
				"semantic_2[\"style\"]",
				"primitive_1[/\"concise\"/]",
				"task_1 --> semantic_2",
				"semantic_2 --> primitive_1",
			},
		},
		{
			name: "Link Labels",
			tree: node(domain.KindTask, 1, "t", nil,
				node(domain.KindSemantic, 1, "a", &domain.Link{Weight: 2.5}),
				node(domain.KindSemantic, 2, "b", &domain.Link{Weight: 1, IsRequired: true}),
				node(domain.KindSemantic, 3, "c", &domain.Link{Weight: 0.5, IsRequired: true, ContextOverride: `{"x":1}`}),
			),
			contains: []string{
				"task_1 -- \"w=2.5\" --> semantic_1",
				"task_1 ==> semantic_2",
				"task_1 == \"w=0.5 override\" ==> semantic_3",
			},
		},
		{
			name: "Shared Rule Declared Once",
			tree: node(domain.KindTask, 1, "t", nil,
				node(domain.KindSemantic, 1, "a", &domain.Link{Weight: 1}, shared),
				node(domain.KindSemantic, 2, "b", &domain.Link{Weight: 1}, shared),
			),
			count: map[string]int{
				"primitive_1[/\"concise\"/]": 1,
				"--> primitive_1":            2,
			},
		},
		{
			name: "Missing Child",
			tree: &domain.ResolvedNode{
				Kind:       domain.KindSemantic,
				Rule:       domain.Rule{ID: 4, Kind: domain.KindSemantic, Name: "s"},
				Unresolved: []domain.Unresolved{{RelationID: 9, Kind: domain.KindPrimitive, ID: 42}},
			},
			contains: []string{
				"missing_primitive_42{{\"primitive 42 (missing)\"}}",
				"semantic_4 -.-> missing_primitive_42",
				"class missing_primitive_42 missing;",
			},
		},
		{
			name: "Label Escaping",
			tree: node(domain.KindTask, 1, `say "hi"`, nil),
			contains: []string{
				"task_1((\"say 'hi'\"))",
			},
		},
		{
			name: "Degraded Overlay",
			tree: node(domain.KindTask, 1, "t", nil,
				node(domain.KindSemantic, 2, "s", &domain.Link{Weight: 1}, shared)),
			overlay: graph.OverlayOf(&domain.Generation{Diagnostics: []domain.Diagnostic{
				{Kind: domain.KindPrimitive, RuleID: 1},
				{Kind: domain.KindPrimitive, RuleID: 1},
				{Kind: domain.KindSemantic, RuleID: 99},
			}}),
			contains: []string{
				"classDef degraded",
				"class primitive_1 degraded;",
			},
			count: map[string]int{
				"class primitive_1 degraded;": 1,
				"semantic_99":                 0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.tree, tt.overlay)
			if !strings.HasPrefix(got, "graph TD\n") {
				t.Errorf("missing header:\n%s", got)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, got)
				}
			}
			for want, n := range tt.count {
				if c := strings.Count(got, want); c != n {
					t.Errorf("expected %q %d times, found %d in:\n%s", want, n, c, got)
				}
			}
		})
	}
}

func TestGenerateMermaid_NilTree(t *testing.T) {
	if got := graph.GenerateMermaid(nil, nil); got != "graph TD\n" {
		t.Errorf("unexpected output %q", got)
	}
	if graph.OverlayOf(nil) != nil {
		t.Error("expected nil overlay for nil generation")
	}
}
