package domain_test

import (
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelation_Validate(t *testing.T) {
	base := domain.Relation{
		ParentKind: domain.KindTask, ParentID: 1,
		ChildKind: domain.KindSemantic, ChildID: 2,
		Weight: 5,
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(r *domain.Relation)
	}{
		{"weight above range", func(r *domain.Relation) { r.Weight = 10.5 }},
		{"weight below range", func(r *domain.Relation) { r.Weight = -1 }},
		{"negative order", func(r *domain.Relation) { r.OrderIndex = -1 }},
		{"skips a level", func(r *domain.Relation) { r.ChildKind = domain.KindPrimitive }},
		{"same kind", func(r *domain.Relation) { r.ChildKind = domain.KindTask }},
		{"override below task", func(r *domain.Relation) {
			r.ParentKind, r.ChildKind = domain.KindSemantic, domain.KindPrimitive
			r.ContextOverride = `{"a":1}`
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := base
			tt.mutate(&rel)
			err := rel.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidRelation)
		})
	}
}

func TestRelation_Type(t *testing.T) {
	rel := domain.Relation{ParentKind: domain.KindSemantic, ChildKind: domain.KindPrimitive}
	assert.Equal(t, domain.RelationSemanticPrimitive, rel.Type())
	assert.Equal(t, "semantic_0", rel.Parent())

	parent, child := domain.RelationTaskSemantic.Endpoints()
	assert.Equal(t, domain.KindTask, parent)
	assert.Equal(t, domain.KindSemantic, child)
}

func TestKind_Navigation(t *testing.T) {
	child, ok := domain.KindTask.Child()
	assert.True(t, ok)
	assert.Equal(t, domain.KindSemantic, child)

	_, ok = domain.KindPrimitive.Child()
	assert.False(t, ok)

	parent, ok := domain.KindPrimitive.Parent()
	assert.True(t, ok)
	assert.Equal(t, domain.KindSemantic, parent)

	k, err := domain.ParseKind(" Task ")
	require.NoError(t, err)
	assert.Equal(t, domain.KindTask, k)

	_, err = domain.ParseKind("meta")
	assert.Error(t, err)
}

func TestRule_CheckClassifier(t *testing.T) {
	assert.NoError(t, domain.Rule{Kind: domain.KindPrimitive, Category: "format"}.CheckClassifier())
	assert.Error(t, domain.Rule{Kind: domain.KindPrimitive}.CheckClassifier())
	assert.Error(t, domain.Rule{Kind: domain.KindPrimitive, Category: "vibes"}.CheckClassifier())
	assert.NoError(t, domain.Rule{Kind: domain.KindSemantic}.CheckClassifier())
	assert.Error(t, domain.Rule{Kind: domain.KindSemantic, Category: "format"}.CheckClassifier())
	assert.NoError(t, domain.Rule{Kind: domain.KindTask, Domain: "devops"}.CheckClassifier())
	assert.Error(t, domain.Rule{Kind: domain.KindTask, Domain: "gardening"}.CheckClassifier())

	// "general" is a task domain, not a semantic category.
	assert.NoError(t, domain.Rule{Kind: domain.KindTask, Domain: "general"}.CheckClassifier())
	err := domain.Rule{Kind: domain.KindSemantic, Category: "general"}.CheckClassifier()
	require.Error(t, err)
	assert.Equal(t, `invalid category "general"`, err.Error())
	assert.EqualError(t, domain.Rule{Kind: domain.KindPrimitive}.CheckClassifier(), "missing category")
}

func TestErrors_MatchSentinels(t *testing.T) {
	nf := errors.Wrap(&domain.NotFoundError{Kind: domain.KindTask, Name: "T1"}, "resolving")
	assert.ErrorIs(t, nf, domain.ErrNotFound)
	assert.Contains(t, nf.Error(), `task rule "T1" not found`)

	var target *domain.NotFoundError
	require.True(t, errors.As(nf, &target))
	assert.Equal(t, "T1", target.Name)

	cause := errors.New("boom")
	re := &domain.TemplateRenderError{Kind: domain.KindTask, RuleID: 4, RuleName: "T", Err: &domain.TemplateSyntaxError{Err: cause}}
	assert.ErrorIs(t, re, domain.ErrTemplateRender)
	assert.ErrorIs(t, re, domain.ErrTemplateSyntax)
	assert.ErrorIs(t, re, cause)
}

func TestResolvedNode_WithLinkIsShallowCopy(t *testing.T) {
	leaf := &domain.ResolvedNode{Kind: domain.KindPrimitive, Rule: domain.Rule{ID: 1}}
	node := &domain.ResolvedNode{Kind: domain.KindSemantic, Rule: domain.Rule{ID: 2}, Children: []*domain.ResolvedNode{leaf}}

	linked := node.WithLink(domain.Link{OrderIndex: 3})
	assert.Nil(t, node.Link)
	require.NotNil(t, linked.Link)
	assert.Equal(t, 3, linked.Link.OrderIndex)
	assert.Same(t, leaf, linked.Children[0])
	assert.Equal(t, 2, linked.Size())
}
