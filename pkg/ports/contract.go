package ports

import (
	"context"
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract runs a suite of tests to verify that a ReadWriteStore implementation
// adheres to the defined interface contract. newStore must return an empty store.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) ReadWriteStore) {
	ctx := context.Background()

	t.Run("Save and Get", func(t *testing.T) {
		store := newStore(t)

		saved, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindPrimitive, Name: "concise", Content: "Be concise.", Category: "instruction"})
		require.NoError(t, err, "SaveRule should not return error")
		assert.NotZero(t, saved.ID, "SaveRule should assign an id")

		byID, err := store.GetRule(ctx, domain.KindPrimitive, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, "concise", byID.Name)
		assert.Equal(t, "Be concise.", byID.Content)
		assert.Equal(t, domain.KindPrimitive, byID.Kind)

		byName, err := store.GetRuleByName(ctx, domain.KindPrimitive, "concise")
		require.NoError(t, err)
		assert.Equal(t, saved.ID, byName.ID)
	})

	t.Run("Replace Existing", func(t *testing.T) {
		store := newStore(t)

		saved, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindTask, Name: "review", Content: "v1"})
		require.NoError(t, err)

		saved.Content = "v2"
		_, err = store.SaveRule(ctx, saved)
		require.NoError(t, err)

		got, err := store.GetRule(ctx, domain.KindTask, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, "v2", got.Content)

		all, err := store.ListRules(ctx, domain.KindTask)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetRule(ctx, domain.KindTask, 999)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = store.GetRuleByName(ctx, domain.KindSemantic, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Names Are Scoped Per Kind", func(t *testing.T) {
		store := newStore(t)

		p, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindPrimitive, Name: "shared", Content: "p", Category: "format"})
		require.NoError(t, err)
		s, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindSemantic, Name: "shared", Content: "s"})
		require.NoError(t, err)

		gotP, err := store.GetRuleByName(ctx, domain.KindPrimitive, "shared")
		require.NoError(t, err)
		gotS, err := store.GetRuleByName(ctx, domain.KindSemantic, "shared")
		require.NoError(t, err)
		assert.Equal(t, p.ID, gotP.ID)
		assert.Equal(t, s.ID, gotS.ID)
		assert.Equal(t, "p", gotP.Content)
		assert.Equal(t, "s", gotS.Content)
	})

	t.Run("Relations Ordered By Index Then Name", func(t *testing.T) {
		store := newStore(t)

		sem, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindSemantic, Name: "review", Content: "{{ primitive_rules }}"})
		require.NoError(t, err)

		ids := map[string]int64{}
		for _, name := range []string{"charlie", "alpha", "bravo"} {
			p, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindPrimitive, Name: name, Content: name, Category: "instruction"})
			require.NoError(t, err)
			ids[name] = p.ID
		}

		for name, order := range map[string]int{"charlie": 0, "alpha": 1, "bravo": 1} {
			_, err := store.SaveRelation(ctx, domain.Relation{
				ParentKind: domain.KindSemantic, ParentID: sem.ID,
				ChildKind: domain.KindPrimitive, ChildID: ids[name],
				Weight: 1, OrderIndex: order, IsRequired: name == "alpha",
			})
			require.NoError(t, err)
		}

		rels, err := store.PrimitiveRelationsForSemantic(ctx, sem.ID)
		require.NoError(t, err)
		require.Len(t, rels, 3)
		assert.Equal(t, ids["charlie"], rels[0].ChildID)
		assert.Equal(t, ids["alpha"], rels[1].ChildID)
		assert.Equal(t, ids["bravo"], rels[2].ChildID)
		assert.True(t, rels[1].IsRequired)
		assert.Equal(t, domain.KindSemantic, rels[0].ParentKind)
		assert.Equal(t, domain.KindPrimitive, rels[0].ChildKind)

		all, err := store.ListRelations(ctx, domain.RelationSemanticPrimitive)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := store.SemanticRelationsForTask(ctx, 12345)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Task Relation Keeps Override", func(t *testing.T) {
		store := newStore(t)

		task, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindTask, Name: "t", Content: "{{ semantic_rules }}", Domain: "general"})
		require.NoError(t, err)
		sem, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindSemantic, Name: "s", Content: "x"})
		require.NoError(t, err)

		_, err = store.SaveRelation(ctx, domain.Relation{
			ParentKind: domain.KindTask, ParentID: task.ID,
			ChildKind: domain.KindSemantic, ChildID: sem.ID,
			Weight: 7.5, ContextOverride: `{"tone":"formal"}`,
		})
		require.NoError(t, err)

		rels, err := store.SemanticRelationsForTask(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, rels, 1)
		assert.Equal(t, 7.5, rels[0].Weight)
		assert.JSONEq(t, `{"tone":"formal"}`, rels[0].ContextOverride)
	})

	t.Run("Invalid Relation Rejected", func(t *testing.T) {
		store := newStore(t)

		task, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindTask, Name: "t", Content: "x"})
		require.NoError(t, err)
		sem, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindSemantic, Name: "s", Content: "x"})
		require.NoError(t, err)

		_, err = store.SaveRelation(ctx, domain.Relation{
			ParentKind: domain.KindTask, ParentID: task.ID,
			ChildKind: domain.KindSemantic, ChildID: sem.ID,
			Weight: 11,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRelation)
	})

	t.Run("Versions And Tags", func(t *testing.T) {
		store := newStore(t)

		rule, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindSemantic, Name: "s", Content: "x"})
		require.NoError(t, err)

		for n := 1; n <= 2; n++ {
			_, err := store.SaveVersion(ctx, domain.RuleVersion{Kind: domain.KindSemantic, RuleID: rule.ID, Number: n, Content: "x"})
			require.NoError(t, err)
		}
		_, err = store.SaveTag(ctx, domain.RuleTag{Kind: domain.KindSemantic, RuleID: rule.ID, Tag: "review"})
		require.NoError(t, err)

		versions, err := store.ListVersions(ctx)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, 1, versions[0].Number)
		assert.Equal(t, 2, versions[1].Number)

		tags, err := store.ListTags(ctx)
		require.NoError(t, err)
		require.Len(t, tags, 1)
		assert.Equal(t, "review", tags[0].Tag)
		assert.Equal(t, rule.ID, tags[0].RuleID)
	})
}
