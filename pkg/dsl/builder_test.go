package dsl

import (
	"context"
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
)

func TestBuilder_SimpleCorpus(t *testing.T) {
	// 1. Declare the corpus using DSL
	b := New()

	b.Task("T1").
		Domain("general").
		Content("Task: {{ semantic_rules }}").
		Uses("S1")

	b.Semantic("S1").
		Content("{{ primitive_rules }} Focus: {{ topic }}").
		Uses("P2", Order(1)).
		Uses("P1", Order(0), Weight(2.5), Required())

	b.Primitive("P1").Category("instruction").Content("Be concise.")
	b.Primitive("P2").Category("format").Content("Use lists.")

	// 2. Compile to Store
	store, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	ctx := context.Background()

	// 3. Verify rules and relations
	task, err := store.GetRuleByName(ctx, domain.KindTask, "T1")
	if err != nil {
		t.Fatalf("GetRuleByName('T1') failed: %v", err)
	}
	if task.Domain != "general" {
		t.Errorf("Expected domain 'general', got '%s'", task.Domain)
	}

	sems, err := store.SemanticRelationsForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("SemanticRelationsForTask failed: %v", err)
	}
	if len(sems) != 1 {
		t.Fatalf("Expected 1 semantic relation, got %d", len(sems))
	}

	prims, err := store.PrimitiveRelationsForSemantic(ctx, sems[0].ChildID)
	if err != nil {
		t.Fatalf("PrimitiveRelationsForSemantic failed: %v", err)
	}
	if len(prims) != 2 {
		t.Fatalf("Expected 2 primitive relations, got %d", len(prims))
	}
	first, err := store.GetRule(ctx, domain.KindPrimitive, prims[0].ChildID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if first.Name != "P1" {
		t.Errorf("Expected P1 first, got '%s'", first.Name)
	}
	if prims[0].Weight != 2.5 || !prims[0].IsRequired {
		t.Errorf("Expected weight 2.5 and required, got %v / %v", prims[0].Weight, prims[0].IsRequired)
	}
	if prims[1].Weight != 1 {
		t.Errorf("Expected default weight 1, got %v", prims[1].Weight)
	}
	if b.Len() != 4 {
		t.Errorf("Expected 4 rules, got %d", b.Len())
	}
}

func TestBuilder_AddReturnsExisting(t *testing.T) {
	b := New()
	first := b.Primitive("p").Content("one")
	again := b.Primitive("p")
	if first != again {
		t.Fatal("Expected Add to return the existing builder")
	}
	if again.Build().Content != "one" {
		t.Errorf("Expected content 'one', got '%s'", again.Build().Content)
	}

	// Same name, different kind, is a distinct rule.
	if b.Semantic("p") == first {
		t.Error("Expected names to be scoped per kind")
	}
}

func TestBuilder_OverrideVersionsAndTags(t *testing.T) {
	b := New()
	b.Semantic("S").Content("{{ tone }}")
	b.Task("T").
		Content("v2").
		Version(1, "initial").
		Version(2, "rewrite").
		Tag("review", "go").
		Uses("S", Override(map[string]any{"tone": "formal"}))

	store, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	ctx := context.Background()

	rels, _ := store.ListRelations(ctx, domain.RelationTaskSemantic)
	if len(rels) != 1 || rels[0].ContextOverride != `{"tone":"formal"}` {
		t.Fatalf("Unexpected relations: %+v", rels)
	}

	versions, _ := store.ListVersions(ctx)
	if len(versions) != 2 || versions[1].Number != 2 || versions[1].ChangeNote != "rewrite" {
		t.Errorf("Unexpected versions: %+v", versions)
	}

	task, _ := store.GetRuleByName(ctx, domain.KindTask, "T")
	if task.Version != 2 {
		t.Errorf("Expected current version 2, got %d", task.Version)
	}

	tags, _ := store.ListTags(ctx)
	if len(tags) != 2 || tags[0].RuleID != task.ID {
		t.Errorf("Unexpected tags: %+v", tags)
	}
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("Unknown Child", func(t *testing.T) {
		b := New()
		b.Task("T").Content("x").Uses("missing")
		_, err := b.Build()
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Primitive Has No Children", func(t *testing.T) {
		b := New()
		b.Primitive("p").Category("instruction").Content("x").Uses("q")
		if _, err := b.Build(); err == nil {
			t.Fatal("Expected error for primitive with children")
		}
	})

	t.Run("Invalid Weight", func(t *testing.T) {
		b := New()
		b.Semantic("s").Content("x")
		b.Task("t").Content("y").Uses("s", Weight(42))
		_, err := b.Build()
		if !errors.Is(err, domain.ErrInvalidRelation) {
			t.Fatalf("Expected ErrInvalidRelation, got %v", err)
		}
	})
}
