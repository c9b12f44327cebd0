package memory

import (
	"context"
	"sync/atomic"

	"github.com/aretw0/strata/pkg/domain"
)

// Snapshot implements ports.Store over the most recently published Store.
// File-backed adapters publish a freshly loaded Store on every reload while
// readers keep using the previous one until the swap.
type Snapshot struct {
	current atomic.Pointer[Store]
}

// NewSnapshot creates a snapshot serving initial.
func NewSnapshot(initial *Store) *Snapshot {
	s := &Snapshot{}
	s.Publish(initial)
	return s
}

// Publish replaces the served store.
func (s *Snapshot) Publish(store *Store) {
	if store == nil {
		store = NewStore()
	}
	s.current.Store(store)
}

// Current returns the served store.
func (s *Snapshot) Current() *Store {
	return s.current.Load()
}

func (s *Snapshot) GetRule(ctx context.Context, kind domain.Kind, id int64) (domain.Rule, error) {
	return s.Current().GetRule(ctx, kind, id)
}

func (s *Snapshot) GetRuleByName(ctx context.Context, kind domain.Kind, name string) (domain.Rule, error) {
	return s.Current().GetRuleByName(ctx, kind, name)
}

func (s *Snapshot) SemanticRelationsForTask(ctx context.Context, taskID int64) ([]domain.Relation, error) {
	return s.Current().SemanticRelationsForTask(ctx, taskID)
}

func (s *Snapshot) PrimitiveRelationsForSemantic(ctx context.Context, semanticID int64) ([]domain.Relation, error) {
	return s.Current().PrimitiveRelationsForSemantic(ctx, semanticID)
}

func (s *Snapshot) ListRules(ctx context.Context, kind domain.Kind) ([]domain.Rule, error) {
	return s.Current().ListRules(ctx, kind)
}

func (s *Snapshot) ListRelations(ctx context.Context, kind domain.RelationKind) ([]domain.Relation, error) {
	return s.Current().ListRelations(ctx, kind)
}

func (s *Snapshot) ListVersions(ctx context.Context) ([]domain.RuleVersion, error) {
	return s.Current().ListVersions(ctx)
}

func (s *Snapshot) ListTags(ctx context.Context) ([]domain.RuleTag, error) {
	return s.Current().ListTags(ctx)
}
