package ports

import (
	"context"

	"github.com/aretw0/strata/pkg/domain"
)

// RuleStore defines the lookups the resolver performs while walking a hierarchy.
// Implementations must be safe for concurrent reads.
type RuleStore interface {
	// GetRule returns the rule of the given kind and id.
	// It returns an error matching domain.ErrNotFound when absent.
	GetRule(ctx context.Context, kind domain.Kind, id int64) (domain.Rule, error)

	// GetRuleByName returns the rule of the given kind and name.
	// It returns an error matching domain.ErrNotFound when absent.
	GetRuleByName(ctx context.Context, kind domain.Kind, name string) (domain.Rule, error)

	// SemanticRelationsForTask returns the task's relations ordered by
	// order_index, ties broken by the semantic rule name.
	SemanticRelationsForTask(ctx context.Context, taskID int64) ([]domain.Relation, error)

	// PrimitiveRelationsForSemantic returns the semantic rule's relations ordered by
	// order_index, ties broken by the primitive rule name.
	PrimitiveRelationsForSemantic(ctx context.Context, semanticID int64) ([]domain.Relation, error)
}

// Corpus defines the corpus-wide enumerations used by validation and tooling.
type Corpus interface {
	// ListRules returns every rule of a kind ordered by id.
	ListRules(ctx context.Context, kind domain.Kind) ([]domain.Rule, error)

	// ListRelations returns every relation of a relation kind ordered by id.
	ListRelations(ctx context.Context, kind domain.RelationKind) ([]domain.Relation, error)

	// ListVersions returns the version history of every rule.
	ListVersions(ctx context.Context) ([]domain.RuleVersion, error)

	// ListTags returns every rule tag.
	ListTags(ctx context.Context) ([]domain.RuleTag, error)
}

// Store is the full read contract consumed by the engine.
type Store interface {
	RuleStore
	Corpus
}

// Writer defines record creation. Saving a record with a zero ID assigns a new
// one; saving with an existing ID replaces the record.
type Writer interface {
	SaveRule(ctx context.Context, rule domain.Rule) (domain.Rule, error)

	// SaveRelation rejects relations failing domain.Relation.Validate.
	SaveRelation(ctx context.Context, rel domain.Relation) (domain.Relation, error)

	SaveVersion(ctx context.Context, v domain.RuleVersion) (domain.RuleVersion, error)
	SaveTag(ctx context.Context, tag domain.RuleTag) (domain.RuleTag, error)
}

// ReadWriteStore is implemented by every bundled store adapter.
type ReadWriteStore interface {
	Store
	Writer
}

// RelationsFor dispatches to the relation lookup matching the parent kind.
// Primitive rules have no children and yield an empty list.
func RelationsFor(ctx context.Context, s RuleStore, kind domain.Kind, id int64) ([]domain.Relation, error) {
	switch kind {
	case domain.KindTask:
		return s.SemanticRelationsForTask(ctx, id)
	case domain.KindSemantic:
		return s.PrimitiveRelationsForSemantic(ctx, id)
	}
	return nil, nil
}

// Watchable defines an interface for stores that can notify about backend changes.
// This is typically used for hot-reload or dev-mode functionality.
type Watchable interface {
	// Watch returns a channel that receives an identifier of each changed document.
	// The channel is closed when ctx is cancelled.
	Watch(ctx context.Context) (<-chan string, error)
}

// IntegrityChecker is implemented by stores that can verify their own
// physical consistency (e.g. SQLite's integrity and foreign key pragmas).
type IntegrityChecker interface {
	// CheckIntegrity returns one message per problem found.
	CheckIntegrity(ctx context.Context) ([]string, error)
}
