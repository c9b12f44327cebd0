package resolver

import (
	"context"

	"github.com/aretw0/strata/pkg/cache"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Dependencies flattens the hierarchy below a rule. For a task, each semantic
// dependency is followed by its primitives annotated with the semantic they
// arrived through. Primitives have no dependencies.
func (r *Resolver) Dependencies(ctx context.Context, kind domain.Kind, id int64) ([]domain.Dependency, error) {
	if !kind.Valid() {
		return nil, errors.Newf("unknown rule kind %q", kind)
	}
	if kind == domain.KindPrimitive {
		if _, err := r.store.GetRule(ctx, kind, id); err != nil {
			return nil, errors.Wrapf(err, "resolving %s rule %d", kind, id)
		}
		return []domain.Dependency{}, nil
	}

	tree, err := r.resolve(ctx, kind, id, nil)
	if err != nil {
		return nil, err
	}

	deps := make([]domain.Dependency, 0, tree.Size()-1)
	for _, child := range tree.Children {
		deps = append(deps, dependencyOf(child, nil))
		if kind != domain.KindTask {
			continue
		}
		via := &domain.Via{ID: child.Rule.ID, Name: child.Rule.Name}
		for _, grandchild := range child.Children {
			deps = append(deps, dependencyOf(grandchild, via))
		}
	}
	return deps, nil
}

// DependenciesByName looks the rule up by name and lists its dependencies.
func (r *Resolver) DependenciesByName(ctx context.Context, kind domain.Kind, name string) ([]domain.Dependency, error) {
	id, err := r.LookupID(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	return r.Dependencies(ctx, kind, id)
}

func dependencyOf(n *domain.ResolvedNode, via *domain.Via) domain.Dependency {
	d := domain.Dependency{
		Type: n.Kind,
		ID:   n.Rule.ID,
		Name: n.Rule.Name,
		Via:  via,
	}
	if n.Link != nil {
		d.Weight = n.Link.Weight
		d.OrderIndex = n.Link.OrderIndex
		d.IsRequired = n.Link.IsRequired
	}
	return d
}

type ruleRef struct {
	kind domain.Kind
	id   int64
}

// Invalidate drops every cached resolution of a rule and of all its ancestors,
// and clears the name memo. Ancestors are found through the corpus relation
// lists; a store without ports.Corpus gets the whole cache cleared instead.
// It returns the number of cache entries removed.
func (r *Resolver) Invalidate(ctx context.Context, kind domain.Kind, id int64) (int, error) {
	r.ForgetNames()

	corpus, ok := r.store.(ports.Corpus)
	if !ok && kind != domain.KindTask {
		n := r.cache.Len()
		r.cache.Clear()
		return n, nil
	}

	removed := 0
	seen := make(map[ruleRef]bool)
	queue := []ruleRef{{kind, id}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		removed += r.cache.InvalidatePrefix(cache.Prefix(string(cur.kind), cur.id))

		parentKind, ok := cur.kind.Parent()
		if !ok {
			continue
		}
		rk, _ := domain.RelationKindFor(parentKind)
		rels, err := corpus.ListRelations(ctx, rk)
		if err != nil {
			return removed, errors.Wrapf(err, "listing %s relations", rk)
		}
		for _, rel := range rels {
			if rel.ChildID == cur.id {
				queue = append(queue, ruleRef{rel.ParentKind, rel.ParentID})
			}
		}
	}

	r.logger.Debug("invalidated rule",
		zap.String("kind", string(kind)),
		zap.Int64("rule_id", id),
		zap.Int("entries", removed),
	)
	return removed, nil
}
