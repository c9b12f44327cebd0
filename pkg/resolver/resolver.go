// Package resolver walks the rule hierarchy from a task down to its primitives
// and memoizes every resolved subtree in a cache.
package resolver

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/cache"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resolver produces ResolvedNode trees for rules of a store.
// It is safe for concurrent use when the store is.
type Resolver struct {
	store       ports.RuleStore
	cache       *cache.Cache[*domain.ResolvedNode]
	logger      *zap.Logger
	parallelism int
	now         func() time.Time

	namesMu sync.RWMutex
	names   map[string]int64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for resolution tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithParallelism resolves up to n sibling branches concurrently.
// Values below 2 keep resolution sequential.
func WithParallelism(n int) Option {
	return func(r *Resolver) {
		r.parallelism = n
	}
}

// WithClock sets the time source used to stamp resolved nodes.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// New creates a Resolver over store. A nil cache gets a default one.
func New(store ports.RuleStore, c *cache.Cache[*domain.ResolvedNode], opts ...Option) *Resolver {
	if c == nil {
		c = cache.New[*domain.ResolvedNode]()
	}
	r := &Resolver{
		store:       store,
		cache:       c,
		logger:      zap.NewNop(),
		parallelism: 1,
		now:         time.Now,
		names:       make(map[string]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache exposes the memoization cache backing the resolver.
func (r *Resolver) Cache() *cache.Cache[*domain.ResolvedNode] {
	return r.cache
}

// ResolveTask resolves a task rule with its semantic and primitive descendants.
// It fails with an error matching domain.ErrNotFound when the task does not exist.
func (r *Resolver) ResolveTask(ctx context.Context, taskID int64, vars map[string]any) (*domain.ResolvedNode, error) {
	return r.resolve(ctx, domain.KindTask, taskID, vars)
}

// ResolveSemantic resolves a semantic rule with its primitives.
func (r *Resolver) ResolveSemantic(ctx context.Context, semanticID int64, vars map[string]any) (*domain.ResolvedNode, error) {
	return r.resolve(ctx, domain.KindSemantic, semanticID, vars)
}

// Resolve resolves a rule of any kind.
func (r *Resolver) Resolve(ctx context.Context, kind domain.Kind, id int64, vars map[string]any) (*domain.ResolvedNode, error) {
	if !kind.Valid() {
		return nil, errors.Newf("unknown rule kind %q", kind)
	}
	return r.resolve(ctx, kind, id, vars)
}

// ResolveTaskByName resolves a task rule looked up by name. Name lookups are
// memoized, so a repeated request served from cache touches no store at all.
func (r *Resolver) ResolveTaskByName(ctx context.Context, name string, vars map[string]any) (*domain.ResolvedNode, error) {
	id, err := r.LookupID(ctx, domain.KindTask, name)
	if err != nil {
		return nil, err
	}
	return r.ResolveTask(ctx, id, vars)
}

// LookupID maps a rule name to its id through the name memo.
func (r *Resolver) LookupID(ctx context.Context, kind domain.Kind, name string) (int64, error) {
	memoKey := string(kind) + "/" + name

	r.namesMu.RLock()
	id, ok := r.names[memoKey]
	r.namesMu.RUnlock()
	if ok {
		return id, nil
	}

	rule, err := r.store.GetRuleByName(ctx, kind, name)
	if err != nil {
		return 0, errors.Wrapf(err, "looking up %s rule %q", kind, name)
	}

	r.namesMu.Lock()
	r.names[memoKey] = rule.ID
	r.namesMu.Unlock()
	return rule.ID, nil
}

// ForgetNames drops the name memo.
func (r *Resolver) ForgetNames() {
	r.namesMu.Lock()
	r.names = make(map[string]int64)
	r.namesMu.Unlock()
}

func (r *Resolver) resolve(ctx context.Context, kind domain.Kind, id int64, vars map[string]any) (*domain.ResolvedNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cache.Key(string(kind), id, vars)
	if node, ok := r.cache.Get(key); ok {
		r.logger.Debug("cache hit", zap.String("kind", string(kind)), zap.Int64("rule_id", id))
		return node, nil
	}

	rule, err := r.store.GetRule(ctx, kind, id)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s rule %d", kind, id)
	}

	rels, err := ports.RelationsFor(ctx, r.store, kind, id)
	if err != nil {
		return nil, errors.Wrapf(err, "listing children of %s rule %q", kind, rule.Name)
	}

	// Level boundary: children are only fetched if the caller is still waiting.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	children, unresolved, err := r.resolveChildren(ctx, rule, rels, vars)
	if err != nil {
		return nil, err
	}

	node := &domain.ResolvedNode{
		Kind:        kind,
		Rule:        rule,
		Children:    children,
		Unresolved:  unresolved,
		Fingerprint: cache.Fingerprint(vars),
		ResolvedAt:  r.now(),
	}
	r.cache.Set(key, node)
	r.logger.Debug("resolved rule",
		zap.String("kind", string(kind)),
		zap.Int64("rule_id", id),
		zap.String("rule", rule.Name),
		zap.Int("children", len(children)),
	)
	return node, nil
}

type slot struct {
	node       *domain.ResolvedNode
	unresolved *domain.Unresolved
}

func (r *Resolver) resolveChildren(ctx context.Context, parent domain.Rule, rels []domain.Relation, vars map[string]any) ([]*domain.ResolvedNode, []domain.Unresolved, error) {
	slots := make([]slot, len(rels))

	resolveOne := func(ctx context.Context, i int) error {
		rel := rels[i]
		child, err := r.resolve(ctx, rel.ChildKind, rel.ChildID, vars)
		switch {
		case err == nil:
			slots[i].node = child.WithLink(domain.LinkOf(rel))
			return nil
		case errors.Is(err, domain.ErrNotFound):
			r.logger.Warn("skipping dangling relation",
				zap.String("kind", string(parent.Kind)),
				zap.String("rule", parent.Name),
				zap.Int64("relation_id", rel.ID),
				zap.Error(err),
			)
			slots[i].unresolved = &domain.Unresolved{
				RelationID: rel.ID,
				Kind:       rel.ChildKind,
				ID:         rel.ChildID,
				Reason:     err.Error(),
			}
			return nil
		default:
			return errors.Wrapf(err, "%s rule %q relation %d", parent.Kind, parent.Name, rel.ID)
		}
	}

	if r.parallelism > 1 && len(rels) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.parallelism)
		for i := range rels {
			g.Go(func() error { return resolveOne(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	} else {
		for i := range rels {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			if err := resolveOne(ctx, i); err != nil {
				return nil, nil, err
			}
		}
	}

	children := make([]*domain.ResolvedNode, 0, len(rels))
	var unresolved []domain.Unresolved
	for _, s := range slots {
		if s.node != nil {
			children = append(children, s.node)
		}
		if s.unresolved != nil {
			unresolved = append(unresolved, *s.unresolved)
		}
	}
	slices.SortStableFunc(children, compareChildren)
	return children, unresolved, nil
}

// compareChildren orders siblings by order_index, then rule name, then relation id.
func compareChildren(a, b *domain.ResolvedNode) int {
	return cmp.Or(
		cmp.Compare(a.Link.OrderIndex, b.Link.OrderIndex),
		cmp.Compare(a.Rule.Name, b.Rule.Name),
		cmp.Compare(a.Link.RelationID, b.Link.RelationID),
	)
}
