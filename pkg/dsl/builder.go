package dsl

import (
	"context"
	"encoding/json"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/cockroachdb/errors"
)

// Builder manages the corpus construction.
type Builder struct {
	rules map[domain.Kind][]*RuleBuilder
	index map[domain.Kind]map[string]*RuleBuilder
}

// New creates a new corpus builder.
func New() *Builder {
	b := &Builder{
		rules: make(map[domain.Kind][]*RuleBuilder),
		index: make(map[domain.Kind]map[string]*RuleBuilder),
	}
	for _, k := range domain.Kinds {
		b.index[k] = make(map[string]*RuleBuilder)
	}
	return b
}

// Add declares a rule of the given kind.
// If the rule already exists, it returns the existing builder.
func (b *Builder) Add(kind domain.Kind, name string) *RuleBuilder {
	if rb, ok := b.index[kind][name]; ok {
		return rb
	}
	rb := &RuleBuilder{
		rule: domain.Rule{Kind: kind, Name: name},
	}
	b.index[kind][name] = rb
	b.rules[kind] = append(b.rules[kind], rb)
	return rb
}

// Primitive declares a primitive rule.
func (b *Builder) Primitive(name string) *RuleBuilder { return b.Add(domain.KindPrimitive, name) }

// Semantic declares a semantic rule.
func (b *Builder) Semantic(name string) *RuleBuilder { return b.Add(domain.KindSemantic, name) }

// Task declares a task rule.
func (b *Builder) Task(name string) *RuleBuilder { return b.Add(domain.KindTask, name) }

// Len returns the number of declared rules.
func (b *Builder) Len() int {
	n := 0
	for _, rules := range b.rules {
		n += len(rules)
	}
	return n
}

// Build compiles the corpus into a memory store.
func (b *Builder) Build() (*memory.Store, error) {
	store := memory.NewStore()
	if err := b.Apply(context.Background(), store); err != nil {
		return nil, errors.Wrap(err, "failed to build memory store")
	}
	return store, nil
}

// Apply writes the declared corpus into w. Rules are saved first, from the
// leaves up in declaration order, then relations resolved by name, then
// versions and tags.
func (b *Builder) Apply(ctx context.Context, w ports.Writer) error {
	ids := make(map[domain.Kind]map[string]int64, len(domain.Kinds))
	order := []domain.Kind{domain.KindPrimitive, domain.KindSemantic, domain.KindTask}

	for _, kind := range order {
		ids[kind] = make(map[string]int64, len(b.rules[kind]))
		for _, rb := range b.rules[kind] {
			if rb.err != nil {
				return errors.Wrapf(rb.err, "%s rule %q", kind, rb.rule.Name)
			}
			saved, err := w.SaveRule(ctx, rb.rule)
			if err != nil {
				return errors.Wrapf(err, "saving %s rule %q", kind, rb.rule.Name)
			}
			ids[kind][rb.rule.Name] = saved.ID
		}
	}

	for _, kind := range order {
		childKind, ok := kind.Child()
		if !ok {
			continue
		}
		for _, rb := range b.rules[kind] {
			parentID := ids[kind][rb.rule.Name]
			for i, l := range rb.links {
				childID, ok := ids[childKind][l.name]
				if !ok {
					return errors.Wrapf(&domain.NotFoundError{Kind: childKind, Name: l.name},
						"%s rule %q uses", kind, rb.rule.Name)
				}
				rel := domain.Relation{
					ParentKind: kind,
					ParentID:   parentID,
					ChildKind:  childKind,
					ChildID:    childID,
					Weight:     1,
					OrderIndex: i,
				}
				for _, opt := range l.opts {
					opt(&rel)
				}
				if _, err := w.SaveRelation(ctx, rel); err != nil {
					return errors.Wrapf(err, "relating %s rule %q to %q", kind, rb.rule.Name, l.name)
				}
			}
		}
	}

	for _, kind := range order {
		for _, rb := range b.rules[kind] {
			id := ids[kind][rb.rule.Name]
			for _, v := range rb.versions {
				v.Kind, v.RuleID = kind, id
				if _, err := w.SaveVersion(ctx, v); err != nil {
					return errors.Wrapf(err, "saving version %d of %s rule %q", v.Number, kind, rb.rule.Name)
				}
			}
			for _, tag := range rb.tags {
				if _, err := w.SaveTag(ctx, domain.RuleTag{Kind: kind, RuleID: id, Tag: tag}); err != nil {
					return errors.Wrapf(err, "tagging %s rule %q", kind, rb.rule.Name)
				}
			}
		}
	}
	return nil
}

// LinkOption configures a relation declared with Uses.
type LinkOption func(*domain.Relation)

// Weight sets the relation weight (0 to 10, default 1).
func Weight(w float64) LinkOption {
	return func(r *domain.Relation) { r.Weight = w }
}

// Order sets the order index. It defaults to the declaration position.
func Order(i int) LinkOption {
	return func(r *domain.Relation) { r.OrderIndex = i }
}

// Required marks the child as required.
func Required() LinkOption {
	return func(r *domain.Relation) { r.IsRequired = true }
}

// Override sets the context_override variables of a task to semantic relation.
func Override(vars map[string]any) LinkOption {
	raw, err := json.Marshal(vars)
	return func(r *domain.Relation) {
		if err == nil {
			r.ContextOverride = string(raw)
		}
	}
}

// RawOverride sets the context_override verbatim.
func RawOverride(raw string) LinkOption {
	return func(r *domain.Relation) { r.ContextOverride = raw }
}
