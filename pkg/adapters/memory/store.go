package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
)

// Store implements ports.ReadWriteStore in memory.
// Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	rules     map[domain.Kind]map[int64]domain.Rule
	relations map[domain.RelationKind]map[int64]domain.Relation
	versions  map[int64]domain.RuleVersion
	tags      map[int64]domain.RuleTag
	seq       map[string]int64
	now       func() time.Time

	lookups atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used to stamp saved records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new, empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		rules:     make(map[domain.Kind]map[int64]domain.Rule),
		relations: make(map[domain.RelationKind]map[int64]domain.Relation),
		versions:  make(map[int64]domain.RuleVersion),
		tags:      make(map[int64]domain.RuleTag),
		seq:       make(map[string]int64),
		now:       time.Now,
	}
	for _, k := range domain.Kinds {
		s.rules[k] = make(map[int64]domain.Rule)
	}
	for _, rk := range domain.RelationKinds {
		s.relations[rk] = make(map[int64]domain.Relation)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookups returns how many RuleStore calls the store has served.
func (s *Store) Lookups() int64 {
	return s.lookups.Load()
}

// GetRule retrieves a rule by kind and id.
func (s *Store) GetRule(ctx context.Context, kind domain.Kind, id int64) (domain.Rule, error) {
	s.lookups.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[kind][id]
	if !ok {
		return domain.Rule{}, &domain.NotFoundError{Kind: kind, ID: id}
	}
	return rule, nil
}

// GetRuleByName retrieves a rule by kind and name. When the corpus holds
// duplicate names the lowest id wins.
func (s *Store) GetRuleByName(ctx context.Context, kind domain.Kind, name string) (domain.Rule, error) {
	s.lookups.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found domain.Rule
		ok    bool
	)
	for _, r := range s.rules[kind] {
		if r.Name == name && (!ok || r.ID < found.ID) {
			found, ok = r, true
		}
	}
	if !ok {
		return domain.Rule{}, &domain.NotFoundError{Kind: kind, Name: name}
	}
	return found, nil
}

// SemanticRelationsForTask returns the ordered semantic relations of a task.
func (s *Store) SemanticRelationsForTask(ctx context.Context, taskID int64) ([]domain.Relation, error) {
	s.lookups.Add(1)
	return s.childRelations(domain.RelationTaskSemantic, taskID), nil
}

// PrimitiveRelationsForSemantic returns the ordered primitive relations of a semantic rule.
func (s *Store) PrimitiveRelationsForSemantic(ctx context.Context, semanticID int64) ([]domain.Relation, error) {
	s.lookups.Add(1)
	return s.childRelations(domain.RelationSemanticPrimitive, semanticID), nil
}

func (s *Store) childRelations(rk domain.RelationKind, parentID int64) []domain.Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, childKind := rk.Endpoints()
	out := make([]domain.Relation, 0)
	for _, rel := range s.relations[rk] {
		if rel.ParentID == parentID {
			out = append(out, rel)
		}
	}
	slices.SortFunc(out, func(a, b domain.Relation) int {
		return cmp.Or(
			cmp.Compare(a.OrderIndex, b.OrderIndex),
			cmp.Compare(s.rules[childKind][a.ChildID].Name, s.rules[childKind][b.ChildID].Name),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out
}

// ListRules returns every rule of a kind ordered by id.
func (s *Store) ListRules(ctx context.Context, kind domain.Kind) ([]domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.rules[kind], func(r domain.Rule) int64 { return r.ID }), nil
}

// ListRelations returns every relation of a kind ordered by id.
func (s *Store) ListRelations(ctx context.Context, kind domain.RelationKind) ([]domain.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.relations[kind], func(r domain.Relation) int64 { return r.ID }), nil
}

// ListVersions returns every version entry ordered by id.
func (s *Store) ListVersions(ctx context.Context) ([]domain.RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.versions, func(v domain.RuleVersion) int64 { return v.ID }), nil
}

// ListTags returns every tag ordered by id.
func (s *Store) ListTags(ctx context.Context) ([]domain.RuleTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.tags, func(t domain.RuleTag) int64 { return t.ID }), nil
}

// SaveRule inserts or replaces a rule.
func (s *Store) SaveRule(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	if !rule.Kind.Valid() {
		return domain.Rule{}, errors.Newf("unknown rule kind %q", rule.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rule.ID == 0 {
		rule.ID = s.next(string(rule.Kind))
	} else {
		s.bump(string(rule.Kind), rule.ID)
	}
	if prev, ok := s.rules[rule.Kind][rule.ID]; ok {
		rule.CreatedAt = prev.CreatedAt
	} else if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.Version == 0 {
		rule.Version = 1
	}
	rule.UpdatedAt = now
	s.rules[rule.Kind][rule.ID] = rule
	return rule, nil
}

// SaveRelation validates and inserts or replaces a relation.
// Endpoint existence is not enforced; dangling relations are reported by validation.
func (s *Store) SaveRelation(ctx context.Context, rel domain.Relation) (domain.Relation, error) {
	if err := rel.Validate(); err != nil {
		return domain.Relation{}, err
	}
	rk := rel.Type()

	s.mu.Lock()
	defer s.mu.Unlock()

	if rel.ID == 0 {
		rel.ID = s.next(string(rk))
	} else {
		s.bump(string(rk), rel.ID)
	}
	s.relations[rk][rel.ID] = rel
	return rel, nil
}

// SaveVersion inserts or replaces a version entry.
func (s *Store) SaveVersion(ctx context.Context, v domain.RuleVersion) (domain.RuleVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == 0 {
		v.ID = s.next("version")
	} else {
		s.bump("version", v.ID)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	s.versions[v.ID] = v
	return v, nil
}

// SaveTag inserts or replaces a rule tag.
func (s *Store) SaveTag(ctx context.Context, tag domain.RuleTag) (domain.RuleTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tag.ID == 0 {
		tag.ID = s.next("tag")
	} else {
		s.bump("tag", tag.ID)
	}
	s.tags[tag.ID] = tag
	return tag, nil
}

// DeleteRule removes a rule. Relations pointing at it are kept so that
// validation can report them.
func (s *Store) DeleteRule(ctx context.Context, kind domain.Kind, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[kind][id]; !ok {
		return &domain.NotFoundError{Kind: kind, ID: id}
	}
	delete(s.rules[kind], id)
	return nil
}

// next must be called with the write lock held.
func (s *Store) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// bump keeps the sequence ahead of explicitly assigned ids.
func (s *Store) bump(table string, id int64) {
	if id > s.seq[table] {
		s.seq[table] = id
	}
}

func sortedValues[V any](m map[int64]V, id func(V) int64) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b V) int { return cmp.Compare(id(a), id(b)) })
	return out
}
