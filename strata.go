package strata

import (
	"context"
	"strings"
	"time"

	"github.com/aretw0/strata/pkg/cache"
	"github.com/aretw0/strata/pkg/compose"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/render"
	"github.com/aretw0/strata/pkg/resolver"
	"github.com/aretw0/strata/pkg/validation"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// System is the high-level entry point for the Strata library.
// It wires a store to its own resolver, cache, composer and validator.
type System struct {
	store     ports.Store
	renderer  ports.Renderer
	cache     *cache.Cache[*domain.ResolvedNode]
	resolver  *resolver.Resolver
	composer  *compose.Composer
	validator *validation.Engine
	hooks     domain.LifecycleHooks
	logger    *zap.Logger
	now       func() time.Time

	cacheOpts     []cache.Option
	parallelism   int
	targets       map[string]compose.Frame
	defaultTarget string
}

// Option defines a functional option for configuring the System.
type Option func(*System)

// WithRenderer sets the template engine (default: Jinja via pongo2).
func WithRenderer(r ports.Renderer) Option {
	return func(s *System) {
		s.renderer = r
	}
}

// WithCache injects a resolution cache, e.g. one shared with a metrics collector.
func WithCache(c *cache.Cache[*domain.ResolvedNode]) Option {
	return func(s *System) {
		s.cache = c
	}
}

// WithCacheConfig sizes the default cache. It is ignored when WithCache is given.
func WithCacheConfig(size int, ttl time.Duration) Option {
	return func(s *System) {
		s.cacheOpts = append(s.cacheOpts, cache.WithCapacity(size), cache.WithTTL(ttl))
	}
}

// WithLogger sets a custom structured logger for the system.
func WithLogger(logger *zap.Logger) Option {
	return func(s *System) {
		s.logger = logger
	}
}

// WithParallelism resolves up to n sibling branches concurrently.
func WithParallelism(n int) Option {
	return func(s *System) {
		s.parallelism = n
	}
}

// WithTargets adds or replaces output framing targets.
func WithTargets(targets map[string]compose.Frame) Option {
	return func(s *System) {
		s.targets = targets
	}
}

// WithDefaultTarget sets the target used when Generate is called with an empty one.
func WithDefaultTarget(target string) Option {
	return func(s *System) {
		s.defaultTarget = target
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *System) {
		s.hooks = hooks
	}
}

// New initializes a System over store.
func New(store ports.Store, opts ...Option) (*System, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	s := &System{
		store:         store,
		now:           time.Now,
		parallelism:   1,
		defaultTarget: compose.TargetPlain,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.renderer == nil {
		s.renderer = render.NewJinja()
	}
	if s.cache == nil {
		s.cache = cache.New[*domain.ResolvedNode](s.cacheOpts...)
	}

	s.resolver = resolver.New(store, s.cache,
		resolver.WithLogger(s.logger.Named("resolver")),
		resolver.WithParallelism(s.parallelism),
	)
	s.composer = compose.New(s.renderer,
		compose.WithLogger(s.logger.Named("compose")),
		compose.WithTargets(s.targets),
	)
	s.validator = validation.New(store, s.renderer,
		validation.WithLogger(s.logger.Named("validation")),
	)
	return s, nil
}

// Generate resolves the named task, renders it with vars and frames the
// result for target. A missing task fails with an error matching
// domain.ErrNotFound and a broken task template with domain.ErrTemplateRender.
func (s *System) Generate(ctx context.Context, taskName string, vars map[string]any, target string) (*domain.Generation, error) {
	if strings.TrimSpace(target) == "" {
		target = s.defaultTarget
	}
	gen, err := s.generate(ctx, taskName, vars, target)
	s.emitGenerate(ctx, taskName, target, gen, err)
	return gen, err
}

func (s *System) generate(ctx context.Context, taskName string, vars map[string]any, target string) (*domain.Generation, error) {
	if strings.TrimSpace(taskName) == "" {
		return nil, errors.New("task name is required")
	}
	if vars == nil {
		vars = map[string]any{}
	}

	start := s.now()
	tree, err := s.resolver.ResolveTaskByName(ctx, taskName, vars)
	if err != nil {
		return nil, err
	}
	resolved := s.now()

	out, err := s.composer.Render(ctx, tree, vars)
	if err != nil {
		return nil, errors.Wrapf(err, "generating %q", taskName)
	}
	done := s.now()

	return &domain.Generation{
		ID:          uuid.NewString(),
		TaskName:    taskName,
		Target:      target,
		Text:        s.composer.Wrap(out.Text, target),
		RawText:     out.Text,
		Tree:        tree,
		Diagnostics: out.Diagnostics,
		Timing: domain.Timing{
			Resolve: resolved.Sub(start),
			Render:  done.Sub(resolved),
			Total:   done.Sub(start),
		},
		Cached:      tree.ResolvedAt.Before(start),
		GeneratedAt: done,
	}, nil
}

func (s *System) emitGenerate(ctx context.Context, taskName, target string, gen *domain.Generation, err error) {
	if err != nil {
		s.logger.Debug("generate failed", zap.String("task", taskName), zap.Error(err))
	}
	if gen != nil && s.hooks.OnDiagnostic != nil {
		for _, d := range gen.Diagnostics {
			s.hooks.OnDiagnostic(ctx, &domain.DiagnosticEvent{
				EventBase:  domain.EventBase{Timestamp: s.now(), Type: domain.EventDiagnostic},
				TaskName:   taskName,
				Diagnostic: d,
			})
		}
	}
	if s.hooks.OnGenerate != nil {
		s.hooks.OnGenerate(ctx, &domain.GenerateEvent{
			EventBase:  domain.EventBase{Timestamp: s.now(), Type: domain.EventGenerate},
			TaskName:   taskName,
			Target:     target,
			Generation: gen,
			Err:        err,
		})
	}
}

// Dependencies flattens the hierarchy below the named rule.
func (s *System) Dependencies(ctx context.Context, kind domain.Kind, name string) ([]domain.Dependency, error) {
	return s.resolver.DependenciesByName(ctx, kind, name)
}

// Resolve returns the resolved tree of the named rule without rendering it.
func (s *System) Resolve(ctx context.Context, kind domain.Kind, name string, vars map[string]any) (*domain.ResolvedNode, error) {
	id, err := s.resolver.LookupID(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, kind, id, vars)
}

// ValidateAll runs every validation check over the corpus.
func (s *System) ValidateAll(ctx context.Context) *domain.Report {
	report := s.validator.RunAllChecks(ctx)
	if s.hooks.OnValidate != nil {
		s.hooks.OnValidate(ctx, &domain.ValidateEvent{
			EventBase: domain.EventBase{Timestamp: s.now(), Type: domain.EventValidate},
			Report:    report,
		})
	}
	return report
}

// CheckConflicts returns the duplicate-name conflicts of the corpus.
func (s *System) CheckConflicts(ctx context.Context) ([]domain.Conflict, error) {
	return s.validator.CheckConflicts(ctx)
}

// CacheStats reports the resolution cache usage.
func (s *System) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// SweepCache removes expired cache entries and returns how many were removed.
func (s *System) SweepCache() int {
	return s.cache.Sweep()
}

// ClearCache drops every cached tree and the task name memo.
func (s *System) ClearCache() {
	s.cache.Clear()
	s.resolver.ForgetNames()
}

// Invalidate drops the cached trees of a rule and of every rule above it.
func (s *System) Invalidate(ctx context.Context, kind domain.Kind, id int64) (int, error) {
	removed, err := s.resolver.Invalidate(ctx, kind, id)
	if err != nil {
		return 0, err
	}
	s.resolver.ForgetNames()
	return removed, nil
}

// Optimize sweeps expired entries and reports the resulting cache state.
func (s *System) Optimize() (int, cache.Stats) {
	removed := s.cache.Sweep()
	stats := s.cache.Stats()
	s.logger.Info("cache optimized",
		zap.Int("removed", removed),
		zap.Int("size", stats.Size),
		zap.Float64("hit_rate", stats.HitRate),
	)
	return removed, stats
}

// Stats counts the records of the corpus.
func (s *System) Stats(ctx context.Context) (domain.CorpusStats, error) {
	stats := domain.CorpusStats{
		Rules:     make(map[domain.Kind]int, len(domain.Kinds)),
		Relations: make(map[domain.RelationKind]int, len(domain.RelationKinds)),
	}
	for _, kind := range domain.Kinds {
		rules, err := s.store.ListRules(ctx, kind)
		if err != nil {
			return stats, errors.Wrapf(err, "listing %s rules", kind)
		}
		stats.Rules[kind] = len(rules)
	}
	for _, rk := range domain.RelationKinds {
		rels, err := s.store.ListRelations(ctx, rk)
		if err != nil {
			return stats, errors.Wrapf(err, "listing %s relations", rk)
		}
		stats.Relations[rk] = len(rels)
	}
	versions, err := s.store.ListVersions(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "listing versions")
	}
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "listing tags")
	}
	stats.Versions, stats.Tags = len(versions), len(tags)
	return stats, nil
}

// Watch follows backend changes. Every change clears the cache before it is
// forwarded, so the next generation re-resolves from the store.
// Returns error if the store does not support watching.
func (s *System) Watch(ctx context.Context) (<-chan string, error) {
	w, ok := s.store.(ports.Watchable)
	if !ok {
		return nil, errors.New("current store does not support watching")
	}
	events, err := w.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case id, ok := <-events:
				if !ok {
					return
				}
				s.ClearCache()
				s.logger.Info("corpus changed, cache cleared", zap.String("document", id))
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Targets lists the known output framing targets.
func (s *System) Targets() []string {
	return s.composer.Targets()
}

// Store returns the underlying store used by the system.
func (s *System) Store() ports.Store {
	return s.store
}

// Cache returns the resolution cache, e.g. for a metrics collector.
func (s *System) Cache() *cache.Cache[*domain.ResolvedNode] {
	return s.cache
}
