// Package validation checks the structural and content integrity of a whole
// rule corpus, independently of any single resolution.
package validation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Check names, in execution order.
const (
	CheckContent        = "content_integrity"
	CheckRelations      = "relation_integrity"
	CheckTemplates      = "template_syntax"
	CheckCycles         = "cycles"
	CheckOrphans        = "orphaned_records"
	CheckDuplicates     = "duplicate_names"
	CheckVersions       = "version_sequence"
	CheckOverrides      = "override_fields"
	CheckStoreIntegrity = "store_integrity"
)

// Check is one independent validation pass over the corpus.
type Check struct {
	Name        string
	Description string
	Run         func(ctx context.Context, v *View) ([]domain.Issue, error)
}

// Engine runs the validation checks. It holds no state between runs.
type Engine struct {
	corpus   ports.Corpus
	renderer ports.Renderer
	logger   *zap.Logger
	now      func() time.Time
	checks   []Check
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used to report failing checks.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the time source used to stamp reports.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithCheck appends a custom check after the built-in ones.
func WithCheck(c Check) Option {
	return func(e *Engine) {
		e.checks = append(e.checks, c)
	}
}

// New creates an Engine over corpus. The renderer validates template syntax.
// When corpus implements ports.IntegrityChecker a store integrity check is added.
func New(corpus ports.Corpus, renderer ports.Renderer, opts ...Option) *Engine {
	e := &Engine{
		corpus:   corpus,
		renderer: renderer,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	e.checks = e.builtinChecks()
	if ic, ok := corpus.(ports.IntegrityChecker); ok {
		e.checks = append(e.checks, Check{
			Name:        CheckStoreIntegrity,
			Description: "Store physical integrity",
			Run: func(ctx context.Context, _ *View) ([]domain.Issue, error) {
				problems, err := ic.CheckIntegrity(ctx)
				if err != nil {
					return nil, err
				}
				issues := make([]domain.Issue, 0, len(problems))
				for _, p := range problems {
					issues = append(issues, domain.Issue{Message: p})
				}
				return issues, nil
			},
		})
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Checks lists the configured checks in execution order.
func (e *Engine) Checks() []string {
	names := make([]string, len(e.checks))
	for i, c := range e.checks {
		names[i] = c.Name
	}
	return names
}

// RunAllChecks runs every check and always returns a complete report. A check
// that fails or panics is recorded as a check-level error; the others still run.
func (e *Engine) RunAllChecks(ctx context.Context) *domain.Report {
	view := newView(e.corpus)
	report := &domain.Report{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
		Checks:   make(map[string]domain.CheckResult, len(e.checks)),
		Order:    make([]string, 0, len(e.checks)),
	}

	for _, c := range e.checks {
		result := e.run(ctx, c, view)
		if result.Error != "" {
			msg := fmt.Sprintf("validation check '%s' failed: %s", c.Name, result.Error)
			e.logger.Error("validation check failed", zap.String("check", c.Name), zap.String("err", result.Error))
			report.Errors = append(report.Errors, msg)
		}
		if !result.Valid {
			report.Valid = false
		}
		report.Checks[c.Name] = result
		report.Order = append(report.Order, c.Name)
	}

	report.Warnings = append(report.Warnings, e.warnings(ctx, view)...)
	report.CheckedAt = e.now()
	return report
}

func (e *Engine) run(ctx context.Context, c Check, v *View) (result domain.CheckResult) {
	result = domain.CheckResult{Name: c.Name, Description: c.Description, Issues: []domain.Issue{}}
	defer func() {
		if r := recover(); r != nil {
			result.Valid = false
			result.Issues = []domain.Issue{}
			result.Count = 0
			result.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}
	issues, err := c.Run(ctx, v)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if issues != nil {
		result.Issues = issues
	}
	result.Count = len(result.Issues)
	result.Valid = result.Count == 0
	return result
}

// CheckConflicts returns the duplicate-name conflicts of the corpus.
func (e *Engine) CheckConflicts(ctx context.Context) ([]domain.Conflict, error) {
	view := newView(e.corpus)
	conflicts := make([]domain.Conflict, 0)
	for _, kind := range domain.Kinds {
		rules, err := view.Rules(ctx, kind)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s rules", kind)
		}
		for _, group := range duplicateGroups(rules) {
			ids := make([]int64, len(group))
			for i, r := range group {
				ids[i] = r.ID
			}
			conflicts = append(conflicts, domain.Conflict{
				Type:    domain.ConflictDuplicateName,
				Kind:    kind,
				Name:    group[0].Name,
				IDs:     ids,
				Message: fmt.Sprintf("Duplicate %s rule name: '%s' (%d occurrences)", kind, group[0].Name, len(group)),
			})
		}
	}
	return conflicts, nil
}

// View memoizes corpus reads for the duration of one run so that each
// check sees the same snapshot without re-reading the store.
type View struct {
	corpus ports.Corpus

	mu        sync.Mutex
	rules     map[domain.Kind][]domain.Rule
	relations map[domain.RelationKind][]domain.Relation
	versions  []domain.RuleVersion
	tags      []domain.RuleTag
	loaded    map[string]bool
}

func newView(corpus ports.Corpus) *View {
	return &View{
		corpus:    corpus,
		rules:     make(map[domain.Kind][]domain.Rule),
		relations: make(map[domain.RelationKind][]domain.Relation),
		loaded:    make(map[string]bool),
	}
}

// Rules lists the rules of a kind.
func (v *View) Rules(ctx context.Context, kind domain.Kind) ([]domain.Rule, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := "rules/" + string(kind)
	if !v.loaded[key] {
		rules, err := v.corpus.ListRules(ctx, kind)
		if err != nil {
			return nil, err
		}
		v.rules[kind], v.loaded[key] = rules, true
	}
	return v.rules[kind], nil
}

// Relations lists the relations of a relation kind.
func (v *View) Relations(ctx context.Context, kind domain.RelationKind) ([]domain.Relation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := "relations/" + string(kind)
	if !v.loaded[key] {
		rels, err := v.corpus.ListRelations(ctx, kind)
		if err != nil {
			return nil, err
		}
		v.relations[kind], v.loaded[key] = rels, true
	}
	return v.relations[kind], nil
}

// Versions lists the version history.
func (v *View) Versions(ctx context.Context) ([]domain.RuleVersion, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.loaded["versions"] {
		versions, err := v.corpus.ListVersions(ctx)
		if err != nil {
			return nil, err
		}
		v.versions, v.loaded["versions"] = versions, true
	}
	return v.versions, nil
}

// Tags lists the rule tags.
func (v *View) Tags(ctx context.Context) ([]domain.RuleTag, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.loaded["tags"] {
		tags, err := v.corpus.ListTags(ctx)
		if err != nil {
			return nil, err
		}
		v.tags, v.loaded["tags"] = tags, true
	}
	return v.tags, nil
}

// index returns the set of existing "{kind}_{id}" names.
func (v *View) index(ctx context.Context) (map[string]domain.Rule, error) {
	idx := make(map[string]domain.Rule)
	for _, kind := range domain.Kinds {
		rules, err := v.Rules(ctx, kind)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s rules", kind)
		}
		for _, r := range rules {
			idx[domain.NodeName(kind, r.ID)] = r
		}
	}
	return idx, nil
}
