// Package compose renders a resolved rule tree bottom-up into final text and
// frames it for a target consumer.
package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Variable names injected into parent templates.
const (
	VarPrimitiveRules = "primitive_rules"
	VarSemanticRules  = "semantic_rules"
)

// Default separators between rendered children.
const (
	DefaultPrimitiveSeparator = "\n"
	DefaultSemanticSeparator  = "\n\n"
)

// Rendered is the output of a composition with its degraded-render diagnostics.
type Rendered struct {
	Text        string
	Diagnostics []domain.Diagnostic
}

// Composer threads rendered children into parent templates.
type Composer struct {
	renderer     ports.Renderer
	logger       *zap.Logger
	primitiveSep string
	semanticSep  string
	targets      map[string]Frame
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the logger used to trace degraded renders at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Composer) {
		c.logger = logger
	}
}

// WithSemanticSeparator sets the text placed between rendered semantic rules.
func WithSemanticSeparator(sep string) Option {
	return func(c *Composer) {
		c.semanticSep = sep
	}
}

// WithPrimitiveSeparator sets the text placed between rendered primitive rules.
func WithPrimitiveSeparator(sep string) Option {
	return func(c *Composer) {
		c.primitiveSep = sep
	}
}

// WithTargets adds or replaces framing targets. Keys are matched case-insensitively.
func WithTargets(targets map[string]Frame) Option {
	return func(c *Composer) {
		for name, f := range targets {
			c.targets[strings.ToLower(name)] = f
		}
	}
}

// New creates a Composer over renderer.
func New(renderer ports.Renderer, opts ...Option) *Composer {
	c := &Composer{
		renderer:     renderer,
		logger:       zap.NewNop(),
		primitiveSep: DefaultPrimitiveSeparator,
		semanticSep:  DefaultSemanticSeparator,
		targets:      maps.Clone(defaultTargets),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Render composes a resolved task tree. Primitive failures fall back to the
// raw content and semantic failures to an inline marker, both with a
// diagnostic; a task failure is returned as *domain.TemplateRenderError.
// A semantic or primitive root is rendered the same way, its own template
// being the fatal level.
func (c *Composer) Render(ctx context.Context, tree *domain.ResolvedNode, vars map[string]any) (*Rendered, error) {
	if tree == nil {
		return nil, errors.New("compose: nil tree")
	}
	out := &Rendered{}

	switch tree.Kind {
	case domain.KindPrimitive:
		text, err := c.renderer.Render(tree.Rule.Content, vars)
		if err != nil {
			return nil, renderError(tree.Rule, err)
		}
		out.Text = text
		return out, nil

	case domain.KindSemantic:
		scope := c.scope(tree, vars, out)
		prims := c.renderPrimitives(tree, scope, out)
		scope[VarPrimitiveRules] = strings.Join(prims, c.primitiveSep)
		text, err := c.renderer.Render(tree.Rule.Content, scope)
		if err != nil {
			return nil, renderError(tree.Rule, err)
		}
		out.Text = text
		return out, nil
	}

	c.noteUnresolved(tree, out)

	semantics := make([]string, 0, len(tree.Children))
	flattened := make([]string, 0)
	seen := make(map[string]bool)
	for _, sem := range tree.Children {
		// Between levels: abandon the composition if the caller went away.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scope := c.scope(sem, vars, out)
		prims := c.renderPrimitives(sem, scope, out)
		for _, p := range prims {
			if !seen[p] {
				seen[p] = true
				flattened = append(flattened, p)
			}
		}

		scope[VarPrimitiveRules] = strings.Join(prims, c.primitiveSep)
		text, err := c.renderer.Render(sem.Rule.Content, scope)
		if err != nil {
			c.degrade(out, domain.LevelError, sem.Rule, err)
			text = fmt.Sprintf("<!-- Error rendering semantic rule %s: %v -->", sem.Rule.Name, err)
		}
		semantics = append(semantics, text)
	}

	taskVars := make(map[string]any, len(vars)+2)
	maps.Copy(taskVars, vars)
	taskVars[VarSemanticRules] = strings.Join(semantics, c.semanticSep)
	taskVars[VarPrimitiveRules] = strings.Join(flattened, c.primitiveSep)

	text, err := c.renderer.Render(tree.Rule.Content, taskVars)
	if err != nil {
		return nil, renderError(tree.Rule, err)
	}
	out.Text = text
	return out, nil
}

// scope builds the variables of a semantic subtree: the caller variables
// overlaid with the relation's context_override.
func (c *Composer) scope(sem *domain.ResolvedNode, vars map[string]any, out *Rendered) map[string]any {
	scope := make(map[string]any, len(vars)+1)
	maps.Copy(scope, vars)
	c.noteUnresolved(sem, out)

	if sem.Link == nil || strings.TrimSpace(sem.Link.ContextOverride) == "" {
		return scope
	}
	var override map[string]any
	if err := json.Unmarshal([]byte(sem.Link.ContextOverride), &override); err != nil {
		c.degrade(out, domain.LevelWarning, sem.Rule, errors.Wrap(err, "ignoring context_override"))
		return scope
	}
	maps.Copy(scope, override)
	return scope
}

// renderPrimitives renders the primitive children of a semantic node in order,
// skipping empty output.
func (c *Composer) renderPrimitives(sem *domain.ResolvedNode, scope map[string]any, out *Rendered) []string {
	texts := make([]string, 0, len(sem.Children))
	for _, prim := range sem.Children {
		if prim.Rule.Content == "" {
			continue
		}
		text, err := c.renderer.Render(prim.Rule.Content, scope)
		if err != nil {
			c.degrade(out, domain.LevelWarning, prim.Rule, errors.Wrap(err, "using raw content"))
			text = prim.Rule.Content
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

func (c *Composer) noteUnresolved(n *domain.ResolvedNode, out *Rendered) {
	for _, u := range n.Unresolved {
		out.Diagnostics = append(out.Diagnostics, domain.Diagnostic{
			Level:    domain.LevelWarning,
			Kind:     u.Kind,
			RuleID:   u.ID,
			RuleName: n.Rule.Name,
			Message:  fmt.Sprintf("relation %d skipped: %s", u.RelationID, u.Reason),
		})
	}
}

func (c *Composer) degrade(out *Rendered, level domain.DiagnosticLevel, rule domain.Rule, err error) {
	c.logger.Debug("degraded render",
		zap.String("kind", string(rule.Kind)),
		zap.Int64("rule_id", rule.ID),
		zap.String("rule", rule.Name),
		zap.Error(err),
	)
	out.Diagnostics = append(out.Diagnostics, domain.Diagnostic{
		Level:    level,
		Kind:     rule.Kind,
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Message:  err.Error(),
	})
}

func renderError(rule domain.Rule, err error) error {
	return &domain.TemplateRenderError{Kind: rule.Kind, RuleID: rule.ID, RuleName: rule.Name, Err: err}
}
