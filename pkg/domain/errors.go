package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned when a referenced rule does not exist in the store.
	ErrNotFound = errors.New("rule not found")

	// ErrTemplateSyntax is returned when a template cannot be parsed.
	ErrTemplateSyntax = errors.New("template syntax error")

	// ErrTemplateRender is returned when the root task template fails to render.
	ErrTemplateRender = errors.New("template render failed")

	// ErrInvalidRelation is returned when a relation violates weight, order or kind invariants.
	ErrInvalidRelation = errors.New("invalid relation")
)

// NotFoundError locates a missing rule by kind and id or name.
type NotFoundError struct {
	Kind Kind
	ID   int64
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s rule %q not found", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s rule %d not found", e.Kind, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TemplateSyntaxError wraps a parse failure reported by a renderer.
type TemplateSyntaxError struct {
	Err error
}

func (e *TemplateSyntaxError) Error() string {
	return fmt.Sprintf("template syntax error: %v", e.Err)
}

func (e *TemplateSyntaxError) Unwrap() error { return e.Err }

// Is matches ErrTemplateSyntax.
func (e *TemplateSyntaxError) Is(target error) bool { return target == ErrTemplateSyntax }

// TemplateRenderError reports a fatal failure while rendering a rule template.
type TemplateRenderError struct {
	Kind     Kind
	RuleID   int64
	RuleName string
	Err      error
}

func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("rendering %s rule %q (id %d): %v", e.Kind, e.RuleName, e.RuleID, e.Err)
}

func (e *TemplateRenderError) Unwrap() error { return e.Err }

// Is matches ErrTemplateRender.
func (e *TemplateRenderError) Is(target error) bool { return target == ErrTemplateRender }

// InvalidRelationError reports a relation that breaks the hierarchy invariants.
type InvalidRelationError struct {
	Relation Relation
	Reason   string
}

func (e *InvalidRelationError) Error() string {
	return fmt.Sprintf("invalid relation %s -> %s: %s", e.Relation.Parent(), e.Relation.Child(), e.Reason)
}

// Is matches ErrInvalidRelation.
func (e *InvalidRelationError) Is(target error) bool { return target == ErrInvalidRelation }
