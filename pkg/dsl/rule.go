package dsl

import (
	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
)

type link struct {
	name string
	opts []LinkOption
}

// RuleBuilder provides a fluent API for configuring a rule.
type RuleBuilder struct {
	rule     domain.Rule
	links    []link
	versions []domain.RuleVersion
	tags     []string
	err      error
}

// Content sets the template of the rule.
func (r *RuleBuilder) Content(content string) *RuleBuilder {
	r.rule.Content = content
	return r
}

// Description sets the human description of the rule.
func (r *RuleBuilder) Description(text string) *RuleBuilder {
	r.rule.Description = text
	return r
}

// Category sets the category of a primitive or semantic rule.
func (r *RuleBuilder) Category(category string) *RuleBuilder {
	r.rule.Category = category
	return r
}

// Domain sets the domain of a task rule.
func (r *RuleBuilder) Domain(domain string) *RuleBuilder {
	r.rule.Domain = domain
	return r
}

// Language sets the programming language a semantic or task rule targets.
func (r *RuleBuilder) Language(language string) *RuleBuilder {
	r.rule.Language = language
	return r
}

// Framework sets the framework a semantic or task rule targets.
func (r *RuleBuilder) Framework(framework string) *RuleBuilder {
	r.rule.Framework = framework
	return r
}

// Uses relates the rule to a child one level down, by name. Children are
// ordered by declaration unless Order is given.
func (r *RuleBuilder) Uses(name string, opts ...LinkOption) *RuleBuilder {
	if _, ok := r.rule.Kind.Child(); !ok {
		r.err = errors.Newf("%s rules have no children (uses %q)", r.rule.Kind, name)
		return r
	}
	r.links = append(r.links, link{name: name, opts: opts})
	return r
}

// Version appends an entry to the version history and makes it current.
func (r *RuleBuilder) Version(number int, note string) *RuleBuilder {
	r.rule.Version = number
	r.versions = append(r.versions, domain.RuleVersion{
		Number:     number,
		Content:    r.rule.Content,
		ChangeNote: note,
	})
	return r
}

// Tag attaches free-form tags to the rule.
func (r *RuleBuilder) Tag(tags ...string) *RuleBuilder {
	r.tags = append(r.tags, tags...)
	return r
}

// Build returns the underlying domain.Rule.
// This is primarily used by the Builder, but exposed for advanced usage.
func (r *RuleBuilder) Build() domain.Rule {
	return r.rule
}
