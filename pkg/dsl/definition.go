package dsl

import (
	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// Definition is the declarative form of a rule, as written in YAML bundles
// and markdown frontmatter.
//
// Each entry of Uses is either a child name or a map decoded into a
// LinkDefinition.
type Definition struct {
	Kind        string              `mapstructure:"kind" yaml:"kind,omitempty"`
	Name        string              `mapstructure:"name" yaml:"name"`
	Description string              `mapstructure:"description" yaml:"description,omitempty"`
	Content     string              `mapstructure:"content" yaml:"content,omitempty"`
	Category    string              `mapstructure:"category" yaml:"category,omitempty"`
	Domain      string              `mapstructure:"domain" yaml:"domain,omitempty"`
	Language    string              `mapstructure:"language" yaml:"language,omitempty"`
	Framework   string              `mapstructure:"framework" yaml:"framework,omitempty"`
	Tags        []string            `mapstructure:"tags" yaml:"tags,omitempty"`
	Versions    []VersionDefinition `mapstructure:"versions" yaml:"versions,omitempty"`
	Uses        []any               `mapstructure:"uses" yaml:"uses,omitempty"`
}

// LinkDefinition is the long form of a Uses entry.
type LinkDefinition struct {
	Name     string         `mapstructure:"name"`
	Weight   *float64       `mapstructure:"weight"`
	Order    *int           `mapstructure:"order"`
	Required bool           `mapstructure:"required"`
	Override map[string]any `mapstructure:"context_override"`
}

// VersionDefinition is one version history entry of a Definition.
type VersionDefinition struct {
	Number int    `mapstructure:"number" yaml:"number"`
	Note   string `mapstructure:"note" yaml:"note,omitempty"`
}

// Define declares the rule described by def. kind is used when def.Kind is empty.
func (b *Builder) Define(kind domain.Kind, def Definition) (*RuleBuilder, error) {
	if def.Kind != "" {
		parsed, err := domain.ParseKind(def.Kind)
		if err != nil {
			return nil, err
		}
		kind = parsed
	}
	if !kind.Valid() {
		return nil, errors.Newf("rule %q has no kind", def.Name)
	}
	if def.Name == "" {
		return nil, errors.Newf("%s rule without a name", kind)
	}
	if _, exists := b.Lookup(kind, def.Name); exists {
		return nil, errors.Newf("%s rule %q defined twice", kind, def.Name)
	}

	rb := b.Add(kind, def.Name).
		Content(def.Content).
		Description(def.Description).
		Category(def.Category).
		Domain(def.Domain).
		Language(def.Language).
		Framework(def.Framework)
	if len(def.Tags) > 0 {
		rb.Tag(def.Tags...)
	}
	for _, v := range def.Versions {
		rb.Version(v.Number, v.Note)
	}

	for i, item := range def.Uses {
		switch v := item.(type) {
		case string:
			rb.Uses(v)
		case map[string]any, map[any]any:
			var l LinkDefinition
			if err := mapstructure.Decode(v, &l); err != nil {
				return nil, errors.Wrapf(err, "%s rule %q: uses[%d]", kind, def.Name, i)
			}
			if l.Name == "" {
				return nil, errors.Newf("%s rule %q: uses[%d] missing name", kind, def.Name, i)
			}
			rb.Uses(l.Name, l.options()...)
		default:
			return nil, errors.Newf("%s rule %q: uses[%d] has invalid type %T", kind, def.Name, i, v)
		}
	}
	return rb, rb.err
}

func (l LinkDefinition) options() []LinkOption {
	var opts []LinkOption
	if l.Weight != nil {
		opts = append(opts, Weight(*l.Weight))
	}
	if l.Order != nil {
		opts = append(opts, Order(*l.Order))
	}
	if l.Required {
		opts = append(opts, Required())
	}
	if len(l.Override) > 0 {
		opts = append(opts, Override(l.Override))
	}
	return opts
}

// Lookup returns the builder of a declared rule.
func (b *Builder) Lookup(kind domain.Kind, name string) (*RuleBuilder, bool) {
	rb, ok := b.index[kind][name]
	return rb, ok
}
