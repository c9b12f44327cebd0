package loam

import (
	"github.com/aretw0/strata/pkg/dsl"
)

// RuleMetadata is the frontmatter of a rule document. The document body is
// the rule template.
type RuleMetadata struct {
	Kind        string                  `json:"kind,omitempty" mapstructure:"kind"`
	Name        string                  `json:"name,omitempty" mapstructure:"name"`
	Description string                  `json:"description,omitempty" mapstructure:"description"`
	Category    string                  `json:"category,omitempty" mapstructure:"category"`
	Domain      string                  `json:"domain,omitempty" mapstructure:"domain"`
	Language    string                  `json:"language,omitempty" mapstructure:"language"`
	Framework   string                  `json:"framework,omitempty" mapstructure:"framework"`
	Tags        []string                `json:"tags,omitempty" mapstructure:"tags"`
	Versions    []dsl.VersionDefinition `json:"versions,omitempty" mapstructure:"versions"`

	// Uses lists child rules by name, or as maps with name, weight, order,
	// required and context_override keys.
	Uses []any `json:"uses,omitempty" mapstructure:"uses"`
}

func (m RuleMetadata) definition(name, content string) dsl.Definition {
	return dsl.Definition{
		Kind:        m.Kind,
		Name:        name,
		Description: m.Description,
		Content:     content,
		Category:    m.Category,
		Domain:      m.Domain,
		Language:    m.Language,
		Framework:   m.Framework,
		Tags:        m.Tags,
		Versions:    m.Versions,
		Uses:        m.Uses,
	}
}
