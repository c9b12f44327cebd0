package ports

// TemplateValidation is the result of checking a template without rendering it.
type TemplateValidation struct {
	Valid     bool     `json:"valid"`
	Variables []string `json:"variables"`
	Errors    []string `json:"errors"`
}

// Renderer renders rule templates against a variable mapping.
// Implementations must be safe for concurrent use.
type Renderer interface {
	// Render executes the template. Malformed templates fail with an error
	// matching domain.ErrTemplateSyntax.
	Render(template string, vars map[string]any) (string, error)

	// Validate parses the template and lists the top-level variables it references.
	Validate(template string) TemplateValidation
}
