package render

import (
	"regexp"
	"strings"
	"text/template"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/cockroachdb/errors"
)

// GoTemplate renders text/template sources. Filters are exposed as template
// functions, so "{{ .summary | truncate_words 10 }}" works as expected.
type GoTemplate struct {
	funcs template.FuncMap
}

var _ ports.Renderer = (*GoTemplate)(nil)

// NewGoTemplate creates a text/template renderer.
func NewGoTemplate() *GoTemplate {
	return &GoTemplate{
		funcs: template.FuncMap{
			FilterJSONPretty: JSONPretty,
			FilterTruncateWords: func(n int, s string) string {
				return TruncateWords(s, n)
			},
			FilterUpperFirst: UpperFirst,
			"default":        defaultValue,
		},
	}
}

func (g *GoTemplate) parse(src string) (*template.Template, error) {
	tpl, err := template.New("rule").Funcs(g.funcs).Parse(src)
	if err != nil {
		return nil, &domain.TemplateSyntaxError{Err: err}
	}
	return tpl, nil
}

// Render executes the template with vars as its dot value.
func (g *GoTemplate) Render(src string, vars map[string]any) (string, error) {
	tpl, err := g.parse(src)
	if err != nil {
		return "", err
	}
	if vars == nil {
		vars = map[string]any{}
	}
	var sb strings.Builder
	if err := tpl.Execute(&sb, vars); err != nil {
		return "", errors.Wrap(err, "executing template")
	}
	// text/template prints a sentinel for absent map keys; pongo2 prints
	// nothing, and both engines must agree on the same corpus.
	return strings.ReplaceAll(sb.String(), noValue, ""), nil
}

const noValue = "<no value>"

// defaultValue returns fallback when v is nil or an empty string, mirroring
// the Jinja "default" filter: {{ .tone | default "neutral" }}.
func defaultValue(fallback, v any) any {
	if v == nil {
		return fallback
	}
	if s, ok := v.(string); ok && s == "" {
		return fallback
	}
	return v
}

var (
	goAction = regexp.MustCompile(`(?s)\{\{(.*?)\}\}`)
	goField  = regexp.MustCompile(`(?:^|[\s(|-])\.([A-Za-z_][A-Za-z0-9_]*)`)
)

// Validate parses the template and lists the top-level fields it references.
func (g *GoTemplate) Validate(src string) ports.TemplateValidation {
	if _, err := g.parse(src); err != nil {
		return ports.TemplateValidation{Valid: false, Variables: []string{}, Errors: []string{err.Error()}}
	}
	var fields strings.Builder
	for _, m := range goAction.FindAllStringSubmatch(src, -1) {
		fields.WriteString(" ")
		fields.WriteString(m[1])
	}
	return ports.TemplateValidation{Valid: true, Variables: uniqueSorted(goField, fields.String(), nil), Errors: []string{}}
}
