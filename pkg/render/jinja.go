package render

import (
	"io"
	"regexp"
	"slices"
	"sync"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/cockroachdb/errors"
	"github.com/flosch/pongo2/v6"
)

var registerOnce sync.Once

// registerFilters installs the rule-author filters into pongo2's global
// filter table and turns off HTML autoescaping, which would mangle prompts.
func registerFilters() {
	registerOnce.Do(func() {
		pongo2.SetAutoescape(false)
		filters := map[string]pongo2.FilterFunction{
			FilterJSONPretty: func(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
				return pongo2.AsValue(JSONPretty(in.Interface())), nil
			},
			FilterTruncateWords: func(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
				n := DefaultTruncateWords
				if param != nil && !param.IsNil() {
					n = param.Integer()
				}
				return pongo2.AsValue(TruncateWords(in.String(), n)), nil
			},
			FilterUpperFirst: func(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
				if !in.IsString() {
					return in, nil
				}
				return pongo2.AsValue(UpperFirst(in.String())), nil
			},
		}
		for name, fn := range filters {
			if pongo2.FilterExists(name) {
				_ = pongo2.ReplaceFilter(name, fn)
				continue
			}
			_ = pongo2.RegisterFilter(name, fn)
		}
	})
}

// noIncludes rejects {% include %}, {% extends %} and {% import %}: rule
// templates are self-contained strings.
type noIncludes struct{}

func (noIncludes) Abs(base, name string) string { return name }

func (noIncludes) Get(path string) (io.Reader, error) {
	return nil, errors.Newf("template %q: includes are not supported in rule templates", path)
}

// Jinja renders Django/Jinja-style templates with pongo2.
// Compiled templates are memoized by source.
type Jinja struct {
	set *pongo2.TemplateSet

	mu       sync.RWMutex
	compiled map[string]*pongo2.Template
}

var _ ports.Renderer = (*Jinja)(nil)

// NewJinja creates a pongo2-backed renderer with block trimming enabled.
func NewJinja() *Jinja {
	registerFilters()
	set := pongo2.NewSet("strata-rules", noIncludes{})
	set.Options.TrimBlocks = true
	set.Options.LStripBlocks = true
	return &Jinja{
		set:      set,
		compiled: make(map[string]*pongo2.Template),
	}
}

func (j *Jinja) compile(src string) (*pongo2.Template, error) {
	j.mu.RLock()
	tpl, ok := j.compiled[src]
	j.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if tpl, ok := j.compiled[src]; ok {
		return tpl, nil
	}
	tpl, err := j.set.FromString(src)
	if err != nil {
		return nil, &domain.TemplateSyntaxError{Err: err}
	}
	j.compiled[src] = tpl
	return tpl, nil
}

// Render executes the template. Variables whose names are not identifiers
// are not addressable from templates and are skipped.
func (j *Jinja) Render(src string, vars map[string]any) (string, error) {
	tpl, err := j.compile(src)
	if err != nil {
		return "", err
	}

	ctx := make(pongo2.Context, len(vars))
	for k, v := range vars {
		if identifier.MatchString(k) {
			ctx[k] = v
		}
	}
	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", errors.Wrap(err, "executing template")
	}
	return out, nil
}

var (
	jinjaExpr    = regexp.MustCompile(`\{\{-?\s*([A-Za-z_][A-Za-z0-9_]*)`)
	jinjaTagVar  = regexp.MustCompile(`\{%-?\s*(?:if|elif|for\s+[A-Za-z_][A-Za-z0-9_, ]*\s+in)\s+(?:not\s+)?([A-Za-z_][A-Za-z0-9_]*)`)
	jinjaLoopVar = regexp.MustCompile(`\{%-?\s*for\s+([A-Za-z_][A-Za-z0-9_]*)(?:\s*,\s*([A-Za-z_][A-Za-z0-9_]*))?\s+in`)
)

var jinjaReserved = map[string]bool{
	"true": true, "false": true, "none": true, "True": true, "False": true, "None": true,
	"not": true, "forloop": true, "loop": true,
}

// Validate parses the template and lists the top-level variables it references.
func (j *Jinja) Validate(src string) ports.TemplateValidation {
	if _, err := j.compile(src); err != nil {
		return ports.TemplateValidation{Valid: false, Variables: []string{}, Errors: []string{err.Error()}}
	}

	skip := make(map[string]bool, len(jinjaReserved))
	for k := range jinjaReserved {
		skip[k] = true
	}
	for _, m := range jinjaLoopVar.FindAllStringSubmatch(src, -1) {
		skip[m[1]] = true
		if m[2] != "" {
			skip[m[2]] = true
		}
	}

	vars := append(uniqueSorted(jinjaExpr, src, skip), uniqueSorted(jinjaTagVar, src, skip)...)
	slices.Sort(vars)
	return ports.TemplateValidation{Valid: true, Variables: slices.Compact(vars), Errors: []string{}}
}
