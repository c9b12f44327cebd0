// Package render provides the template renderers used to compose rules.
//
// The Jinja renderer (pongo2) is the default and understands the Django/Jinja
// syntax rule authors write ("{{ topic }}", "{% for %}", "{{ x|upper_first }}").
// The Go renderer executes text/template for corpora written in Go syntax.
// Both expose the json_pretty, truncate_words and upper_first filters.
package render

import (
	"regexp"
	"slices"

	"github.com/aretw0/strata/pkg/ports"
	"github.com/cockroachdb/errors"
)

// Engine names accepted by New.
const (
	EngineJinja = "jinja"
	EngineGo    = "go"
)

// New returns the renderer registered under name.
func New(name string) (ports.Renderer, error) {
	switch name {
	case "", EngineJinja:
		return NewJinja(), nil
	case EngineGo:
		return NewGoTemplate(), nil
	}
	return nil, errors.Newf("unknown render engine %q (expected %s or %s)", name, EngineJinja, EngineGo)
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// uniqueSorted collects the first capture group of every match.
func uniqueSorted(re *regexp.Regexp, src string, skip map[string]bool) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, m := range re.FindAllStringSubmatch(src, -1) {
		name := m[1]
		if skip[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
