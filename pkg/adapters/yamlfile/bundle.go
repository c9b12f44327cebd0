// Package yamlfile loads a rule corpus from a single YAML bundle and reloads
// it when the file changes.
//
// A bundle lists rules per kind; relations are written by child name under
// each parent:
//
//	primitives:
//	  - name: concise
//	    category: instruction
//	    content: Be concise.
//	semantics:
//	  - name: review
//	    content: "Review guidelines: {{ primitive_rules }}"
//	    uses: [concise]
//	tasks:
//	  - name: pr_review
//	    content: "{{ semantic_rules }}"
//	    uses:
//	      - name: review
//	        weight: 2
//	        context_override: {tone: formal}
//	tags:
//	  - {kind: task, rule: pr_review, tag: github}
package yamlfile

import (
	"bytes"
	"context"
	"io"
	"os"
	"slices"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/dsl"
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Bundle is the decoded form of a corpus file.
type Bundle struct {
	Primitives []dsl.Definition `mapstructure:"primitives" yaml:"primitives,omitempty"`
	Semantics  []dsl.Definition `mapstructure:"semantics" yaml:"semantics,omitempty"`
	Tasks      []dsl.Definition `mapstructure:"tasks" yaml:"tasks,omitempty"`
	Versions   []VersionRef     `mapstructure:"versions" yaml:"versions,omitempty"`
	Tags       []TagRef         `mapstructure:"tags" yaml:"tags,omitempty"`
}

// VersionRef adds a version history entry to a rule declared elsewhere in the bundle.
type VersionRef struct {
	Kind   string `mapstructure:"kind" yaml:"kind"`
	Rule   string `mapstructure:"rule" yaml:"rule"`
	Number int    `mapstructure:"number" yaml:"number"`
	Note   string `mapstructure:"note" yaml:"note,omitempty"`
}

// TagRef tags a rule declared elsewhere in the bundle.
type TagRef struct {
	Kind string `mapstructure:"kind" yaml:"kind"`
	Rule string `mapstructure:"rule" yaml:"rule"`
	Tag  string `mapstructure:"tag" yaml:"tag"`
}

// Decode reads a bundle from r. Unknown keys are rejected.
func Decode(r io.Reader) (*Bundle, error) {
	var raw map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "parse yaml")
	}

	var bundle Bundle
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &bundle,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "decode bundle")
	}
	return &bundle, nil
}

// Builder declares every rule of the bundle.
func (b *Bundle) Builder() (*dsl.Builder, error) {
	builder := dsl.New()
	sections := []struct {
		kind domain.Kind
		defs []dsl.Definition
	}{
		{domain.KindPrimitive, b.Primitives},
		{domain.KindSemantic, b.Semantics},
		{domain.KindTask, b.Tasks},
	}
	for _, section := range sections {
		for i, def := range section.defs {
			if def.Kind != "" && def.Kind != string(section.kind) {
				return nil, errors.Newf("%s[%d] %q declares kind %q", section.kind, i, def.Name, def.Kind)
			}
			if _, err := builder.Define(section.kind, def); err != nil {
				return nil, err
			}
		}
	}

	for _, v := range b.Versions {
		rb, err := lookup(builder, v.Kind, v.Rule)
		if err != nil {
			return nil, errors.Wrapf(err, "version %d", v.Number)
		}
		rb.Version(v.Number, v.Note)
	}
	for _, t := range b.Tags {
		rb, err := lookup(builder, t.Kind, t.Rule)
		if err != nil {
			return nil, errors.Wrapf(err, "tag %q", t.Tag)
		}
		rb.Tag(t.Tag)
	}
	return builder, nil
}

// Definitions returns the rules of the bundle per kind, with bundle-level
// versions and tags folded into their rule.
func (b *Bundle) Definitions() (map[domain.Kind][]dsl.Definition, error) {
	defs := map[domain.Kind][]dsl.Definition{
		domain.KindPrimitive: slices.Clone(b.Primitives),
		domain.KindSemantic:  slices.Clone(b.Semantics),
		domain.KindTask:      slices.Clone(b.Tasks),
	}
	find := func(kindName, name string) (*dsl.Definition, error) {
		kind, err := domain.ParseKind(kindName)
		if err != nil {
			return nil, err
		}
		for i := range defs[kind] {
			if defs[kind][i].Name == name {
				return &defs[kind][i], nil
			}
		}
		return nil, &domain.NotFoundError{Kind: kind, Name: name}
	}

	for _, v := range b.Versions {
		def, err := find(v.Kind, v.Rule)
		if err != nil {
			return nil, errors.Wrapf(err, "version %d", v.Number)
		}
		def.Versions = append(slices.Clone(def.Versions), dsl.VersionDefinition{Number: v.Number, Note: v.Note})
	}
	for _, t := range b.Tags {
		def, err := find(t.Kind, t.Rule)
		if err != nil {
			return nil, errors.Wrapf(err, "tag %q", t.Tag)
		}
		def.Tags = append(slices.Clone(def.Tags), t.Tag)
	}
	return defs, nil
}

func lookup(b *dsl.Builder, kindName, name string) (*dsl.RuleBuilder, error) {
	kind, err := domain.ParseKind(kindName)
	if err != nil {
		return nil, err
	}
	rb, ok := b.Lookup(kind, name)
	if !ok {
		return nil, &domain.NotFoundError{Kind: kind, Name: name}
	}
	return rb, nil
}

// Parse builds an in-memory store from bundle bytes.
func Parse(ctx context.Context, data []byte) (*memory.Store, error) {
	bundle, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	builder, err := bundle.Builder()
	if err != nil {
		return nil, err
	}
	store := memory.NewStore()
	if err := builder.Apply(ctx, store); err != nil {
		return nil, err
	}
	return store, nil
}

// Load builds an in-memory store from the bundle at path.
func Load(ctx context.Context, path string) (*memory.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	store, err := Parse(ctx, data)
	return store, errors.Wrapf(err, "load %s", path)
}
