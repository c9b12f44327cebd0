/*
Package dsl provides a Go DSL (Domain Specific Language) for programmatically constructing Strata rule corpora.

It allows developers to declare primitive, semantic and task rules and the relations between
them by name, using a fluent builder instead of a rule file or database. This is particularly
useful for embedding a fixed corpus in a binary, for unit testing, and as the common target the
file loaders decode into.

Example usage:

	package main

	import (
		"github.com/aretw0/strata/pkg/dsl"
	)

	func main() {
		b := dsl.New()

		b.Primitive("concise").
			Category("instruction").
			Content("Be concise.")

		b.Semantic("focus").
			Content("{{ primitive_rules }} Focus: {{ topic }}").
			Uses("concise")

		b.Task("review").
			Domain("general").
			Content("Task: {{ semantic_rules }}").
			Uses("focus", dsl.Required(), dsl.Override(map[string]any{"topic": "tests"}))

		// The resulting store can be passed to strata.New(...)
		store, err := b.Build()
		// ...
	}
*/
package dsl
