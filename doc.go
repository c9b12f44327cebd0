/*
Package strata is a hierarchical prompt composition engine for building large-language-model prompts from reusable, versioned rules.

It organizes prompt text in three tiers: primitive rules (atomic instructions), semantic rules (templates that combine primitives) and task rules (top-level prompts that combine semantic rules). Resolving a task walks the hierarchy, memoizes every subtree in a bounded, TTL-aware cache, and renders the result bottom-up into final text framed for a target model.

# Concept

Strata treats a prompt as a tree of templates. Each level renders against the caller's variables plus the text of its rendered children, exposed as "primitive_rules" and "semantic_rules". Failures below the task level degrade gracefully: a primitive falls back to its raw content and a semantic rule to an inline marker, both reported as diagnostics on the Generation. This Hexagonal Architecture allows the engine to read rules from any backend (memory, YAML, Markdown, SQLite, Redis) and to be embedded in any interface: CLI, HTTP Server, or AI Agent infrastructure (MCP).

# Key Features

  - Deterministic Output: Given the same corpus and variables, a generation is byte-identical.
  - Memoized Resolution: A repeated request is served from cache without touching the store.
  - Graceful Degradation: Broken leaf templates never fail the whole prompt.
  - Corpus Validation: Structural, content and version checks over the whole rule set.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/strata"
		"github.com/aretw0/strata/pkg/dsl"
	)

	func main() {
		b := dsl.New()
		b.Primitive("P1").Category("instruction").Content("Be concise.")
		b.Semantic("S1").Content("{{ primitive_rules }} Focus: {{ topic }}").Uses("P1")
		b.Task("T1").Content("Task: {{ semantic_rules }}").Uses("S1")

		store, err := b.Build()
		if err != nil {
			log.Fatal(err)
		}

		sys, err := strata.New(store)
		if err != nil {
			log.Fatal(err)
		}

		gen, err := sys.Generate(context.Background(), "T1", map[string]any{"topic": "tests"}, "plain")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(gen.Text) // Task: Be concise. Focus: tests
	}
*/
package strata
