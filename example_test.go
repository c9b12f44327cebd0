package strata_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/dsl"
)

// ExampleNew_memory demonstrates how to use the System with an in-memory corpus.
// This is useful for testing, embedded scenarios, or when you don't want to rely on the file system.
func ExampleNew_memory() {
	// 1. Declare the corpus with the DSL.
	b := dsl.New()
	b.Primitive("P1").Category("instruction").Content("Be concise.")
	b.Semantic("S1").Content("{{ primitive_rules }} Focus: {{ topic }}").Uses("P1")
	b.Task("T1").Content("Task: {{ semantic_rules }}").Uses("S1")

	store, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	// 2. Initialize Strata over the store.
	sys, err := strata.New(store)
	if err != nil {
		log.Fatal(err)
	}

	// 3. Generate twice: the second call is served from cache.
	ctx := context.Background()
	vars := map[string]any{"topic": "tests"}
	first, err := sys.Generate(ctx, "T1", vars, "plain")
	if err != nil {
		log.Fatal(err)
	}
	second, err := sys.Generate(ctx, "T1", vars, "claude")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(first.Text)
	fmt.Println(second.Cached, second.RawText == first.RawText)
	fmt.Println(sys.CacheStats().Hits)
	// Output:
	// Task: Be concise. Focus: tests
	// true true
	// 1
}
