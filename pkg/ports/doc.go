/*
Package ports defines the driven ports (interfaces) for the Strata rule engine.

These interfaces decouple the resolver, composer and validator from external
implementations, allowing the engine to work with various storage backends and
template languages.

# Key Interfaces

  - RuleStore: Point lookups of rules and their ordered child relations (resolution).
  - Corpus: Whole-corpus enumeration (validation, statistics, invalidation).
  - Writer: Record creation used by loaders, fixtures and administrative tools.
  - Renderer: Template rendering and syntax validation.
  - Watchable: Change notification for hot-reload.
*/
package ports
