/*
Package domain contains the core domain models for the Strata rule engine.

It defines the three rule kinds of the hierarchy, the weighted relations that
connect them, the transient resolved tree produced by the resolver and the
reports produced by validation. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Rule: A named template of one Kind (primitive, semantic or task).
  - Relation: An ordered, weighted edge from a rule to a child one level down.
  - ResolvedNode: An immutable snapshot of a rule and its resolved children.
  - Generation: The result of composing a task rule into final text.
  - Report: The outcome of a full validation pass over the corpus.
*/
package domain
