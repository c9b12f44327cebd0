package domain

import (
	"fmt"
)

// RelationKind names one of the two relation tables of the hierarchy.
type RelationKind string

const (
	RelationTaskSemantic      RelationKind = "task_semantic"
	RelationSemanticPrimitive RelationKind = "semantic_primitive"
)

// RelationKinds lists every relation kind from the top of the hierarchy down.
var RelationKinds = []RelationKind{RelationTaskSemantic, RelationSemanticPrimitive}

// Weight bounds for relations.
const (
	MinWeight = 0.0
	MaxWeight = 10.0
)

// Endpoints returns the parent and child rule kinds joined by the relation kind.
func (rk RelationKind) Endpoints() (parent Kind, child Kind) {
	switch rk {
	case RelationTaskSemantic:
		return KindTask, KindSemantic
	case RelationSemanticPrimitive:
		return KindSemantic, KindPrimitive
	}
	return "", ""
}

// RelationKindFor returns the relation kind whose parent side is the given rule kind.
func RelationKindFor(parent Kind) (RelationKind, bool) {
	switch parent {
	case KindTask:
		return RelationTaskSemantic, true
	case KindSemantic:
		return RelationSemanticPrimitive, true
	}
	return "", false
}

// Relation is a weighted, ordered edge from a parent rule to a child one level down.
type Relation struct {
	ID         int64   `json:"id" yaml:"id"`
	ParentKind Kind    `json:"parent_kind" yaml:"parent_kind"`
	ParentID   int64   `json:"parent_id" yaml:"parent_id"`
	ChildKind  Kind    `json:"child_kind" yaml:"child_kind"`
	ChildID    int64   `json:"child_id" yaml:"child_id"`
	Weight     float64 `json:"weight" yaml:"weight"`
	OrderIndex int     `json:"order_index" yaml:"order_index"`
	IsRequired bool    `json:"is_required" yaml:"is_required"`

	// ContextOverride is a raw JSON object of variable overrides (task_semantic only).
	ContextOverride string `json:"context_override,omitempty" yaml:"context_override,omitempty"`
}

// Type derives the relation kind from the endpoint kinds.
func (r Relation) Type() RelationKind {
	for _, rk := range RelationKinds {
		parent, child := rk.Endpoints()
		if r.ParentKind == parent && r.ChildKind == child {
			return rk
		}
	}
	return ""
}

// Parent returns the graph node name of the parent endpoint.
func (r Relation) Parent() string { return NodeName(r.ParentKind, r.ParentID) }

// Child returns the graph node name of the child endpoint.
func (r Relation) Child() string { return NodeName(r.ChildKind, r.ChildID) }

// Validate checks the relation invariants a store enforces at creation time.
func (r Relation) Validate() error {
	if r.Type() == "" {
		return &InvalidRelationError{Relation: r, Reason: fmt.Sprintf("%s cannot relate to %s", r.ParentKind, r.ChildKind)}
	}
	if r.Weight < MinWeight || r.Weight > MaxWeight {
		return &InvalidRelationError{Relation: r, Reason: fmt.Sprintf("weight %g outside [%g, %g]", r.Weight, MinWeight, MaxWeight)}
	}
	if r.OrderIndex < 0 {
		return &InvalidRelationError{Relation: r, Reason: fmt.Sprintf("negative order_index %d", r.OrderIndex)}
	}
	if r.ContextOverride != "" && r.Type() != RelationTaskSemantic {
		return &InvalidRelationError{Relation: r, Reason: "context_override is only allowed on task_semantic relations"}
	}
	return nil
}
