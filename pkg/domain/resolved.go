package domain

import "time"

// Link carries the relation metadata of a resolved child.
type Link struct {
	RelationID      int64   `json:"relation_id"`
	Weight          float64 `json:"weight"`
	OrderIndex      int     `json:"order_index"`
	IsRequired      bool    `json:"is_required"`
	ContextOverride string  `json:"context_override,omitempty"`
}

// LinkOf extracts the link metadata of a relation.
func LinkOf(rel Relation) Link {
	return Link{
		RelationID:      rel.ID,
		Weight:          rel.Weight,
		OrderIndex:      rel.OrderIndex,
		IsRequired:      rel.IsRequired,
		ContextOverride: rel.ContextOverride,
	}
}

// ResolvedNode is a rule together with its ordered, resolved children.
//
// Nodes may be shared through the cache and must be treated as immutable.
// Link is nil for the root of a resolution.
type ResolvedNode struct {
	Kind        Kind            `json:"kind"`
	Rule        Rule            `json:"rule"`
	Link        *Link           `json:"link,omitempty"`
	Children    []*ResolvedNode `json:"children,omitempty"`
	Unresolved  []Unresolved    `json:"unresolved,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	ResolvedAt  time.Time       `json:"resolved_at"`
}

// Unresolved records a relation whose child rule could not be found.
// The child is left out of the tree instead of failing the whole resolution.
type Unresolved struct {
	RelationID int64  `json:"relation_id"`
	Kind       Kind   `json:"kind"`
	ID         int64  `json:"id"`
	Reason     string `json:"reason"`
}

// WithLink returns a shallow copy of the node attached through the given link.
// Children are shared with the receiver.
func (n *ResolvedNode) WithLink(l Link) *ResolvedNode {
	cp := *n
	cp.Link = &l
	return &cp
}

// Walk visits the node and its descendants depth-first in order.
// Returning false from fn stops the descent below that node.
func (n *ResolvedNode) Walk(fn func(node *ResolvedNode, depth int) bool) {
	var visit func(node *ResolvedNode, depth int)
	visit = func(node *ResolvedNode, depth int) {
		if !fn(node, depth) {
			return
		}
		for _, c := range node.Children {
			visit(c, depth+1)
		}
	}
	visit(n, 0)
}

// Size counts the nodes of the tree.
func (n *ResolvedNode) Size() int {
	count := 0
	n.Walk(func(*ResolvedNode, int) bool {
		count++
		return true
	})
	return count
}

// Via names the semantic rule a transitive primitive dependency arrived through.
type Via struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Dependency is one flattened entry of a rule's dependency listing.
type Dependency struct {
	Type       Kind    `json:"type"`
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Weight     float64 `json:"weight"`
	OrderIndex int     `json:"order_index"`
	IsRequired bool    `json:"is_required"`
	Via        *Via    `json:"via,omitempty"`
}
