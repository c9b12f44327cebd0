package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
)

// Overlay contains generation results to visualize on the graph.
type Overlay struct {
	// Degraded lists node names (domain.NodeName) that rendered with a diagnostic.
	Degraded []string
}

// OverlayOf marks every rule named by a diagnostic of gen.
func OverlayOf(gen *domain.Generation) *Overlay {
	if gen == nil {
		return nil
	}
	o := &Overlay{}
	for _, d := range gen.Diagnostics {
		o.Degraded = append(o.Degraded, domain.NodeName(d.Kind, d.RuleID))
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of a resolved rule tree.
// It applies semantic styling:
// - Task: ((Circle))
// - Semantic: [Rectangle]
// - Primitive: [/Parallelogram/]
// - Missing child: {{Hexagon}} with a dotted edge
// Required links use thick arrows and non-default weights label the edge.
// A rule shared by several parents is declared once.
func GenerateMermaid(tree *domain.ResolvedNode, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	if tree == nil {
		return sb.String()
	}

	declared := make(map[string]bool)
	declare := func(n *domain.ResolvedNode) string {
		id := domain.NodeName(n.Kind, n.Rule.ID)
		if declared[id] {
			return id
		}
		declared[id] = true

		opener, closer := "[", "]"
		switch n.Kind {
		case domain.KindTask:
			opener, closer = "((", "))"
		case domain.KindPrimitive:
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", id, opener, escape(n.Rule.Name), closer)
		return id
	}

	var visit func(n *domain.ResolvedNode)
	visit = func(n *domain.ResolvedNode) {
		from := declare(n)
		for _, c := range n.Children {
			to := declare(c)
			fmt.Fprintf(&sb, "    %s %s %s\n", from, arrow(c.Link), to)
			visit(c)
		}
		for _, u := range n.Unresolved {
			missing := "missing_" + domain.NodeName(u.Kind, u.ID)
			if !declared[missing] {
				declared[missing] = true
				fmt.Fprintf(&sb, "    %s{{\"%s %d (missing)\"}}\n", missing, u.Kind, u.ID)
				fmt.Fprintf(&sb, "    class %s missing;\n", missing)
			}
			fmt.Fprintf(&sb, "    %s -.-> %s\n", from, missing)
		}
	}
	visit(tree)

	sb.WriteString("    classDef missing fill:#ffebee,stroke:#c62828,stroke-dasharray:4 2,color:#000;\n")

	if overlay != nil && len(overlay.Degraded) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef degraded fill:#fff3e0,stroke:#ef6c00,stroke-width:3px,color:#000;\n")
		seen := make(map[string]bool)
		for _, id := range overlay.Degraded {
			if seen[id] || !declared[id] {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&sb, "    class %s degraded;\n", id)
		}
	}
	return sb.String()
}

func arrow(link *domain.Link) string {
	if link == nil {
		return "-->"
	}
	label := ""
	if link.Weight != 1 {
		label = fmt.Sprintf("w=%g", link.Weight)
	}
	if link.ContextOverride != "" {
		label = strings.TrimSpace(label + " override")
	}
	switch {
	case link.IsRequired && label != "":
		return fmt.Sprintf("== \"%s\" ==>", label)
	case link.IsRequired:
		return "==>"
	case label != "":
		return fmt.Sprintf("-- \"%s\" -->", label)
	}
	return "-->"
}

// escape replaces double quotes, which would close a Mermaid label.
func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
