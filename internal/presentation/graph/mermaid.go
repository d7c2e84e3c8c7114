package graph

import (
	"fmt"
	"strings"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// GraphOverlay contains dynamic session data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromSession marks the nodes in the session history as visited and
// its current node as current.
func OverlayFromSession(sess *domain.Session) *GraphOverlay {
	if sess == nil {
		return nil
	}
	o := &GraphOverlay{CurrentNode: sess.CurrentNodeID}
	for _, step := range sess.History {
		o.VisitedNodes = append(o.VisitedNodes, step.NodeID)
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart from a flow. Shapes follow the
// node kind:
//   - start, end: ((circle))
//   - input, menu, lead_capture: [/parallelogram/]
//   - condition: {rhombus}
//   - handoff: {{hexagon}}
//   - calls to collaborators: [[subroutine]]
//
// Edges are labelled with their handle.
func GenerateMermaid(g *domain.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range g.Nodes {
		opener, closer := shape(node.Kind)
		label := node.ID
		if node.Label != "" && node.Label != node.ID {
			label = node.Label
		}
		fmt.Fprintf(&sb, "    %s%s\"%s <br/> <i>%s</i>\"%s\n",
			sanitizeMermaidID(node.ID), opener, escapeLabel(label), node.Kind, closer)
	}

	for _, e := range g.Edges {
		arrow := "-->"
		if e.Handle != "" {
			arrow = fmt.Sprintf("-- \"%s\" -->", escapeLabel(e.Handle))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.Source), arrow, sanitizeMermaidID(e.Target))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps contrast on both light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if safeID == "" || visited[safeID] {
				continue
			}
			visited[safeID] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func shape(k domain.Kind) (string, string) {
	switch k {
	case domain.KindStart, domain.KindEnd:
		return "((", "))"
	case domain.KindInput, domain.KindMenu, domain.KindLeadCapture:
		return "[/", "/]"
	case domain.KindCondition:
		return "{", "}"
	case domain.KindHandoff:
		return "{{", "}}"
	case domain.KindWebhook, domain.KindAIAgent, domain.KindWelcomeAI, domain.KindIdentifyContract:
		return "[[", "]]"
	}
	return "[", "]"
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}
