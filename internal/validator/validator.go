// Package validator lints flows before they are served: structural errors
// that would stop the flow from loading, plus warnings for nodes that can
// never run and handles that silently fall back to the first edge.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/graph"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding.
type Issue struct {
	Severity Severity `json:"severity"`
	NodeID   string   `json:"node_id,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	if i.NodeID == "" {
		return fmt.Sprintf("[%s] %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.NodeID, i.Message)
}

// Report collects the issues of one flow.
type Report struct {
	FlowID string  `json:"flow_id"`
	Issues []Issue `json:"issues"`
}

// HasErrors reports whether the flow would fail to load or run.
func (r *Report) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Err returns the errors as one error, or nil.
func (r *Report) Err() error {
	var lines []string
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			lines = append(lines, i.String())
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return fmt.Errorf("flow %q: found %d errors:\n- %s", r.FlowID, len(lines), strings.Join(lines, "\n- "))
}

func (r *Report) add(sev Severity, nodeID, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: sev, NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
}

// expectedHandles lists, per kind, the handles a handler can emit that
// deserve an explicit edge.
func expectedHandles(n *domain.Node) []string {
	switch cfg := n.Config.(type) {
	case *domain.ConditionConfig:
		return []string{domain.HandleTrue, domain.HandleFalse}
	case *domain.IdentifyContractConfig:
		return []string{domain.HandleFound, domain.HandleNotFound}
	case *domain.MenuConfig:
		var out []string
		for _, o := range cfg.Options {
			if o.ID != "" {
				out = append(out, o.ID)
			}
		}
		return out
	}
	return nil
}

// ValidateGraph checks g. Structural problems (those graph.Build rejects)
// are reported as a single error since nothing else can be checked.
func ValidateGraph(g *domain.Graph) *Report {
	r := &Report{}
	if g == nil {
		r.add(SeverityError, "", "nil flow")
		return r
	}
	r.FlowID = g.ID

	idx, err := graph.Build(g)
	if err != nil {
		var cfgErr *domain.ConfigError
		if errors.As(err, &cfgErr) {
			msg := cfgErr.Reason
			if cfgErr.Err != nil {
				msg = fmt.Sprintf("%s: %v", msg, cfgErr.Err)
			}
			r.add(SeverityError, cfgErr.NodeID, "%s", msg)
		} else {
			r.add(SeverityError, "", "%v", err)
		}
		return r
	}

	reachable := crawl(idx)

	for _, n := range idx.Nodes() {
		node, _ := idx.Node(n.ID)
		if !node.Kind.Known() {
			r.add(SeverityError, node.ID, "unknown node kind %q", node.Kind)
			continue
		}
		if !reachable[node.ID] {
			r.add(SeverityWarning, node.ID, "unreachable from the start node")
		}
		checkConfig(r, node)

		out := idx.Outgoing(node.ID)
		if len(out) > 0 && (node.Kind == domain.KindEnd || node.Kind == domain.KindHandoff) {
			r.add(SeverityWarning, node.ID, "%s node has outgoing edges that are never followed", node.Kind)
		}
		if len(out) == 0 {
			switch node.Kind {
			case domain.KindEnd, domain.KindHandoff:
			default:
				r.add(SeverityWarning, node.ID, "no outgoing edge; the conversation ends here")
			}
			continue
		}

		have := make(map[string]bool)
		for _, h := range idx.Handles(node.ID) {
			have[h] = true
		}
		for _, h := range expectedHandles(node) {
			if !have[h] {
				r.add(SeverityWarning, node.ID, "no edge for handle %q; falls back to the first edge", h)
			}
		}
	}
	return r
}

func checkConfig(r *Report, n *domain.Node) {
	switch cfg := n.Config.(type) {
	case *domain.MenuConfig:
		if len(cfg.Options) == 0 {
			r.add(SeverityError, n.ID, "menu has no options")
		}
	case *domain.WebhookConfig:
		if cfg.URL == "" {
			r.add(SeverityError, n.ID, "webhook has no url")
		}
	case *domain.VariableConfig:
		if cfg.Name == "" {
			r.add(SeverityError, n.ID, "variable node has no name")
		}
	case *domain.TagConfig:
		if cfg.Tag == "" {
			r.add(SeverityError, n.ID, "tag node has no tag")
		}
	case *domain.ConditionConfig:
		if len(cfg.Conditions) == 0 {
			r.add(SeverityWarning, n.ID, "condition has no rules and always takes the true branch")
		}
	case *domain.LeadCaptureConfig:
		if len(cfg.EnabledFields()) == 0 {
			r.add(SeverityWarning, n.ID, "lead capture has no enabled fields")
		}
	case *domain.InputConfig:
		if cfg.Question == "" {
			r.add(SeverityWarning, n.ID, "input has no question")
		}
	}
}

func crawl(idx *graph.Index) map[string]bool {
	visited := map[string]bool{}
	queue := []string{idx.Start().ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, e := range idx.Outgoing(id) {
			if !visited[e.Target] {
				queue = append(queue, e.Target)
			}
		}
	}
	return visited
}
