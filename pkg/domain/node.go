package domain

// Kind is the discriminant of a node.
type Kind string

const (
	KindStart            Kind = "start"
	KindMessage          Kind = "message"
	KindInput            Kind = "input"
	KindMenu             Kind = "menu"
	KindCondition        Kind = "condition"
	KindAIAgent          Kind = "ai_agent"
	KindWelcomeAI        Kind = "welcome_ai"
	KindHandoff          Kind = "handoff"
	KindWebhook          Kind = "webhook"
	KindDelay            Kind = "delay"
	KindTag              Kind = "tag"
	KindVariable         Kind = "variable"
	KindIdentifyContract Kind = "identify_contract"
	KindClientTag        Kind = "client_tag"
	KindLeadCapture      Kind = "lead_capture"
	KindEnd              Kind = "end"
)

// Kinds lists every node kind the engine knows how to execute.
var Kinds = []Kind{
	KindStart, KindMessage, KindInput, KindMenu, KindCondition, KindAIAgent,
	KindWelcomeAI, KindHandoff, KindWebhook, KindDelay, KindTag, KindVariable,
	KindIdentifyContract, KindClientTag, KindLeadCapture, KindEnd,
}

// Known reports whether k is one of the supported kinds.
func (k Kind) Known() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Well-known edge handles.
const (
	HandleTrue      = "true"
	HandleFalse     = "false"
	HandleFound     = "found"
	HandleNotFound  = "not_found"
	HandleSuccess   = "success"
	HandleDuplicate = "duplicate"
	HandleError     = "error"
	HandleContinue  = "continue"
	HandleSectorAI  = "sector_ai"
	HandleHuman     = "human"
)

// Node is a unit of behavior in the conversation graph.
// Data is the untyped bag produced by the editor; Config is its typed form,
// populated when the graph is indexed.
type Node struct {
	ID     string         `json:"id" yaml:"id"`
	Kind   Kind           `json:"type" yaml:"type"`
	Label  string         `json:"label,omitempty" yaml:"label,omitempty"`
	Data   map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
	Config NodeConfig     `json:"-" yaml:"-"`
}

// Edge is a directed connection between two nodes.
// Handle disambiguates multiple outgoing edges of the same source.
type Edge struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Handle string `json:"sourceHandle,omitempty" yaml:"handle,omitempty"`
}

// Graph is a serialized flow. It is treated as immutable once loaded.
type Graph struct {
	ID      string `json:"id" yaml:"id"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes   []Node `json:"nodes" yaml:"nodes"`
	Edges   []Edge `json:"edges" yaml:"edges"`
}
