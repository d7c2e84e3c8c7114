package domain

// NodeConfig is the typed configuration of a node. The set of implementations
// is closed: one struct per Kind.
type NodeConfig interface {
	Kind() Kind
}

// ConfigFor returns an empty config value for k, or nil if k is unknown.
func ConfigFor(k Kind) NodeConfig {
	switch k {
	case KindStart:
		return &StartConfig{}
	case KindMessage:
		return &MessageConfig{}
	case KindInput:
		return &InputConfig{}
	case KindMenu:
		return &MenuConfig{}
	case KindCondition:
		return &ConditionConfig{}
	case KindAIAgent:
		return &AIAgentConfig{}
	case KindWelcomeAI:
		return &WelcomeAIConfig{}
	case KindHandoff:
		return &HandoffConfig{}
	case KindWebhook:
		return &WebhookConfig{}
	case KindDelay:
		return &DelayConfig{}
	case KindTag:
		return &TagConfig{}
	case KindVariable:
		return &VariableConfig{}
	case KindIdentifyContract:
		return &IdentifyContractConfig{}
	case KindClientTag:
		return &ClientTagConfig{}
	case KindLeadCapture:
		return &LeadCaptureConfig{}
	case KindEnd:
		return &EndConfig{}
	}
	return nil
}

type StartConfig struct{}

type MessageConfig struct {
	Text     string   `mapstructure:"text"`
	Messages []string `mapstructure:"messages"`
}

// Validation names accepted by Input nodes.
const (
	ValidateNone   = ""
	ValidateText   = "text"
	ValidateEmail  = "email"
	ValidateCPF    = "cpf"
	ValidatePhone  = "phone"
	ValidateNumber = "number"
	ValidateDate   = "date"
	ValidateName   = "name"
)

type InputConfig struct {
	Question     string `mapstructure:"question"`
	Variable     string `mapstructure:"variable"`
	Validation   string `mapstructure:"validation"`
	ErrorMessage string `mapstructure:"errorMessage"`
}

type MenuOption struct {
	ID    string `mapstructure:"id"`
	Label string `mapstructure:"label"`
	Value string `mapstructure:"value"`
}

type MenuConfig struct {
	Text           string       `mapstructure:"text"`
	Options        []MenuOption `mapstructure:"options"`
	Variable       string       `mapstructure:"variable"`
	InvalidMessage string       `mapstructure:"invalidMessage"`
}

// Condition operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpIsEmpty     = "is_empty"
	OpIsNotEmpty  = "is_not_empty"
	OpMatches     = "matches_regex"
)

type Condition struct {
	Variable string `mapstructure:"variable"`
	Operator string `mapstructure:"operator"`
	Value    string `mapstructure:"value"`
}

type ConditionConfig struct {
	Conditions []Condition `mapstructure:"conditions"`
}

type AIAgentConfig struct {
	SystemPrompt    string   `mapstructure:"systemPrompt"`
	Tools           []string `mapstructure:"tools"`
	Variable        string   `mapstructure:"variable"`
	FallbackMessage string   `mapstructure:"fallbackMessage"`
	Silent          bool     `mapstructure:"silent"`
}

// MediaKind classifies an inbound payload.
type MediaKind string

const (
	MediaText         MediaKind = "text"
	MediaAudio        MediaKind = "audio"
	MediaImage        MediaKind = "image"
	MediaPaymentProof MediaKind = "payment_proof"
	MediaDocument     MediaKind = "document"
)

type MediaCapability struct {
	Enabled  bool     `mapstructure:"enabled"`
	Provider string   `mapstructure:"provider"`
	Fields   []string `mapstructure:"fields"`
}

type SectorAI struct {
	ID       string   `mapstructure:"id"`
	Name     string   `mapstructure:"name"`
	Keywords []string `mapstructure:"keywords"`
}

type WelcomeAIConfig struct {
	Greeting        string                        `mapstructure:"greeting"`
	SystemPrompt    string                        `mapstructure:"systemPrompt"`
	FallbackMessage string                        `mapstructure:"fallbackMessage"`
	Capabilities    map[MediaKind]MediaCapability `mapstructure:"capabilities"`
	SmartRouting    bool                          `mapstructure:"smartRouting"`
	HandoffTriggers []string                      `mapstructure:"handoffTriggers"`
	HandoffMessage  string                        `mapstructure:"handoffMessage"`
	HandoffTarget   string                        `mapstructure:"handoffTarget"`
	SectorAIs       []SectorAI                    `mapstructure:"sectorAIs"`
}

type HandoffConfig struct {
	Message  string `mapstructure:"message"`
	TargetID string `mapstructure:"targetId"`
	Priority string `mapstructure:"priority"`
	Reason   string `mapstructure:"reason"`
}

type WebhookConfig struct {
	URL            string            `mapstructure:"url"`
	Method         string            `mapstructure:"method"`
	Headers        map[string]string `mapstructure:"headers"`
	Body           string            `mapstructure:"body"`
	Variable       string            `mapstructure:"variable"`
	TimeoutSeconds int               `mapstructure:"timeoutSeconds"`
}

type DelayConfig struct {
	Seconds         float64 `mapstructure:"seconds"`
	Milliseconds    int     `mapstructure:"milliseconds"`
	TypingIndicator bool    `mapstructure:"typingIndicator"`
}

// Tag actions.
const (
	TagAdd    = "add"
	TagRemove = "remove"
	TagToggle = "toggle"
)

type TagConfig struct {
	Action string `mapstructure:"action"`
	Tag    string `mapstructure:"tag"`
}

// Variable assignment modes.
const (
	VarStatic     = "static"
	VarExpression = "expression"
	VarCopy       = "copy"
)

type VariableConfig struct {
	Name   string `mapstructure:"name"`
	Mode   string `mapstructure:"mode"`
	Value  any    `mapstructure:"value"`
	Source string `mapstructure:"source"`
}

type IdentifyContractConfig struct {
	IdentifyBy       string `mapstructure:"identifyBy"`
	SourceVariable   string `mapstructure:"sourceVariable"`
	AskSelection     bool   `mapstructure:"askSelection"`
	FoundMessage     string `mapstructure:"foundMessage"`
	NotFoundMessage  string `mapstructure:"notFoundMessage"`
	SelectionMessage string `mapstructure:"selectionMessage"`
}

// Client tag derivation modes.
const (
	ClientTagLiteral = "literal"
	ClientTagCustom  = "custom"
	ClientTagAuto    = "auto"
)

type ClientTagConfig struct {
	Mode           string `mapstructure:"mode"`
	Type           string `mapstructure:"type"`
	Custom         string `mapstructure:"custom"`
	SourceVariable string `mapstructure:"sourceVariable"`
}

type LeadField struct {
	Name     string `mapstructure:"name"`
	Label    string `mapstructure:"label"`
	Kind     string `mapstructure:"kind"`
	Question string `mapstructure:"question"`
	Enabled  *bool  `mapstructure:"enabled"`
	Required bool   `mapstructure:"required"`
}

// IsEnabled treats an absent flag as enabled.
func (f LeadField) IsEnabled() bool { return f.Enabled == nil || *f.Enabled }

type LeadCaptureConfig struct {
	Fields           []LeadField `mapstructure:"fields"`
	DuplicateField   string      `mapstructure:"duplicateField"`
	Table            string      `mapstructure:"table"`
	Source           string      `mapstructure:"source"`
	Tags             []string    `mapstructure:"tags"`
	SaveToDatabase   bool        `mapstructure:"saveToDatabase"`
	WebhookURL       string      `mapstructure:"webhookUrl"`
	SuccessMessage   string      `mapstructure:"successMessage"`
	DuplicateMessage string      `mapstructure:"duplicateMessage"`
	ErrorMessage     string      `mapstructure:"errorMessage"`
	InvalidMessage   string      `mapstructure:"invalidMessage"`
}

// EnabledFields returns the fields that take part in the interview, in order.
func (c *LeadCaptureConfig) EnabledFields() []LeadField {
	out := make([]LeadField, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.IsEnabled() {
			out = append(out, f)
		}
	}
	return out
}

type EndConfig struct {
	Message  string `mapstructure:"message"`
	EndType  string `mapstructure:"endType"`
	Resolved bool   `mapstructure:"resolved"`
}

func (*StartConfig) Kind() Kind            { return KindStart }
func (*MessageConfig) Kind() Kind          { return KindMessage }
func (*InputConfig) Kind() Kind            { return KindInput }
func (*MenuConfig) Kind() Kind             { return KindMenu }
func (*ConditionConfig) Kind() Kind        { return KindCondition }
func (*AIAgentConfig) Kind() Kind          { return KindAIAgent }
func (*WelcomeAIConfig) Kind() Kind        { return KindWelcomeAI }
func (*HandoffConfig) Kind() Kind          { return KindHandoff }
func (*WebhookConfig) Kind() Kind          { return KindWebhook }
func (*DelayConfig) Kind() Kind            { return KindDelay }
func (*TagConfig) Kind() Kind              { return KindTag }
func (*VariableConfig) Kind() Kind         { return KindVariable }
func (*IdentifyContractConfig) Kind() Kind { return KindIdentifyContract }
func (*ClientTagConfig) Kind() Kind        { return KindClientTag }
func (*LeadCaptureConfig) Kind() Kind      { return KindLeadCapture }
func (*EndConfig) Kind() Kind              { return KindEnd }
