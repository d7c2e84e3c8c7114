package ports

import (
	"context"
	"time"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// Completion produces an AI reply. A failure is treated as "no reply".
type Completion interface {
	Complete(ctx context.Context, systemPrompt, userMessage string, tools []string) (string, error)
}

// Transcriber converts an audio reference to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef, provider string) (string, error)
}

// FieldExtractor reads named fields out of an image or document (OCR).
type FieldExtractor interface {
	ExtractFields(ctx context.Context, mediaRef, provider string, fields []string) (map[string]string, error)
}

// MediaDescriber produces a textual description of an image or document.
type MediaDescriber interface {
	Describe(ctx context.Context, mediaRef string) (string, error)
}

// WebhookRequest is an outbound HTTP call issued by a Webhook or Lead
// Capture node.
type WebhookRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

// WebhookResponse is the raw outcome of a webhook call.
type WebhookResponse struct {
	StatusCode int
	Body       string
}

// WebhookInvoker performs outbound HTTP calls.
type WebhookInvoker interface {
	Call(ctx context.Context, req WebhookRequest) (*WebhookResponse, error)
}

// ContractLookup finds contracts by cpf, phone or email.
type ContractLookup interface {
	FindContracts(ctx context.Context, identifyBy, value string) ([]domain.Contract, error)
}

// LeadRecord is a completed lead capture.
type LeadRecord struct {
	Table     string            `json:"table"`
	Fields    map[string]string `json:"fields"`
	Source    string            `json:"source,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Contact   domain.Contact    `json:"contact"`
}

// LeadStore persists captured leads.
type LeadStore interface {
	Save(ctx context.Context, lead LeadRecord) error
	CheckDuplicate(ctx context.Context, value, field, table string) (bool, error)
}

// Ticketing receives sessions handed off to a human queue.
type Ticketing interface {
	Handoff(ctx context.Context, sessionID string, contact domain.Contact, h domain.Handoff) error
}

// ClientClassifier derives a client type when no prior step recorded one.
type ClientClassifier interface {
	Classify(ctx context.Context, contact domain.Contact, variables map[string]any) (string, error)
}

// Collaborators bundles every external dependency a node may call.
// A nil member behaves as an unavailable collaborator.
type Collaborators struct {
	Completion  Completion
	Transcriber Transcriber
	OCR         FieldExtractor
	Describer   MediaDescriber
	Webhooks    WebhookInvoker
	Contracts   ContractLookup
	Leads       LeadStore
	Ticketing   Ticketing
	Classifier  ClientClassifier
}
