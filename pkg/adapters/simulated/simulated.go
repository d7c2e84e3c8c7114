// Package simulated provides in-process collaborators for demos, the chat
// command and tests. Nothing leaves the process.
package simulated

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/vinculobrasil/flowbot/internal/logging"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/ports"
)

// ContractRecord is a contract together with the keys it can be found by.
type ContractRecord struct {
	CPF   string
	Phone string
	Email string
	domain.Contract
}

// Contracts is an in-memory ContractLookup.
type Contracts struct {
	mu      sync.RWMutex
	records []ContractRecord
}

// NewContracts seeds the lookup.
func NewContracts(records ...ContractRecord) *Contracts {
	return &Contracts{records: append([]ContractRecord(nil), records...)}
}

// Add registers another contract.
func (c *Contracts) Add(r ContractRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

func (c *Contracts) FindContracts(_ context.Context, identifyBy, value string) ([]domain.Contract, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.Contract
	for _, r := range c.records {
		var ok bool
		switch identifyBy {
		case "cpf":
			ok = digits(r.CPF) != "" && digits(r.CPF) == digits(value)
		case "phone":
			ok = phoneMatch(r.Phone, value)
		case "email":
			ok = r.Email != "" && strings.EqualFold(r.Email, strings.TrimSpace(value))
		default:
			return nil, fmt.Errorf("unsupported identifier %q", identifyBy)
		}
		if ok {
			out = append(out, r.Contract)
		}
	}
	return out, nil
}

// Leads is an in-memory LeadStore.
type Leads struct {
	mu    sync.Mutex
	leads []ports.LeadRecord
}

func NewLeads() *Leads { return &Leads{} }

func (l *Leads) Save(_ context.Context, lead ports.LeadRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leads = append(l.leads, lead)
	return nil
}

func (l *Leads) CheckDuplicate(_ context.Context, value, field, table string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, lead := range l.leads {
		if lead.Table == table && strings.EqualFold(lead.Fields[field], value) {
			return true, nil
		}
	}
	return false, nil
}

// All returns a copy of the saved leads.
func (l *Leads) All() []ports.LeadRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ports.LeadRecord(nil), l.leads...)
}

// Ticket is a hand-off received by Ticketing.
type Ticket struct {
	ID        string
	SessionID string
	Contact   domain.Contact
	Handoff   domain.Handoff
	At        time.Time
}

// Ticketing records hand-offs as tickets and logs them.
type Ticketing struct {
	mu      sync.Mutex
	tickets []Ticket
	logger  *slog.Logger
	now     func() time.Time
}

func NewTicketing(logger *slog.Logger) *Ticketing {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ticketing{logger: logger, now: time.Now}
}

func (t *Ticketing) Handoff(_ context.Context, sessionID string, contact domain.Contact, h domain.Handoff) error {
	ticket := Ticket{ID: uuid.NewString(), SessionID: sessionID, Contact: contact, Handoff: h, At: t.now()}
	t.mu.Lock()
	t.tickets = append(t.tickets, ticket)
	t.mu.Unlock()

	t.logger.Info("ticket opened",
		"ticket_id", ticket.ID,
		"session_id", sessionID,
		"target", h.TargetID,
		"priority", h.Priority,
		"reason", h.Reason,
	)
	return nil
}

// Tickets returns a copy of the opened tickets.
func (t *Ticketing) Tickets() []Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Ticket(nil), t.tickets...)
}

// Classifier marks contacts with a contract on their phone as clients and
// everyone else as leads.
type Classifier struct {
	Contracts ports.ContractLookup
}

func (c Classifier) Classify(ctx context.Context, contact domain.Contact, _ map[string]any) (string, error) {
	if c.Contracts == nil || contact.Phone == "" {
		return "lead", nil
	}
	found, err := c.Contracts.FindContracts(ctx, "phone", contact.Phone)
	if err != nil {
		return "", err
	}
	if len(found) > 0 {
		return "cliente", nil
	}
	return "lead", nil
}

// Media answers transcription, OCR and description requests with
// deterministic text derived from the reference.
type Media struct{}

func (Media) Transcribe(_ context.Context, audioRef, _ string) (string, error) {
	return "[transcrição] " + mediaName(audioRef), nil
}

func (Media) ExtractFields(_ context.Context, mediaRef, _ string, fields []string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f] = "simulado"
	}
	out["arquivo"] = mediaName(mediaRef)
	return out, nil
}

func (Media) Describe(_ context.Context, mediaRef string) (string, error) {
	return "Arquivo recebido: " + mediaName(mediaRef), nil
}

// Collaborators bundles every simulated collaborator. Completion is left
// nil so AI nodes use their fallback message unless an LLM is configured.
func Collaborators(logger *slog.Logger, contracts ...ContractRecord) ports.Collaborators {
	lookup := NewContracts(contracts...)
	return ports.Collaborators{
		Transcriber: Media{},
		OCR:         Media{},
		Describer:   Media{},
		Contracts:   lookup,
		Leads:       NewLeads(),
		Ticketing:   NewTicketing(logger),
		Classifier:  Classifier{Contracts: lookup},
	}
}

// DemoContracts are the sample contracts used by the chat command.
func DemoContracts() []ContractRecord {
	return []ContractRecord{
		{CPF: "12345678909", Phone: "5511988887777", Email: "ana@example.com",
			Contract: domain.Contract{ID: "CT-1001", Status: "ativo", Address: "Rua das Flores, 10 - São Paulo"}},
		{CPF: "12345678909", Phone: "5511988887777",
			Contract: domain.Contract{ID: "CT-1002", Status: "inadimplente", Address: "Av. Brasil, 200 - Campinas"}},
		{CPF: "98765432100", Phone: "5521977776666",
			Contract: domain.Contract{ID: "CT-2001", Status: "cancelado", Address: "Rua do Sol, 5 - Rio de Janeiro"}},
	}
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// phoneMatch compares the last 8 digits, which survive country and area
// code differences.
func phoneMatch(a, b string) bool {
	da, db := digits(a), digits(b)
	if len(da) < 8 || len(db) < 8 {
		return false
	}
	return da[len(da)-8:] == db[len(db)-8:]
}

func mediaName(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return ref
}
