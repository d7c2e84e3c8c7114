package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/ports"
	"github.com/vinculobrasil/flowbot/pkg/schema"
	"github.com/vinculobrasil/flowbot/pkg/vars"
)

var errNoResponse = errors.New("no response")

const (
	defaultWebhookVariable  = "webhook_response"
	defaultNotFoundMessage  = "Não encontramos nenhum contrato com os dados informados."
	defaultSelectionMessage = "Encontramos {contracts_count} contratos. Qual deles você deseja consultar?"
	defaultSelectionInvalid = "Opção inválida. Responda com o número do contrato."
	defaultLeadInvalid      = "Valor inválido para {field_label}. Pode tentar novamente?"
	defaultLeadSuccess      = "Obrigado! Seus dados foram registrados."
	defaultLeadDuplicate    = "Já temos um cadastro com esses dados. Em breve entraremos em contato."
	defaultLeadError        = "Não conseguimos registrar seus dados agora. Tente novamente mais tarde."
	defaultLeadTable        = "leads"
	defaultClientType       = "unknown"
)

func (e *Engine) handleWebhook(ctx context.Context, sess *domain.Session, node *domain.Node, cfg *domain.WebhookConfig) domain.StepResult {
	name := cfg.Variable
	if name == "" {
		name = defaultWebhookVariable
	}
	if e.collab.Webhooks == nil {
		return domain.StepResult{Success: false, Handle: domain.HandleError, Error: unavailable("webhook").Error()}
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	req := ports.WebhookRequest{
		URL:     vars.Resolve(cfg.URL, sess.Variables),
		Method:  method,
		Headers: vars.ResolveMap(cfg.Headers, sess.Variables),
		Body:    vars.Resolve(cfg.Body, sess.Variables),
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	var resp *ports.WebhookResponse
	err := e.call(ctx, sess, node, "webhook", req.Timeout, func(ctx context.Context) error {
		var err error
		resp, err = e.collab.Webhooks.Call(ctx, req)
		return err
	})
	err = checkWebhook(resp, err, "webhook "+req.Method+" "+req.URL)
	if err != nil {
		deltas := map[string]any{"webhook_error": err.Error()}
		if resp != nil {
			deltas["webhook_status"] = resp.StatusCode
			deltas[name] = resp.Body
		}
		return domain.StepResult{Success: false, Handle: domain.HandleError, Variables: deltas, Error: err.Error()}
	}

	deltas := map[string]any{
		name:             resp.Body,
		"webhook_status": resp.StatusCode,
	}
	var decoded any
	if json.Unmarshal([]byte(resp.Body), &decoded) == nil {
		if _, ok := decoded.(map[string]any); ok {
			deltas[name+"_data"] = decoded
		}
	}
	return domain.StepResult{Success: true, Variables: deltas}
}

// checkWebhook turns a call error, a missing response or an error status
// into a single error.
func checkWebhook(resp *ports.WebhookResponse, err error, what string) error {
	switch {
	case err != nil:
		return err
	case resp == nil:
		return fmt.Errorf("%s: %w", what, errNoResponse)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s: status %d", what, resp.StatusCode)
	}
	return nil
}

// identifier returns the lookup value for an Identify Contract node.
func identifier(sess *domain.Session, cfg *domain.IdentifyContractConfig) (string, string) {
	by := strings.ToLower(cfg.IdentifyBy)
	if by == "" {
		by = "cpf"
	}
	source := cfg.SourceVariable
	if source == "" {
		source = by
	}
	value := strings.TrimSpace(vars.String(sess.Variables, strings.Trim(source, "{}")))
	if value == "" && by == "phone" {
		value = sess.Contact.Phone
	}
	if by == "cpf" || by == "phone" {
		value = schema.Digits(value)
	}
	return by, value
}

func contractVariables(c domain.Contract, count int) map[string]any {
	record := map[string]any{
		"id":      c.ID,
		"address": c.Address,
		"status":  c.Status,
	}
	for k, v := range c.Extra {
		if _, taken := record[k]; !taken {
			record[k] = v
		}
	}
	return map[string]any{
		"contract":         record,
		"contract_id":      c.ID,
		"contract_status":  c.Status,
		"contract_address": c.Address,
		"contracts_count":  count,
	}
}

func selectionList(sess *domain.Session, cfg *domain.IdentifyContractConfig, candidates []domain.Contract) string {
	msg := cfg.SelectionMessage
	if msg == "" {
		msg = defaultSelectionMessage
	}
	scope := domain.CloneValues(sess.Variables)
	scope["contracts_count"] = len(candidates)

	var b strings.Builder
	b.WriteString(vars.Resolve(msg, scope))
	for i, c := range candidates {
		label := c.Address
		if label == "" {
			label = c.ID
		}
		if c.Status != "" {
			label += " (" + c.Status + ")"
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, label)
	}
	return b.String()
}

func (e *Engine) contractFound(sess *domain.Session, cfg *domain.IdentifyContractConfig, c domain.Contract, count int) domain.StepResult {
	deltas := contractVariables(c, count)
	scope := domain.CloneValues(sess.Variables)
	for k, v := range deltas {
		scope[k] = v
	}
	return domain.StepResult{
		Success:   true,
		Messages:  say(vars.Resolve(cfg.FoundMessage, scope)),
		Handle:    domain.HandleFound,
		Variables: deltas,
	}
}

func (e *Engine) handleIdentifyContract(ctx context.Context, sess *domain.Session, node *domain.Node, cfg *domain.IdentifyContractConfig, input *string) domain.StepResult {
	if p := pendingFor(sess, node); p != nil && len(p.Candidates) > 0 {
		list := selectionList(sess, cfg, p.Candidates)
		if input == nil {
			return domain.StepResult{Success: true, Messages: say(list), WaitForInput: true, Pending: &domain.Pending{Candidates: p.Candidates}}
		}
		n, err := strconv.Atoi(strings.TrimSpace(*input))
		if err != nil || n < 1 || n > len(p.Candidates) {
			return domain.StepResult{
				Success:      true,
				Messages:     say(defaultSelectionInvalid, list),
				WaitForInput: true,
				Pending:      &domain.Pending{Candidates: p.Candidates},
			}
		}
		return e.contractFound(sess, cfg, p.Candidates[n-1], len(p.Candidates))
	}

	by, value := identifier(sess, cfg)
	notFound := func() domain.StepResult {
		msg := cfg.NotFoundMessage
		if msg == "" {
			msg = defaultNotFoundMessage
		}
		return domain.StepResult{
			Success:   true,
			Messages:  say(vars.Resolve(msg, sess.Variables)),
			Handle:    domain.HandleNotFound,
			Variables: map[string]any{"contracts_count": 0},
		}
	}
	if value == "" {
		e.logger.Debug("no identifier for contract lookup", "node_id", node.ID, "identify_by", by)
		return notFound()
	}
	if e.collab.Contracts == nil {
		return domain.StepResult{Success: false, Handle: domain.HandleError, Error: unavailable("contract lookup").Error()}
	}

	var contracts []domain.Contract
	err := e.call(ctx, sess, node, "contract_lookup", 0, func(ctx context.Context) error {
		var err error
		contracts, err = e.collab.Contracts.FindContracts(ctx, by, value)
		return err
	})
	if err != nil {
		return domain.StepResult{Success: false, Handle: domain.HandleError, Error: fmt.Sprintf("contract lookup: %v", err)}
	}

	switch {
	case len(contracts) == 0:
		return notFound()
	case len(contracts) == 1 || !cfg.AskSelection:
		return e.contractFound(sess, cfg, contracts[0], len(contracts))
	}

	return domain.StepResult{
		Success:      true,
		Messages:     say(selectionList(sess, cfg, contracts)),
		Variables:    map[string]any{"contracts_count": len(contracts)},
		WaitForInput: true,
		Pending:      &domain.Pending{Candidates: contracts},
	}
}

// clientTypeFromStatus maps a contract status to a client classification.
func clientTypeFromStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "":
		return ""
	case "active", "ativo", "vigente":
		return "cliente_ativo"
	case "overdue", "inadimplente", "atrasado":
		return "inadimplente"
	case "inactive", "inativo", "cancelado", "encerrado", "finished":
		return "ex_cliente"
	}
	return "cliente"
}

func (e *Engine) handleClientTag(ctx context.Context, sess *domain.Session, node *domain.Node, cfg *domain.ClientTagConfig) domain.StepResult {
	mode := strings.ToLower(cfg.Mode)
	if mode == "" {
		switch {
		case cfg.Custom != "":
			mode = domain.ClientTagCustom
		case cfg.Type != "":
			mode = domain.ClientTagLiteral
		default:
			mode = domain.ClientTagAuto
		}
	}

	var clientType string
	switch mode {
	case domain.ClientTagLiteral:
		clientType = cfg.Type
	case domain.ClientTagCustom:
		clientType = vars.Resolve(cfg.Custom, sess.Variables)
	case domain.ClientTagAuto:
		clientType = e.detectClientType(ctx, sess, node, cfg)
	default:
		return domain.Failed(fmt.Sprintf("client tag node %s: unknown mode %q", node.ID, cfg.Mode))
	}
	if clientType == "" {
		clientType = defaultClientType
	}
	return domain.StepResult{Success: true, Variables: map[string]any{"client_type": clientType}}
}

func (e *Engine) detectClientType(ctx context.Context, sess *domain.Session, node *domain.Node, cfg *domain.ClientTagConfig) string {
	if cfg.SourceVariable != "" {
		if v := vars.String(sess.Variables, strings.Trim(cfg.SourceVariable, "{}")); v != "" {
			return v
		}
	}
	if v := vars.String(sess.Variables, "client_type_detected"); v != "" {
		return v
	}
	if t := clientTypeFromStatus(vars.String(sess.Variables, "contract_status")); t != "" {
		return t
	}
	if vars.String(sess.Variables, "contract_id") != "" {
		return "cliente"
	}

	if e.collab.Classifier == nil {
		return ""
	}
	var detected string
	err := e.call(ctx, sess, node, "client_classifier", 0, func(ctx context.Context) error {
		var err error
		detected, err = e.collab.Classifier.Classify(ctx, sess.Contact, sess.Variables)
		return err
	})
	if err != nil {
		return ""
	}
	return detected
}

var skipAnswers = map[string]bool{"pular": true, "skip": true, "-": true}

func leadFieldType(f domain.LeadField) schema.Type {
	if f.Kind != "" {
		return schema.Lookup(f.Kind)
	}
	return schema.Lookup(f.Name)
}

func leadQuestion(sess *domain.Session, f domain.LeadField) string {
	q := f.Question
	if q == "" {
		label := f.Label
		if label == "" {
			label = f.Name
		}
		q = "Informe seu " + label + ":"
	}
	return vars.Resolve(q, sess.Variables)
}

func (e *Engine) handleLeadCapture(ctx context.Context, sess *domain.Session, node *domain.Node, cfg *domain.LeadCaptureConfig, input *string) domain.StepResult {
	fields := cfg.EnabledFields()
	p := pendingFor(sess, node)

	if p == nil {
		if len(fields) == 0 {
			return e.finishLead(ctx, sess, node, cfg, fields, map[string]string{})
		}
		return domain.StepResult{
			Success:      true,
			Messages:     say(leadQuestion(sess, fields[0])),
			WaitForInput: true,
			Pending:      &domain.Pending{Cursor: 0, Answers: map[string]string{}},
		}
	}

	cursor := p.Cursor
	if cursor < 0 || cursor >= len(fields) {
		return domain.Failed(fmt.Sprintf("lead capture node %s: cursor %d out of range", node.ID, cursor))
	}
	field := fields[cursor]
	keep := &domain.Pending{Cursor: cursor, Answers: copyAnswers(p.Answers)}

	if input == nil {
		return domain.StepResult{Success: true, Messages: say(leadQuestion(sess, field)), WaitForInput: true, Pending: keep}
	}

	answer := strings.TrimSpace(*input)
	if !(skipAnswers[strings.ToLower(answer)] && !field.Required) {
		if err := leadFieldType(field).Validate(answer); err != nil {
			e.logger.Debug("lead answer rejected", "node_id", node.ID, "field", field.Name, "err", err)
			msg := cfg.InvalidMessage
			if msg == "" {
				msg = defaultLeadInvalid
			}
			scope := domain.CloneValues(sess.Variables)
			scope["field_label"] = firstNonEmpty(field.Label, field.Name)
			return domain.StepResult{
				Success:      true,
				Messages:     say(vars.Resolve(msg, scope), leadQuestion(sess, field)),
				WaitForInput: true,
				Pending:      keep,
			}
		}
	} else {
		answer = ""
	}

	keep.Answers[field.Name] = answer
	keep.Cursor++
	if keep.Cursor < len(fields) {
		return domain.StepResult{
			Success:      true,
			Messages:     say(leadQuestion(sess, fields[keep.Cursor])),
			WaitForInput: true,
			Pending:      keep,
		}
	}
	return e.finishLead(ctx, sess, node, cfg, fields, keep.Answers)
}

func (e *Engine) finishLead(ctx context.Context, sess *domain.Session, node *domain.Node, cfg *domain.LeadCaptureConfig, fields []domain.LeadField, answers map[string]string) domain.StepResult {
	leadData := make(map[string]any, len(answers))
	deltas := map[string]any{}
	for k, v := range answers {
		leadData[k] = v
		deltas[k] = v
	}
	deltas["lead_data"] = leadData

	scope := domain.CloneValues(sess.Variables)
	for k, v := range deltas {
		scope[k] = v
	}
	route := func(handle, msg, fallback string) domain.StepResult {
		if msg == "" {
			msg = fallback
		}
		return domain.StepResult{
			Success:   true,
			Messages:  say(vars.Resolve(msg, scope)),
			Handle:    handle,
			Variables: deltas,
		}
	}
	fail := func(err error) domain.StepResult {
		deltas["lead_saved"] = false
		deltas["lead_error"] = err.Error()
		return route(domain.HandleError, cfg.ErrorMessage, defaultLeadError)
	}

	checks := make([]schema.Field, len(fields))
	for i, f := range fields {
		checks[i] = schema.Field{Name: f.Name, Label: f.Label, Type: leadFieldType(f), Optional: !f.Required}
	}
	if err := schema.Check(checks, answers); err != nil {
		// Answers collected under an older revision of the node.
		e.logger.Warn("lead answers rejected", "node_id", node.ID, "err", err)
		deltas["lead_field_errors"] = schema.AsFieldErrors(err).ByField()
		return fail(err)
	}

	table := cfg.Table
	if table == "" {
		table = defaultLeadTable
	}

	if cfg.DuplicateField != "" && answers[cfg.DuplicateField] != "" {
		if e.collab.Leads == nil {
			return fail(unavailable("lead store"))
		}
		var dup bool
		err := e.call(ctx, sess, node, "lead_duplicate_check", 0, func(ctx context.Context) error {
			var err error
			dup, err = e.collab.Leads.CheckDuplicate(ctx, answers[cfg.DuplicateField], cfg.DuplicateField, table)
			return err
		})
		if err != nil {
			return fail(err)
		}
		if dup {
			deltas["lead_saved"] = false
			return route(domain.HandleDuplicate, cfg.DuplicateMessage, defaultLeadDuplicate)
		}
	}

	record := ports.LeadRecord{
		Table:     table,
		Fields:    copyAnswers(answers),
		Source:    cfg.Source,
		Tags:      cfg.Tags,
		SessionID: sess.ID,
		Contact:   sess.Contact,
	}

	if cfg.SaveToDatabase {
		if e.collab.Leads == nil {
			return fail(unavailable("lead store"))
		}
		err := e.call(ctx, sess, node, "lead_save", 0, func(ctx context.Context) error {
			return e.collab.Leads.Save(ctx, record)
		})
		if err != nil {
			return fail(err)
		}
	}

	if cfg.WebhookURL != "" {
		if e.collab.Webhooks == nil {
			return fail(unavailable("webhook"))
		}
		body, err := json.Marshal(record)
		if err != nil {
			return fail(err)
		}
		req := ports.WebhookRequest{
			URL:     vars.Resolve(cfg.WebhookURL, scope),
			Method:  http.MethodPost,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    string(body),
		}
		var resp *ports.WebhookResponse
		err = e.call(ctx, sess, node, "webhook", 0, func(ctx context.Context) error {
			var err error
			resp, err = e.collab.Webhooks.Call(ctx, req)
			return err
		})
		if err := checkWebhook(resp, err, "lead webhook"); err != nil {
			return fail(err)
		}
	}

	deltas["lead_saved"] = cfg.SaveToDatabase || cfg.WebhookURL != ""
	return route(domain.HandleSuccess, cfg.SuccessMessage, defaultLeadSuccess)
}

func copyAnswers(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
