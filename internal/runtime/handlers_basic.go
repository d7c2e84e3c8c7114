package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/schema"
	"github.com/vinculobrasil/flowbot/pkg/vars"
)

const (
	defaultInputError     = "Não entendi sua resposta. Pode tentar novamente?"
	defaultMenuInvalid    = "Opção inválida. Por favor, escolha uma das opções abaixo:"
	defaultMenuVariable   = "menu_choice"
	defaultInputVariable  = "user_input"
	defaultHandoffMessage = "Estou transferindo você para um de nossos atendentes. Aguarde um momento."
	defaultHandoffPrio    = "normal"
	defaultEndType        = "completed"
)

// pendingFor returns the session's resumable state if it belongs to node.
func pendingFor(sess *domain.Session, node *domain.Node) *domain.Pending {
	if sess.Pending == nil || sess.Pending.NodeID != node.ID {
		return nil
	}
	return sess.Pending
}

func say(texts ...string) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) handleMessage(sess *domain.Session, cfg *domain.MessageConfig) domain.StepResult {
	texts := cfg.Messages
	if len(texts) == 0 {
		texts = []string{cfg.Text}
	}
	msgs := make([]string, 0, len(texts))
	for _, t := range texts {
		msgs = append(msgs, vars.Resolve(t, sess.Variables))
	}
	return domain.StepResult{Success: true, Messages: say(msgs...)}
}

func (e *Engine) handleInput(sess *domain.Session, node *domain.Node, cfg *domain.InputConfig, input *string) domain.StepResult {
	question := vars.Resolve(cfg.Question, sess.Variables)
	if input == nil {
		return domain.StepResult{Success: true, Messages: say(question), WaitForInput: true}
	}

	answer := strings.TrimSpace(*input)
	if err := schema.Lookup(cfg.Validation).Validate(answer); err != nil {
		e.logger.Debug("input rejected", "node_id", node.ID, "validation", cfg.Validation, "err", err)
		msg := cfg.ErrorMessage
		if msg == "" {
			msg = defaultInputError
		}
		return domain.StepResult{Success: true, Messages: say(vars.Resolve(msg, sess.Variables)), WaitForInput: true}
	}

	name := cfg.Variable
	if name == "" {
		name = defaultInputVariable
	}
	return domain.StepResult{Success: true, Variables: map[string]any{name: answer}}
}

func menuPrompt(sess *domain.Session, cfg *domain.MenuConfig) string {
	var b strings.Builder
	b.WriteString(vars.Resolve(cfg.Text, sess.Variables))
	for i, opt := range cfg.Options {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, vars.Resolve(opt.Label, sess.Variables))
	}
	return b.String()
}

// matchOption resolves an answer to a menu option: by 1-based index, then by
// exact label/value/id, then by case-insensitive substring.
func matchOption(options []domain.MenuOption, answer string) (int, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(options) {
			return n - 1, true
		}
		return 0, false
	}

	for i, opt := range options {
		if strings.EqualFold(answer, opt.Label) || (opt.Value != "" && strings.EqualFold(answer, opt.Value)) || (opt.ID != "" && strings.EqualFold(answer, opt.ID)) {
			return i, true
		}
	}

	lower := strings.ToLower(answer)
	for i, opt := range options {
		for _, cand := range []string{opt.Label, opt.Value} {
			c := strings.ToLower(strings.TrimSpace(cand))
			if c == "" {
				continue
			}
			if strings.Contains(lower, c) || (len([]rune(lower)) >= 3 && strings.Contains(c, lower)) {
				return i, true
			}
		}
	}
	return 0, false
}

func (e *Engine) handleMenu(sess *domain.Session, cfg *domain.MenuConfig, input *string) domain.StepResult {
	prompt := menuPrompt(sess, cfg)
	if input == nil {
		return domain.StepResult{Success: true, Messages: say(prompt), WaitForInput: true}
	}

	i, ok := matchOption(cfg.Options, *input)
	if !ok {
		msg := cfg.InvalidMessage
		if msg == "" {
			msg = defaultMenuInvalid
		}
		return domain.StepResult{
			Success:      true,
			Messages:     say(vars.Resolve(msg, sess.Variables), prompt),
			WaitForInput: true,
		}
	}

	opt := cfg.Options[i]
	name := cfg.Variable
	if name == "" {
		name = defaultMenuVariable
	}
	value := opt.Value
	if value == "" {
		value = opt.Label
	}
	return domain.StepResult{
		Success: true,
		Handle:  opt.ID,
		Variables: map[string]any{
			name:           value,
			name + "_id":    opt.ID,
			name + "_label": opt.Label,
		},
	}
}

func (e *Engine) handleHandoff(sess *domain.Session, cfg *domain.HandoffConfig) domain.StepResult {
	msg := cfg.Message
	if msg == "" {
		msg = defaultHandoffMessage
	}
	prio := cfg.Priority
	if prio == "" {
		prio = defaultHandoffPrio
	}
	h := &domain.Handoff{
		TargetID: vars.Resolve(cfg.TargetID, sess.Variables),
		Priority: prio,
		Reason:   vars.Resolve(cfg.Reason, sess.Variables),
	}
	return domain.StepResult{
		Success:  true,
		Messages: say(vars.Resolve(msg, sess.Variables)),
		Variables: map[string]any{
			"handoff_target":   h.TargetID,
			"handoff_priority": h.Priority,
			"handoff_reason":   h.Reason,
		},
		Handoff: h,
	}
}

func (e *Engine) handleDelay(ctx context.Context, cfg *domain.DelayConfig) domain.StepResult {
	d := time.Duration(cfg.Seconds*float64(time.Second)) + time.Duration(cfg.Milliseconds)*time.Millisecond
	if err := e.sleep(ctx, d); err != nil {
		return domain.Failed(fmt.Sprintf("delay interrupted: %v", err))
	}
	return domain.StepResult{Success: true}
}

func (e *Engine) handleTag(sess *domain.Session, cfg *domain.TagConfig) domain.StepResult {
	action := strings.ToLower(cfg.Action)
	if action == "" {
		action = domain.TagAdd
	}
	tag := vars.Resolve(cfg.Tag, sess.Variables)

	current := stringList(sess.Variables["tags"])
	has := false
	for _, t := range current {
		if t == tag {
			has = true
			break
		}
	}
	switch {
	case action == domain.TagAdd && !has, action == domain.TagToggle && !has:
		current = append(current, tag)
	case action == domain.TagRemove && has, action == domain.TagToggle && has:
		kept := current[:0:0]
		for _, t := range current {
			if t != tag {
				kept = append(kept, t)
			}
		}
		current = kept
	}

	pending := append(stringList(sess.Variables["tags_pending"]), action+":"+tag)
	return domain.StepResult{
		Success: true,
		Variables: map[string]any{
			"tag_action":   action,
			"tag_name":     tag,
			"tags":         current,
			"tags_pending": pending,
		},
	}
}

func stringList(v any) []string {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, vars.Stringify(item))
		}
		return out
	}
	return []string{}
}

func (e *Engine) handleVariable(sess *domain.Session, node *domain.Node, cfg *domain.VariableConfig) domain.StepResult {
	mode := strings.ToLower(cfg.Mode)
	if mode == "" {
		switch val := cfg.Value.(type) {
		case string:
			if cfg.Source != "" {
				mode = domain.VarCopy
			} else if strings.Contains(val, "{") {
				mode = domain.VarExpression
			} else {
				mode = domain.VarStatic
			}
		default:
			if cfg.Source != "" {
				mode = domain.VarCopy
			} else {
				mode = domain.VarStatic
			}
		}
	}

	var value any
	switch mode {
	case domain.VarStatic:
		value = cfg.Value
	case domain.VarExpression:
		value = vars.Resolve(vars.Stringify(cfg.Value), sess.Variables)
	case domain.VarCopy:
		v, ok := vars.Lookup(sess.Variables, strings.Trim(cfg.Source, "{}"))
		if !ok {
			e.logger.Debug("copy from unset variable", "node_id", node.ID, "source", cfg.Source)
		}
		value = v
	default:
		return domain.Failed(fmt.Sprintf("variable node %s: unknown mode %q", node.ID, cfg.Mode))
	}
	return domain.StepResult{Success: true, Variables: map[string]any{cfg.Name: value}}
}

func (e *Engine) handleEnd(sess *domain.Session, cfg *domain.EndConfig) domain.StepResult {
	endType := cfg.EndType
	if endType == "" {
		endType = defaultEndType
	}
	return domain.StepResult{
		Success:  true,
		Messages: say(vars.Resolve(cfg.Message, sess.Variables)),
		Variables: map[string]any{
			"flow_ended": true,
			"end_type":   endType,
			"resolved":   cfg.Resolved,
		},
		Terminal: true,
	}
}
