package runtime

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/vars"
)

const (
	VarAIResponse = "ai_response"

	defaultGreeting         = "Olá! Sou o assistente virtual. Como posso ajudar?"
	defaultTriggeredHandoff = "Certo, vou te transferir para um atendente humano."
)

// userText is the current input if any, otherwise the last inbound message.
func userText(sess *domain.Session, input *string) string {
	if input != nil {
		return *input
	}
	return vars.String(sess.Variables, VarLastMessage)
}

func (e *Engine) complete(ctx context.Context, sess *domain.Session, node *domain.Node, prompt, message string, tools []string) (string, error) {
	if e.collab.Completion == nil {
		return "", unavailable("completion")
	}
	var reply string
	err := e.call(ctx, sess, node, "completion", 0, func(ctx context.Context) error {
		var err error
		reply, err = e.collab.Completion.Complete(ctx, prompt, message, tools)
		return err
	})
	return reply, err
}

func (e *Engine) handleAIAgent(ctx context.Context, sess *domain.Session, node *domain.Node, cfg *domain.AIAgentConfig, input *string) domain.StepResult {
	prompt := vars.Resolve(cfg.SystemPrompt, sess.Variables)
	reply, err := e.complete(ctx, sess, node, prompt, userText(sess, input), cfg.Tools)

	deltas := map[string]any{VarAIResponse: ""}
	res := domain.StepResult{Success: true, Variables: deltas}
	if err != nil {
		res.Messages = say(vars.Resolve(cfg.FallbackMessage, sess.Variables))
		if cfg.Variable != "" {
			deltas[cfg.Variable] = ""
		}
		return res
	}

	deltas[VarAIResponse] = reply
	if cfg.Variable != "" {
		deltas[cfg.Variable] = reply
	}
	if !cfg.Silent {
		res.Messages = say(reply)
	}
	return res
}

func (e *Engine) handleWelcomeAI(ctx context.Context, sess *domain.Session, node *domain.Node, cfg *domain.WelcomeAIConfig, input *string) domain.StepResult {
	if input == nil {
		greeting := cfg.Greeting
		if greeting == "" {
			greeting = defaultGreeting
		}
		return domain.StepResult{
			Success:      true,
			Messages:     say(vars.Resolve(greeting, sess.Variables)),
			WaitForInput: true,
			Pending:      &domain.Pending{Greeted: true},
		}
	}

	kind, ref := ClassifyMedia(*input)
	normalized := strings.TrimSpace(*input)
	deltas := map[string]any{"media_type": string(kind)}

	if kind != domain.MediaText {
		capability := cfg.Capabilities[kind]
		if capability.Enabled {
			text, fields, err := e.normalizeMedia(ctx, sess, node, kind, ref, capability)
			if err != nil {
				deltas["media_error"] = err.Error()
			} else {
				normalized = text
				if len(fields) > 0 {
					extracted := make(map[string]any, len(fields))
					for k, v := range fields {
						extracted[k] = v
						deltas[k] = v
					}
					deltas["extracted_fields"] = extracted
				}
			}
		} else {
			e.logger.Debug("media capability disabled", "node_id", node.ID, "media_type", kind)
		}
	}
	deltas["normalized_text"] = normalized

	if cfg.SmartRouting {
		lower := strings.ToLower(normalized)
		for _, trigger := range cfg.HandoffTriggers {
			t := strings.ToLower(strings.TrimSpace(trigger))
			if t == "" || !strings.Contains(lower, t) {
				continue
			}
			msg := cfg.HandoffMessage
			if msg == "" {
				msg = defaultTriggeredHandoff
			}
			target := vars.Resolve(cfg.HandoffTarget, sess.Variables)
			deltas["handoff_target"] = target
			deltas["handoff_reason"] = "trigger: " + trigger
			return domain.StepResult{
				Success:   true,
				Messages:  say(vars.Resolve(msg, sess.Variables)),
				Handle:    domain.HandleHuman,
				Variables: deltas,
				Handoff:   &domain.Handoff{TargetID: target, Reason: "trigger: " + trigger},
			}
		}

		for _, sector := range cfg.SectorAIs {
			if !matchesAny(lower, sector.Keywords) {
				continue
			}
			name := sector.Name
			if name == "" {
				name = sector.ID
			}
			deltas["matched_sector"] = name
			deltas["matched_sector_id"] = sector.ID
			return domain.StepResult{Success: true, Handle: domain.HandleSectorAI, Variables: deltas}
		}
	}

	prompt := vars.Resolve(cfg.SystemPrompt, sess.Variables)
	reply, err := e.complete(ctx, sess, node, prompt, normalized, nil)
	if err != nil {
		deltas[VarAIResponse] = ""
		return domain.StepResult{
			Success:   true,
			Messages:  say(vars.Resolve(cfg.FallbackMessage, sess.Variables)),
			Handle:    domain.HandleContinue,
			Variables: deltas,
		}
	}
	deltas[VarAIResponse] = reply
	return domain.StepResult{
		Success:   true,
		Messages:  say(reply),
		Handle:    domain.HandleContinue,
		Variables: deltas,
	}
}

// normalizeMedia turns a media payload into text using the collaborator
// that matches its kind. Extracted fields are returned separately.
func (e *Engine) normalizeMedia(ctx context.Context, sess *domain.Session, node *domain.Node, kind domain.MediaKind, ref string, capability domain.MediaCapability) (string, map[string]string, error) {
	switch kind {
	case domain.MediaAudio:
		if e.collab.Transcriber == nil {
			return "", nil, unavailable("transcription")
		}
		var text string
		err := e.call(ctx, sess, node, "transcription", 0, func(ctx context.Context) error {
			var err error
			text, err = e.collab.Transcriber.Transcribe(ctx, ref, capability.Provider)
			return err
		})
		return text, nil, err

	case domain.MediaPaymentProof, domain.MediaDocument:
		if kind == domain.MediaDocument && len(capability.Fields) == 0 {
			return e.describe(ctx, sess, node, ref)
		}
		if e.collab.OCR == nil {
			return "", nil, unavailable("ocr")
		}
		var fields map[string]string
		err := e.call(ctx, sess, node, "ocr", 0, func(ctx context.Context) error {
			var err error
			fields, err = e.collab.OCR.ExtractFields(ctx, ref, capability.Provider, capability.Fields)
			return err
		})
		if err != nil {
			return "", nil, err
		}
		return fieldsText(fields), fields, nil

	case domain.MediaImage:
		return e.describe(ctx, sess, node, ref)
	}
	return ref, nil, nil
}

func (e *Engine) describe(ctx context.Context, sess *domain.Session, node *domain.Node, ref string) (string, map[string]string, error) {
	if e.collab.Describer == nil {
		return "", nil, unavailable("vision")
	}
	var text string
	err := e.call(ctx, sess, node, "vision", 0, func(ctx context.Context) error {
		var err error
		text, err = e.collab.Describer.Describe(ctx, ref)
		return err
	})
	return text, nil, err
}

func fieldsText(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, fields[k]))
	}
	return strings.Join(lines, "\n")
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}
