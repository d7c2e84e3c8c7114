package runtime_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinculobrasil/flowbot/internal/runtime"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/graph"
	"github.com/vinculobrasil/flowbot/pkg/ports"
)

func leadFlow(t *testing.T, data map[string]any) *graph.Index {
	if data["fields"] == nil {
		data["fields"] = []any{
			map[string]any{"name": "nome", "question": "Qual seu nome?"},
			map[string]any{"name": "cpf", "question": "Qual seu CPF?"},
		}
	}
	return flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("lead", domain.KindLeadCapture, data),
			node("ok", domain.KindMessage, map[string]any{"text": "ok"}),
			node("dup", domain.KindMessage, map[string]any{"text": "dup"}),
			node("err", domain.KindMessage, map[string]any{"text": "err"}),
		},
		[]domain.Edge{
			edge("start", "lead", ""),
			edge("lead", "ok", domain.HandleSuccess),
			edge("lead", "dup", domain.HandleDuplicate),
			edge("lead", "err", domain.HandleError),
		},
	)
}

func TestLeadCapture_Sequencing(t *testing.T) {
	idx := leadFlow(t, map[string]any{"successMessage": "Obrigado, {nome}!"})
	e := newEngine(ports.Collaborators{})

	res := send(t, e, idx, newSession(nil), "")
	assert.Equal(t, []string{"Qual seu nome?"}, res.Messages)
	assert.Equal(t, domain.StatusWaitingInput, res.Status)
	require.NotNil(t, res.Session.Pending)
	assert.Equal(t, 0, res.Session.Pending.Cursor)

	res = send(t, e, idx, res.Session, "Ana Silva")
	assert.Equal(t, []string{"Qual seu CPF?"}, res.Messages)
	assert.Equal(t, 1, res.Session.Pending.Cursor)

	res = send(t, e, idx, res.Session, "11111111111")
	assert.Equal(t, []string{"Obrigado, Ana Silva!", "ok"}, res.Messages)
	assert.Equal(t, domain.StatusEnded, res.Status)
	assert.Equal(t, map[string]any{"nome": "Ana Silva", "cpf": "11111111111"}, res.Session.Variables["lead_data"])
	assert.Nil(t, res.Session.Pending)
}

func TestLeadCapture_InvalidAnswerReprompts(t *testing.T) {
	idx := leadFlow(t, map[string]any{})
	e := newEngine(ports.Collaborators{})

	res := send(t, e, idx, newSession(nil), "")
	res = send(t, e, idx, res.Session, "Ana Silva")
	res = send(t, e, idx, res.Session, "123")

	assert.Equal(t, domain.StatusWaitingInput, res.Status)
	require.Len(t, res.Messages, 2)
	assert.Contains(t, res.Messages[0], "cpf")
	assert.Equal(t, "Qual seu CPF?", res.Messages[1])
	assert.Equal(t, 1, res.Session.Pending.Cursor)
	assert.Equal(t, "Ana Silva", res.Session.Pending.Answers["nome"])
}

func TestLeadCapture_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		leads     *fakeLeads
		webhooks  *fakeWebhooks
		want      string
		wantSaved any
	}{
		{
			name:      "saved",
			leads:     &fakeLeads{},
			want:      "ok",
			wantSaved: true,
		},
		{
			name:      "duplicate",
			leads:     &fakeLeads{duplicate: true},
			want:      "dup",
			wantSaved: false,
		},
		{
			name:      "store failure",
			leads:     &fakeLeads{saveErr: errors.New("db down")},
			want:      "err",
			wantSaved: false,
		},
		{
			name:      "webhook rejected",
			leads:     &fakeLeads{},
			webhooks:  &fakeWebhooks{resp: &ports.WebhookResponse{StatusCode: 502}},
			want:      "err",
			wantSaved: false,
		},
		{
			name:      "webhook without response",
			leads:     &fakeLeads{},
			webhooks:  &fakeWebhooks{},
			want:      "err",
			wantSaved: false,
		},
		{
			name:      "webhook accepted",
			leads:     &fakeLeads{},
			webhooks:  &fakeWebhooks{resp: &ports.WebhookResponse{StatusCode: 201}},
			want:      "ok",
			wantSaved: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := map[string]any{
				"duplicateField": "cpf",
				"saveToDatabase": true,
				"table":          "prospects",
				"tags":           []any{"site"},
			}
			collab := ports.Collaborators{Leads: tt.leads}
			if tt.webhooks != nil {
				data["webhookUrl"] = "https://crm.example.com/leads"
				collab.Webhooks = tt.webhooks
			}
			idx := leadFlow(t, data)
			e := newEngine(collab)

			res := send(t, e, idx, newSession(nil), "")
			res = send(t, e, idx, res.Session, "Ana Silva")
			res = send(t, e, idx, res.Session, "111.111.111-11")

			require.NotEmpty(t, res.Messages)
			assert.Equal(t, tt.want, res.Messages[len(res.Messages)-1])
			assert.Equal(t, tt.wantSaved, res.Session.Variables["lead_saved"])
			if tt.want == "ok" {
				require.Len(t, tt.leads.saved, 1)
				assert.Equal(t, "prospects", tt.leads.saved[0].Table)
				assert.Equal(t, []string{"site"}, tt.leads.saved[0].Tags)
				assert.Equal(t, "sess-1", tt.leads.saved[0].SessionID)
			}
		})
	}
}

func TestLeadCapture_OptionalFieldCanBeSkipped(t *testing.T) {
	idx := leadFlow(t, map[string]any{
		"fields": []any{
			map[string]any{"name": "email", "question": "E-mail?"},
			map[string]any{"name": "empresa", "question": "Empresa?", "enabled": false},
			map[string]any{"name": "phone", "question": "Telefone?", "required": true},
		},
	})
	e := newEngine(ports.Collaborators{})

	res := send(t, e, idx, newSession(nil), "")
	assert.Equal(t, []string{"E-mail?"}, res.Messages)
	res = send(t, e, idx, res.Session, "pular")
	assert.Equal(t, []string{"Telefone?"}, res.Messages)
	res = send(t, e, idx, res.Session, "pular")
	assert.Equal(t, domain.StatusWaitingInput, res.Status, "required fields cannot be skipped")
	res = send(t, e, idx, res.Session, "(11) 98888-7777")

	assert.Equal(t, domain.StatusEnded, res.Status)
	assert.Equal(t, map[string]any{"email": "", "phone": "(11) 98888-7777"}, res.Session.Variables["lead_data"])
}

func webhookFlow(t *testing.T, withErrorEdge bool) *graph.Index {
	edges := []domain.Edge{
		edge("start", "call", ""),
		edge("call", "done", ""),
	}
	if withErrorEdge {
		edges = append(edges, edge("call", "oops", domain.HandleError))
	}
	return flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("call", domain.KindWebhook, map[string]any{
				"url":     "https://api.example.com/clientes/{cpf}",
				"method":  "get",
				"headers": map[string]any{"Authorization": "Bearer {token}"},
				"variable": "cliente",
			}),
			node("done", domain.KindMessage, map[string]any{"text": "Olá {cliente_data.nome}"}),
			node("oops", domain.KindMessage, map[string]any{"text": "Serviço indisponível"}),
		},
		edges,
	)
}

func TestWebhook(t *testing.T) {
	vars := map[string]any{"cpf": "12345678901", "token": "t0k"}

	t.Run("success stores body and decoded json", func(t *testing.T) {
		hooks := &fakeWebhooks{resp: &ports.WebhookResponse{StatusCode: 200, Body: `{"nome":"Ana"}`}}
		res := send(t, newEngine(ports.Collaborators{Webhooks: hooks}), webhookFlow(t, true), newSession(vars), "")

		require.Len(t, hooks.reqs, 1)
		assert.Equal(t, "GET", hooks.reqs[0].Method)
		assert.Equal(t, "https://api.example.com/clientes/12345678901", hooks.reqs[0].URL)
		assert.Equal(t, "Bearer t0k", hooks.reqs[0].Headers["Authorization"])
		assert.Equal(t, []string{"Olá Ana"}, res.Messages)
		assert.Equal(t, 200, res.Session.Variables["webhook_status"])
	})

	t.Run("failure takes error edge", func(t *testing.T) {
		hooks := &fakeWebhooks{resp: &ports.WebhookResponse{StatusCode: 500, Body: "boom"}}
		res := send(t, newEngine(ports.Collaborators{Webhooks: hooks}), webhookFlow(t, true), newSession(vars), "")

		assert.Equal(t, []string{"Serviço indisponível"}, res.Messages)
		assert.Equal(t, domain.StatusEnded, res.Status)
		assert.Equal(t, 500, res.Session.Variables["webhook_status"])
		assert.Empty(t, res.Error)
	})

	t.Run("failure without error edge fails the turn", func(t *testing.T) {
		hooks := &fakeWebhooks{err: errors.New("connection refused")}
		res := send(t, newEngine(ports.Collaborators{Webhooks: hooks}), webhookFlow(t, false), newSession(vars), "")

		assert.Equal(t, domain.StatusFailed, res.Status)
		assert.Contains(t, res.Error, "connection refused")
		assert.Equal(t, "call", res.Session.CurrentNodeID)
	})

	t.Run("missing collaborator", func(t *testing.T) {
		res := send(t, newEngine(ports.Collaborators{}), webhookFlow(t, true), newSession(vars), "")
		assert.Equal(t, []string{"Serviço indisponível"}, res.Messages)
	})

	t.Run("nil response takes error edge", func(t *testing.T) {
		hooks := &fakeWebhooks{}
		res := send(t, newEngine(ports.Collaborators{Webhooks: hooks}), webhookFlow(t, true), newSession(vars), "")

		require.Len(t, hooks.reqs, 1)
		assert.Equal(t, []string{"Serviço indisponível"}, res.Messages)
		assert.Equal(t, domain.StatusEnded, res.Status)
		assert.Contains(t, res.Session.Variables["webhook_error"], "no response")
		assert.NotContains(t, res.Session.Variables, "webhook_status")
	})

	t.Run("nil response without error edge fails the turn", func(t *testing.T) {
		hooks := &fakeWebhooks{}
		res := send(t, newEngine(ports.Collaborators{Webhooks: hooks}), webhookFlow(t, false), newSession(vars), "")

		assert.Equal(t, domain.StatusFailed, res.Status)
		assert.Contains(t, res.Error, "no response")
	})
}

func contractFlow(t *testing.T, data map[string]any) *graph.Index {
	return flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("identify", domain.KindIdentifyContract, data),
			node("found", domain.KindMessage, map[string]any{"text": "Contrato {contract_id} ({contract_status})"}),
			node("missing", domain.KindMessage, map[string]any{"text": "sem contrato"}),
		},
		[]domain.Edge{
			edge("start", "identify", ""),
			edge("identify", "found", domain.HandleFound),
			edge("identify", "missing", domain.HandleNotFound),
		},
	)
}

func TestIdentifyContract(t *testing.T) {
	two := []domain.Contract{
		{ID: "C-1", Address: "Rua A, 10", Status: "ativo"},
		{ID: "C-2", Address: "Rua B, 20", Status: "inadimplente"},
	}

	t.Run("single match", func(t *testing.T) {
		lookup := &fakeContracts{contracts: two[:1]}
		res := send(t, newEngine(ports.Collaborators{Contracts: lookup}),
			contractFlow(t, map[string]any{"identifyBy": "cpf"}),
			newSession(map[string]any{"cpf": "123.456.789-01"}), "")

		assert.Equal(t, "12345678901", lookup.value)
		assert.Equal(t, []string{"Contrato C-1 (ativo)"}, res.Messages)
		assert.Equal(t, 1, res.Session.Variables["contracts_count"])
	})

	t.Run("phone falls back to contact", func(t *testing.T) {
		lookup := &fakeContracts{}
		res := send(t, newEngine(ports.Collaborators{Contracts: lookup}),
			contractFlow(t, map[string]any{"identifyBy": "phone"}),
			newSession(nil), "")

		assert.Equal(t, "5511988887777", lookup.value)
		assert.Equal(t, []string{"Não encontramos nenhum contrato com os dados informados.", "sem contrato"}, res.Messages)
	})

	t.Run("selection among several", func(t *testing.T) {
		lookup := &fakeContracts{contracts: two}
		idx := contractFlow(t, map[string]any{"askSelection": true})
		e := newEngine(ports.Collaborators{Contracts: lookup})

		res := send(t, e, idx, newSession(map[string]any{"cpf": "12345678901"}), "")
		require.Equal(t, domain.StatusWaitingInput, res.Status)
		require.Len(t, res.Messages, 1)
		assert.Contains(t, res.Messages[0], "2 contratos")
		assert.Contains(t, res.Messages[0], "2. Rua B, 20 (inadimplente)")

		bad := send(t, e, idx, res.Session, "9")
		assert.Equal(t, domain.StatusWaitingInput, bad.Status)

		picked := send(t, e, idx, bad.Session, "2")
		assert.Equal(t, []string{"Contrato C-2 (inadimplente)"}, picked.Messages)
		assert.Equal(t, "Rua B, 20", picked.Session.Variables["contract_address"])
	})

	t.Run("lookup failure without error edge", func(t *testing.T) {
		lookup := &fakeContracts{err: errors.New("timeout")}
		res := send(t, newEngine(ports.Collaborators{Contracts: lookup}),
			contractFlow(t, map[string]any{}),
			newSession(map[string]any{"cpf": "12345678901"}), "")
		assert.Equal(t, domain.StatusFailed, res.Status)
	})
}

func TestClientTag(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		vars       map[string]any
		classifier *fakeClassifier
		want       string
	}{
		{"literal", map[string]any{"mode": "literal", "type": "vip"}, nil, nil, "vip"},
		{"custom", map[string]any{"custom": "plano_{plano}"}, map[string]any{"plano": "ouro"}, nil, "plano_ouro"},
		{"auto from status", map[string]any{"mode": "auto"}, map[string]any{"contract_status": "Ativo"}, nil, "cliente_ativo"},
		{"auto overdue", map[string]any{}, map[string]any{"contract_status": "inadimplente"}, nil, "inadimplente"},
		{"auto former", map[string]any{}, map[string]any{"contract_status": "cancelado"}, nil, "ex_cliente"},
		{"auto source variable", map[string]any{"sourceVariable": "segmento"}, map[string]any{"segmento": "empresa"}, nil, "empresa"},
		{"auto classifier", map[string]any{}, nil, &fakeClassifier{clientType: "prospect"}, "prospect"},
		{"auto unknown", map[string]any{}, nil, nil, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := flow(t,
				[]domain.Node{node("start", domain.KindStart, nil), node("tag", domain.KindClientTag, tt.data)},
				[]domain.Edge{edge("start", "tag", "")},
			)
			collab := ports.Collaborators{}
			if tt.classifier != nil {
				collab.Classifier = tt.classifier
			}
			res := send(t, newEngine(collab), idx, newSession(tt.vars), "")
			assert.Equal(t, tt.want, res.Session.Variables["client_type"])
		})
	}
}

func aiFlow(t *testing.T) *graph.Index {
	return flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("ask", domain.KindInput, map[string]any{"question": "Qual sua dúvida?", "variable": "duvida"}),
			node("ai", domain.KindAIAgent, map[string]any{
				"systemPrompt":    "Você atende {empresa}.",
				"variable":        "resposta",
				"fallbackMessage": "Não consegui responder agora.",
			}),
		},
		[]domain.Edge{edge("start", "ask", ""), edge("ask", "ai", "")},
	)
}

func TestAIAgent(t *testing.T) {
	vars := map[string]any{"empresa": "Vínculo"}

	t.Run("reply", func(t *testing.T) {
		llm := &fakeCompletion{reply: "Seu boleto vence dia 10."}
		e := newEngine(ports.Collaborators{Completion: llm})
		idx := aiFlow(t)
		res := send(t, e, idx, newSession(vars), "")
		res = send(t, e, idx, res.Session, "quando vence?")

		assert.Equal(t, []string{"Seu boleto vence dia 10."}, res.Messages)
		assert.Equal(t, "Seu boleto vence dia 10.", res.Session.Variables[runtime.VarAIResponse])
		assert.Equal(t, "Seu boleto vence dia 10.", res.Session.Variables["resposta"])
		assert.Equal(t, []string{"Você atende Vínculo."}, llm.prompts)
		assert.Equal(t, []string{"quando vence?"}, llm.messages)
	})

	t.Run("fallback", func(t *testing.T) {
		llm := &fakeCompletion{err: errors.New("rate limited")}
		e := newEngine(ports.Collaborators{Completion: llm})
		idx := aiFlow(t)
		res := send(t, e, idx, newSession(vars), "")
		res = send(t, e, idx, res.Session, "quando vence?")

		assert.Equal(t, []string{"Não consegui responder agora."}, res.Messages)
		assert.Equal(t, "", res.Session.Variables[runtime.VarAIResponse])
		assert.Equal(t, domain.StatusEnded, res.Status)
	})
}

func welcomeFlow(t *testing.T, withHumanEdge bool) *graph.Index {
	edges := []domain.Edge{
		edge("start", "welcome", ""),
		edge("welcome", "general", domain.HandleContinue),
		edge("welcome", "finance", domain.HandleSectorAI),
	}
	if withHumanEdge {
		edges = append(edges, edge("welcome", "agent", domain.HandleHuman))
	}
	return flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("welcome", domain.KindWelcomeAI, map[string]any{
				"greeting":        "Oi {nome}!",
				"smartRouting":    true,
				"handoffTriggers": []any{"atendente", "humano"},
				"handoffTarget":   "suporte",
				"sectorAIs":       []any{map[string]any{"id": "fin", "name": "Financeiro", "keywords": []any{"boleto", "fatura"}}},
				"capabilities": map[string]any{
					"audio":         map[string]any{"enabled": true, "provider": "whisper"},
					"payment_proof": map[string]any{"enabled": true, "fields": []any{"valor", "data"}},
				},
			}),
			node("general", domain.KindMessage, map[string]any{"text": "geral"}),
			node("finance", domain.KindMessage, map[string]any{"text": "setor {matched_sector}"}),
			node("agent", domain.KindHandoff, map[string]any{"message": "transferindo", "targetId": "{handoff_target}"}),
		},
		edges,
	)
}

func TestWelcomeAI(t *testing.T) {
	vars := map[string]any{"nome": "Ana"}

	t.Run("greets and waits", func(t *testing.T) {
		res := send(t, newEngine(ports.Collaborators{}), welcomeFlow(t, true), newSession(vars), "")
		assert.Equal(t, []string{"Oi Ana!"}, res.Messages)
		assert.Equal(t, domain.StatusWaitingInput, res.Status)
	})

	t.Run("handoff trigger follows human edge", func(t *testing.T) {
		tickets := &fakeTicketing{}
		e := newEngine(ports.Collaborators{Ticketing: tickets})
		idx := welcomeFlow(t, true)
		res := send(t, e, idx, newSession(vars), "")
		res = send(t, e, idx, res.Session, "quero falar com um ATENDENTE")

		assert.Equal(t, domain.StatusHandedOff, res.Status)
		assert.Contains(t, res.Messages, "transferindo")
		require.Len(t, tickets.handoffs, 1)
		assert.Equal(t, "suporte", tickets.handoffs[0].TargetID)
	})

	t.Run("handoff trigger without edge yields", func(t *testing.T) {
		tickets := &fakeTicketing{}
		e := newEngine(ports.Collaborators{Ticketing: tickets})
		idx := welcomeFlow(t, false)
		res := send(t, e, idx, newSession(vars), "")
		res = send(t, e, idx, res.Session, "humano por favor")

		assert.Equal(t, domain.StatusHandedOff, res.Status)
		assert.Equal(t, "welcome", res.Session.CurrentNodeID)
		require.NotNil(t, res.Handoff)
		assert.Equal(t, "suporte", res.Handoff.TargetID)
	})

	t.Run("transcribed audio routes to sector", func(t *testing.T) {
		stt := &fakeTranscriber{text: "preciso da segunda via do boleto"}
		e := newEngine(ports.Collaborators{Transcriber: stt})
		idx := welcomeFlow(t, true)
		res := send(t, e, idx, newSession(vars), "")
		res = send(t, e, idx, res.Session, "[audio] https://cdn.example.com/a.ogg")

		assert.Equal(t, []string{"https://cdn.example.com/a.ogg"}, stt.refs)
		assert.Equal(t, []string{"setor Financeiro"}, res.Messages)
		assert.Equal(t, "audio", res.Session.Variables["media_type"])
		assert.Equal(t, "preciso da segunda via do boleto", res.Session.Variables["normalized_text"])
	})

	t.Run("payment proof fields are extracted", func(t *testing.T) {
		ocr := &fakeOCR{fields: map[string]string{"valor": "150,00", "data": "10/03/2025"}}
		llm := &fakeCompletion{reply: "Recebemos seu comprovante."}
		e := newEngine(ports.Collaborators{OCR: ocr, Completion: llm})
		idx := welcomeFlow(t, true)
		res := send(t, e, idx, newSession(vars), "")
		res = send(t, e, idx, res.Session, "https://cdn.example.com/comprovante_pix.jpg")

		assert.Equal(t, "payment_proof", res.Session.Variables["media_type"])
		assert.Equal(t, "150,00", res.Session.Variables["valor"])
		assert.Equal(t, []string{"data: 10/03/2025\nvalor: 150,00"}, llm.messages)
		assert.Equal(t, []string{"Recebemos seu comprovante.", "geral"}, res.Messages)
	})

	t.Run("media failure keeps the raw reference", func(t *testing.T) {
		e := newEngine(ports.Collaborators{})
		idx := welcomeFlow(t, true)
		res := send(t, e, idx, newSession(vars), "")
		res = send(t, e, idx, res.Session, "[audio] https://cdn.example.com/b.ogg")

		assert.Contains(t, res.Session.Variables["media_error"], "collaborator unavailable")
		assert.Equal(t, domain.StatusEnded, res.Status)
	})
}

func TestClassifyMedia(t *testing.T) {
	tests := []struct {
		payload string
		kind    domain.MediaKind
		ref     string
	}{
		{"olá, tudo bem?", domain.MediaText, "olá, tudo bem?"},
		{"[audio] https://x/y.ogg", domain.MediaAudio, "https://x/y.ogg"},
		{"https://x/voice.opus", domain.MediaAudio, "https://x/voice.opus"},
		{"https://x/foto.png?sig=1", domain.MediaImage, "https://x/foto.png?sig=1"},
		{"https://x/comprovante.jpg", domain.MediaPaymentProof, "https://x/comprovante.jpg"},
		{"[image] https://x/pix_123.png", domain.MediaPaymentProof, "https://x/pix_123.png"},
		{"contrato.pdf", domain.MediaDocument, "contrato.pdf"},
		{"[comprovante] ref-42", domain.MediaPaymentProof, "ref-42"},
		{"planilha.xlsx", domain.MediaDocument, "planilha.xlsx"},
		{"ok", domain.MediaText, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			kind, ref := runtime.ClassifyMedia(tt.payload)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.ref, ref)
		})
	}
}

func TestBasicNodes(t *testing.T) {
	idx := flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("copy", domain.KindVariable, map[string]any{"name": "cliente", "source": "nome"}),
			node("tag1", domain.KindTag, map[string]any{"tag": "vip"}),
			node("tag2", domain.KindTag, map[string]any{"action": "toggle", "tag": "novo"}),
			node("tag3", domain.KindTag, map[string]any{"action": "remove", "tag": "vip"}),
			node("pause", domain.KindDelay, map[string]any{"seconds": 1.5}),
			node("multi", domain.KindMessage, map[string]any{"messages": []any{"Oi {cliente}", "  ", "Tudo bem?"}}),
			node("end", domain.KindEnd, map[string]any{"message": "Fim", "endType": "abandoned"}),
		},
		[]domain.Edge{
			edge("start", "copy", ""),
			edge("copy", "tag1", ""),
			edge("tag1", "tag2", ""),
			edge("tag2", "tag3", ""),
			edge("tag3", "pause", ""),
			edge("pause", "multi", ""),
			edge("multi", "end", ""),
		},
	)
	res := send(t, newEngine(ports.Collaborators{}), idx, newSession(map[string]any{"nome": "Ana"}), "")

	assert.Equal(t, []string{"Oi Ana", "Tudo bem?", "Fim"}, res.Messages)
	assert.Equal(t, domain.StatusEnded, res.Status)
	v := res.Session.Variables
	assert.Equal(t, "Ana", v["cliente"])
	assert.Equal(t, []string{"novo"}, v["tags"])
	assert.Equal(t, []string{"add:vip", "toggle:novo", "remove:vip"}, v["tags_pending"])
	assert.Equal(t, "abandoned", v["end_type"])
	assert.Equal(t, true, v["flow_ended"])
	assert.Equal(t, []string{"start", "copy", "tag1", "tag2", "tag3", "pause", "multi", "end"}, res.Diff.Visited)
}

func TestCondition_Operators(t *testing.T) {
	type cond struct{ variable, operator, value string }
	tests := []struct {
		name  string
		vars  map[string]any
		conds []cond
		want  string
	}{
		{"equals ignores case", map[string]any{"plano": "Premium"}, []cond{{"plano", "equals", "premium"}}, "sim"},
		{"equals numeric", map[string]any{"qtd": "3,0"}, []cond{{"qtd", "equals", "3"}}, "sim"},
		{"equals mismatch", map[string]any{"plano": "basico"}, []cond{{"plano", "equals", "premium"}}, "nao"},
		{"not_equals", map[string]any{"plano": "basico"}, []cond{{"plano", "not_equals", "premium"}}, "sim"},
		{"contains", map[string]any{"msg": "Quero CANCELAR meu plano"}, []cond{{"msg", "contains", "cancelar"}}, "sim"},
		{"starts_with", map[string]any{"cep": "01310-100"}, []cond{{"cep", "starts_with", "013"}}, "sim"},
		{"ends_with", map[string]any{"email": "ana@Exemplo.com"}, []cond{{"email", "ends_with", "exemplo.com"}}, "sim"},
		{"less_than", map[string]any{"idade": 15}, []cond{{"idade", "less_than", "18"}}, "sim"},
		{"less_than non numeric", map[string]any{"idade": "quinze"}, []cond{{"idade", "less_than", "18"}}, "nao"},
		{"greater_than with variable literal", map[string]any{"a": "10", "b": "7"}, []cond{{"a", "greater_than", "{b}"}}, "sim"},
		{"is_empty missing", map[string]any{}, []cond{{"nome", "is_empty", ""}}, "sim"},
		{"is_empty blank", map[string]any{"nome": "  "}, []cond{{"nome", "is_empty", ""}}, "sim"},
		{"is_not_empty", map[string]any{"nome": "Ana"}, []cond{{"nome", "is_not_empty", ""}}, "sim"},
		{"matches_regex ignores case", map[string]any{"cpf": "ABC-123"}, []cond{{"cpf", "matches_regex", `^abc-\d+$`}}, "sim"},
		{"matches_regex invalid pattern", map[string]any{"cpf": "123"}, []cond{{"cpf", "matches_regex", "(["}}, "nao"},
		{"operator case ignored", map[string]any{"x": "a"}, []cond{{"x", "EQUALS", "A"}}, "sim"},
		{"braced variable", map[string]any{"x": "a"}, []cond{{"{x}", "equals", "a"}}, "sim"},
		{"all triples must hold", map[string]any{"idade": "30", "uf": "SP"}, []cond{{"idade", "greater_than", "18"}, {"uf", "equals", "sp"}}, "sim"},
		{"one failing triple", map[string]any{"idade": "30", "uf": "RJ"}, []cond{{"idade", "greater_than", "18"}, {"uf", "equals", "sp"}}, "nao"},
		{"unknown operator", map[string]any{"x": "a"}, []cond{{"x", "between", "a"}}, "nao"},
		{"no triples", map[string]any{}, nil, "sim"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds := make([]any, 0, len(tt.conds))
			for _, c := range tt.conds {
				conds = append(conds, map[string]any{"variable": c.variable, "operator": c.operator, "value": c.value})
			}
			idx := flow(t,
				[]domain.Node{
					node("start", domain.KindStart, nil),
					node("cond", domain.KindCondition, map[string]any{"conditions": conds}),
					node("yes", domain.KindMessage, map[string]any{"text": "sim"}),
					node("no", domain.KindMessage, map[string]any{"text": "nao"}),
				},
				[]domain.Edge{
					edge("start", "cond", ""),
					edge("cond", "yes", "true"),
					edge("cond", "no", "false"),
				},
			)

			res := send(t, newEngine(ports.Collaborators{}), idx, newSession(tt.vars), "")
			assert.Empty(t, res.Error)
			assert.Equal(t, []string{tt.want}, res.Messages)
		})
	}
}

func TestLeadCapture_StaleAnswersReportFieldErrors(t *testing.T) {
	idx := leadFlow(t, map[string]any{
		"fields": []any{
			map[string]any{"name": "nome", "label": "Nome completo", "question": "Qual seu nome?", "required": true},
			map[string]any{"name": "cpf", "question": "Qual seu CPF?"},
		},
	})
	leads := &fakeLeads{}
	e := newEngine(ports.Collaborators{Leads: leads})

	// Waiting at the last field with an answer the node no longer accepts.
	sess := newSession(nil)
	sess.FlowVersion = "1"
	sess.CurrentNodeID = "lead"
	sess.Status = domain.StatusWaitingInput
	sess.Pending = &domain.Pending{NodeID: "lead", Cursor: 1, Answers: map[string]string{"nome": "Ana"}}

	res := send(t, e, idx, sess, "111.111.111-11")
	require.NotEmpty(t, res.Messages)
	assert.Equal(t, "err", res.Messages[len(res.Messages)-1])
	assert.Equal(t, false, res.Session.Variables["lead_saved"])
	assert.Equal(t, "Nome completo [name]: expected first and last name", res.Session.Variables["lead_error"])
	assert.Equal(t, map[string]any{"nome": "name: expected first and last name"}, res.Session.Variables["lead_field_errors"])
	assert.Empty(t, leads.saved)
}
