/*
Package flowbot is a turn-based interpreter for chatbot and IVR flows.

A flow is a graph of nodes (messages, menus, conditions, AI agents,
webhooks, contract lookups, lead capture...) joined by edges that may carry
a handle. Each inbound message runs one turn: the engine resumes the
session at the node it was waiting at, hands it the message, and keeps
executing nodes until one needs input again, the flow ends, or the session
is handed off to a human.

# Concept

The interpreter (internal/runtime) is pure with respect to the session: it
receives a snapshot and returns the next one together with the replies to
send. The Engine in this package adds the host concerns: flow loading and
caching, session persistence, and per-session locking so two messages of
the same contact never run concurrently. Transports (HTTP, MCP, the CLI
chat) drive it through ports.Conversation.

# Usage

	eng, err := flowbot.New("./flows",
		flowbot.WithCollaborators(ports.Collaborators{Webhooks: webhook.New()}),
	)
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.Handle(ctx, domain.Inbound{
		FlowID:    "atendimento",
		SessionID: "5511988887777",
		Text:      "oi",
	})
	if err != nil {
		log.Fatal(err)
	}
	for _, m := range res.Messages {
		fmt.Println(m)
	}
*/
package flowbot
