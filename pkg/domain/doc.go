/*
Package domain contains the core models of the flowbot conversation engine.

It defines the graph a designer produces (Nodes, Edges and their per-kind
configuration), the per-conversation Session that is persisted between turns,
and the values exchanged between node handlers and the turn loop. The package
holds no I/O and no external dependencies beyond the standard library.

# Key Entities

  - Graph: immutable node/edge lists authored in the visual editor.
  - NodeConfig: closed union of strongly typed per-kind configuration.
  - Session: the serializable conversation context (variables, history, cursor).
  - StepResult: the outcome of executing a single node.
  - TurnResult: the aggregate outcome of one inbound message.
*/
package domain
