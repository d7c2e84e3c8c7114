/*
Package ports defines the driven and driving ports (interfaces) of the flowbot engine.

These interfaces decouple the interpreter from storage backends, flow sources,
transports and every external collaborator a node may call.

# Key Interfaces

  - FlowLoader: Retrieves serialized flows (e.g., from a directory or memory).
  - StateStore: Persists and loads Sessions between turns.
  - DistributedLocker: Serializes turns of one session across replicas.
  - Conversation: The driving port used by transports (HTTP, MCP, CLI).
  - Collaborators: Completion, transcription, OCR, webhooks, contract lookup,
    lead persistence, hand-off and client classification.
*/
package ports
