// Package protocol defines the wire vocabulary shared between the agent
// loop, the message bus, and anything observing it: event type names and
// the bus's own protocol version.
package protocol

// ProtocolVersion identifies the message-bus wire format a client and
// agent loop must agree on. Bump it when AgentEvent payload shapes change
// in an incompatible way.
const ProtocolVersion = 1

// AgentEvent subtypes, carried in AgentEvent.Type and emitted onto the
// message bus as a run progresses.
const (
	AgentEventRunStarted   = "run.started"
	AgentEventRunCompleted = "run.completed"
	AgentEventRunFailed    = "run.failed"
	AgentEventRunRetrying  = "run.retrying"
	AgentEventToolCall     = "tool.call"
	AgentEventToolResult   = "tool.result"
)

// Chat event subtypes, used for streaming partial output within a run.
const (
	ChatEventChunk    = "chunk"
	ChatEventThinking = "thinking"
)
