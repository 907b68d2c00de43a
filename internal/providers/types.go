package providers

import (
	"context"
	"time"
)

// Provider is the interface all LLM providers must implement.
type Provider interface {
	// Chat sends messages to the LLM and returns a response.
	// tools defines available tool schemas; model overrides the default.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream sends messages and streams response chunks via callback.
	// Returns the final complete response after streaming ends.
	ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error)

	// DefaultModel returns the provider's default model name.
	DefaultModel() string

	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// ChatRequest contains the input for a Chat/ChatStream call.
type ChatRequest struct {
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Model    string           `json:"model,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ChatResponse is the result from an LLM call.
type ChatResponse struct {
	Content      string     `json:"content"`
	Thinking     string     `json:"thinking,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"` // "stop", "tool_calls", "length"
	Usage        *Usage     `json:"usage,omitempty"`

	// RawAssistantContent carries the provider's native content-block
	// representation (e.g. Anthropic thinking blocks) so it can be passed
	// back verbatim on the next turn instead of being reconstructed from
	// Content/ToolCalls.
	RawAssistantContent interface{} `json:"-"`
}

// StreamChunk is a piece of a streaming response.
type StreamChunk struct {
	Content   string `json:"content,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
	Done      bool   `json:"done,omitempty"`
}

// ImageContent represents a base64-encoded image for vision-capable models.
type ImageContent struct {
	MimeType string `json:"mime_type"` // e.g. "image/jpeg"
	Data     string `json:"data"`      // base64-encoded image bytes
}

// Message represents a conversation message.
type Message struct {
	Role             string         `json:"role"`                        // "system", "user", "assistant", "tool"
	Content          string         `json:"content"`
	Images           []ImageContent `json:"images,omitempty"`            // vision: base64 images
	ToolCalls        []ToolCall     `json:"tool_calls,omitempty"`        // assistant: pending tool invocations
	ToolCallID       string         `json:"tool_call_id,omitempty"`      // tool: id of the call this responds to
	Name             string         `json:"name,omitempty"`              // tool: name of the tool invoked
	ToolsUsed        string         `json:"tools_used,omitempty"`        // assistant: summary of tools used this turn
	ReasoningContent string         `json:"reasoning_content,omitempty"` // assistant: thinking/reasoning trace
	Timestamp        time.Time      `json:"timestamp,omitempty"`

	// RawAssistantContent preserves the provider-native content blocks for an
	// assistant turn (thinking + tool_use blocks) so a follow-up request can
	// replay them unchanged instead of re-deriving them from Content/ToolCalls.
	RawAssistantContent interface{} `json:"-"`
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`

	// Metadata carries provider-specific round-trip data that must be echoed
	// back verbatim on a later turn (e.g. Gemini's thought_signature).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ToolDefinition describes a tool available to the LLM.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema is the schema for a function tool.
type ToolFunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_input_tokens,omitempty"`
	ThinkingTokens      int `json:"thinking_tokens,omitempty"`
}

// Option keys accepted in ChatRequest.Options. Providers read only the keys
// they understand and ignore the rest.
const (
	OptMaxTokens       = "max_tokens"
	OptTemperature     = "temperature"
	OptThinkingLevel   = "thinking_level"   // "off", "low", "medium", "high"
	OptReasoningEffort = "reasoning_effort" // o-series passthrough, mirrors thinking_level
	OptEnableThinking  = "enable_thinking"  // DashScope passthrough
	OptThinkingBudget  = "thinking_budget"  // DashScope passthrough, token budget for thinking
)

// ThinkingCapable is implemented by providers that support extended/reasoning
// thinking modes (currently Anthropic and some OpenAI-compatible backends).
type ThinkingCapable interface {
	SupportsThinking() bool
}

// retryHookKey is the context key for the retry hook callback.
type retryHookKey struct{}

// RetryHook is invoked by a provider before each retry of a failed request.
type RetryHook func(attempt, maxAttempts int, err error)

// WithRetryHook attaches a retry callback to ctx so providers can report
// retry attempts (e.g. for updating a channel's "still working..." placeholder).
func WithRetryHook(ctx context.Context, hook RetryHook) context.Context {
	return context.WithValue(ctx, retryHookKey{}, hook)
}

// RetryHookFromContext returns the retry hook attached to ctx, if any.
func RetryHookFromContext(ctx context.Context) (RetryHook, bool) {
	hook, ok := ctx.Value(retryHookKey{}).(RetryHook)
	return hook, ok
}
