package providers

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// AdapterConfig tunes the behaviors Adapter layers on top of a vendor Provider.
type AdapterConfig struct {
	// PreferStream is the provider's configured default call mode. On
	// transport failure in that mode, Adapter retries once in the other mode.
	PreferStream bool

	// GeminiProxy marks a Gemini-family model routed through a non-official
	// endpoint, enabling the stream-path message normalization quirk.
	GeminiProxy bool
}

// Adapter wraps a vendor Provider with the behavior every caller (AgentLoop,
// MemoryConsolidator) should get regardless of which vendor is underneath:
// stream/non-stream fallback on transport failure, recovery of tool calls a
// model emitted as literal text instead of structured chunks, and a message
// normalization quirk for Gemini models fronted by a non-official proxy.
type Adapter struct {
	inner Provider
	cfg   AdapterConfig
}

// NewAdapter wraps inner with the adapter behaviors described by cfg.
func NewAdapter(inner Provider, cfg AdapterConfig) *Adapter {
	return &Adapter{inner: inner, cfg: cfg}
}

func (a *Adapter) Name() string         { return a.inner.Name() }
func (a *Adapter) DefaultModel() string { return a.inner.DefaultModel() }

// Chat calls the provider in its configured default mode, falling back once
// to the other mode on transport failure. A failure in both modes is not
// returned as a Go error: it is reported as a ChatResponse with
// FinishReason "error" so callers can treat it like any other model reply.
func (a *Adapter) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	primary := a.chatNonStream
	fallback := a.chatViaStream
	if a.cfg.PreferStream {
		primary, fallback = fallback, primary
	}

	resp, err := primary(ctx, req)
	if err == nil {
		return recoverPseudoToolCalls(resp), nil
	}

	resp, err = fallback(ctx, req)
	if err == nil {
		return recoverPseudoToolCalls(resp), nil
	}

	return errorResponse(err), nil
}

// ChatStream streams via the inner provider, falling back once to a
// non-stream call on failure. Gemini-proxy normalization applies to the
// stream path specifically, per the quirk it exists to work around; Chat
// applies it only when it goes through chatViaStream.
func (a *Adapter) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	req.Messages = a.normalizeForGeminiProxy(req.Messages)
	resp, err := a.inner.ChatStream(ctx, req, onChunk)
	if err != nil {
		resp, err = a.chatNonStream(ctx, req)
		if err != nil {
			return errorResponse(err), nil
		}
	}
	return recoverPseudoToolCalls(resp), nil
}

func (a *Adapter) chatNonStream(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return a.inner.Chat(ctx, req)
}

func (a *Adapter) chatViaStream(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Messages = a.normalizeForGeminiProxy(req.Messages)
	return a.inner.ChatStream(ctx, req, func(StreamChunk) {})
}

// errorResponse renders a transport failure as a terminal chat response
// instead of propagating a Go error, matching the uniform failure shape
// every caller should be able to treat like a normal (if unhelpful) reply.
func errorResponse(err error) *ChatResponse {
	return &ChatResponse{
		Content:      "Error calling LLM: " + err.Error(),
		FinishReason: "error",
	}
}

var pseudoToolCallPattern = regexp.MustCompile(`\[tool_call\]\s*([a-zA-Z_][a-zA-Z0-9_]*)\(\s*(\{.*?\})\s*\)`)

// recoverPseudoToolCalls scans resp.Content for "[tool_call] name({...})"
// markers a model emitted as plain text instead of a structured tool call
// (common with providers whose streaming tool-call support is unreliable),
// synthesizes ToolCall entries for each, and strips the markers from Content.
func recoverPseudoToolCalls(resp *ChatResponse) *ChatResponse {
	if resp == nil || len(resp.ToolCalls) > 0 || !strings.Contains(resp.Content, "[tool_call]") {
		return resp
	}

	matches := pseudoToolCallPattern.FindAllStringSubmatchIndex(resp.Content, -1)
	if len(matches) == 0 {
		return resp
	}

	var calls []ToolCall
	var cleaned strings.Builder
	last := 0
	for i, m := range matches {
		name := resp.Content[m[2]:m[3]]
		argsJSON := resp.Content[m[4]:m[5]]
		args, err := decodeToolArgs(argsJSON)
		if err != nil {
			continue // malformed occurrence: leave it in the text
		}
		cleaned.WriteString(resp.Content[last:m[0]])
		last = m[1]
		calls = append(calls, ToolCall{
			ID:        pseudoToolCallID(i),
			Name:      name,
			Arguments: args,
		})
	}
	cleaned.WriteString(resp.Content[last:])

	if len(calls) == 0 {
		return resp
	}

	resp.ToolCalls = calls
	resp.Content = strings.TrimSpace(cleaned.String())
	if resp.FinishReason == "stop" {
		resp.FinishReason = "tool_calls"
	}
	return resp
}

// decodeToolArgs parses a pseudo tool call's argument JSON. A failure means
// the occurrence is left as text, so the caller treats any error as "skip
// this match". (The structured path in openai.go ignores a decode failure
// and leaves the call's arguments empty; it keeps no {"raw": <text>} entry.)
func decodeToolArgs(raw string) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func pseudoToolCallID(i int) string {
	return "pseudo_call_" + strconv.Itoa(i)
}

// normalizeForGeminiProxy drops roles other than system/user/assistant,
// strips tool-call fields from remaining records, and drops empty assistant
// placeholders — the non-official Gemini proxy endpoint chokes on all three.
// Falls back to the original list if normalization would empty it.
func (a *Adapter) normalizeForGeminiProxy(messages []Message) []Message {
	if !a.cfg.GeminiProxy {
		return messages
	}

	normalized := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != "system" && m.Role != "user" && m.Role != "assistant" {
			continue
		}
		if m.Role == "assistant" && m.Content == "" && len(m.ToolCalls) == 0 {
			continue
		}
		m.ToolCalls = nil
		m.ToolCallID = ""
		m.Name = ""
		normalized = append(normalized, m)
	}
	if len(normalized) == 0 {
		return messages
	}
	return normalized
}
