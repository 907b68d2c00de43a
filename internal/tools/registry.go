package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// Tool is the uniform interface every tool body (filesystem, shell, web,
// outbound messaging, subagent spawn, MCP bridge, ...) implements.
//
// Execute must never let a Go panic or error escape to its caller: runtime
// failures are captured and stringified into the returned *Result so the
// agent loop can feed them back to the LLM as ordinary tool output.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Registry is a name -> Tool mapping. Names are unique: registering a name
// that already exists replaces the prior tool (used by MCP reconnects).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string // registration order, for stable ProviderDefs/List output
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool under its own Name().
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Unregister removes a tool by name. No-op if absent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tool names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ProviderDefs returns the OpenAI-compatible tool schema for every
// registered tool, in registration order.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, ToProviderDef(r.tools[name]))
	}
	return defs
}

// ToProviderDef converts a Tool into its OpenAI-compatible schema.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// Execute runs a tool by name with no per-request context values set.
// Unlike Tool.Execute, Registry.Execute never panics and never returns an
// unknown-tool condition as anything but an ordinary error *Result — the
// caller (the LLM, via the agent loop) always gets text back.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool panicked", "tool", name, "panic", rec)
			result = ErrorResult(fmt.Sprintf("Error: tool %q panicked: %v", name, rec))
		}
	}()

	t, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("Error: unknown tool %q", name))
	}
	res := t.Execute(ctx, args)
	if res == nil {
		return NewResult("")
	}
	return res
}

// ExecuteWithContext runs a tool by name after injecting the per-request
// routing values (channel/chat/peer/session) that side-effecting tools
// (outbound message, subagent spawn, cron) read via the context_keys.go
// accessors. extra carries additional context.Context string values a
// specific deployment wires in (e.g. run id); it may be nil.
func (r *Registry) ExecuteWithContext(
	ctx context.Context,
	name string,
	args map[string]interface{},
	channel, chatID, peerKind, sessionKey string,
	extra map[string]string,
) *Result {
	ctx = WithToolChannel(ctx, channel)
	ctx = WithToolChatID(ctx, chatID)
	ctx = WithToolPeerKind(ctx, peerKind)
	ctx = withToolSessionKey(ctx, sessionKey)
	for k, v := range extra {
		ctx = withToolExtra(ctx, k, v)
	}
	return r.Execute(ctx, name, args)
}
