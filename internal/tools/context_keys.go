package tools

import (
	"context"
)

// Tool execution context keys.
// These replace mutable setter fields on tool instances, making tools thread-safe
// for concurrent execution. Values are injected into context by the registry
// and read by individual tools during Execute().

type toolContextKey string

const (
	ctxChannel   toolContextKey = "tool_channel"
	ctxChatID    toolContextKey = "tool_chat_id"
	ctxPeerKind  toolContextKey = "tool_peer_kind"
	ctxWorkspace toolContextKey = "tool_workspace"
)

func WithToolChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ctxChannel, channel)
}

func ToolChannelFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxChannel).(string)
	return v
}

func WithToolChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, ctxChatID, chatID)
}

func ToolChatIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxChatID).(string)
	return v
}

func WithToolPeerKind(ctx context.Context, peerKind string) context.Context {
	return context.WithValue(ctx, ctxPeerKind, peerKind)
}

func ToolPeerKindFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxPeerKind).(string)
	return v
}

const ctxSessionKey toolContextKey = "tool_session_key"

func withToolSessionKey(ctx context.Context, sessionKey string) context.Context {
	return context.WithValue(ctx, ctxSessionKey, sessionKey)
}

// ToolSessionKeyFromCtx returns the session key the current tool call is
// scoped to, injected by Registry.ExecuteWithContext.
func ToolSessionKeyFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxSessionKey).(string)
	return v
}

type toolExtraKey string

func withToolExtra(ctx context.Context, key, value string) context.Context {
	return context.WithValue(ctx, toolExtraKey(key), value)
}

// ToolExtraFromCtx reads an extra context value injected via
// Registry.ExecuteWithContext's extra map.
func ToolExtraFromCtx(ctx context.Context, key string) string {
	v, _ := ctx.Value(toolExtraKey(key)).(string)
	return v
}

func WithToolWorkspace(ctx context.Context, ws string) context.Context {
	return context.WithValue(ctx, ctxWorkspace, ws)
}

func ToolWorkspaceFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxWorkspace).(string)
	return v
}

