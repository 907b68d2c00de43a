package tools

import (
	"context"
	"testing"
)

type stubTool struct {
	name string
	run  func(ctx context.Context, args map[string]interface{}) *Result
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	return s.run(ctx, args)
}

func TestRegistryExecuteUnknownToolReturnsErrorResultNotPanic(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "does_not_exist", nil)
	if res == nil || !res.IsError {
		t.Fatalf("expected error result, got %+v", res)
	}
}

func TestRegistryExecuteCapturesPanicAsErrorResult(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "boom", run: func(ctx context.Context, args map[string]interface{}) *Result {
		panic("kaboom")
	}})

	res := r.Execute(context.Background(), "boom", nil)
	if res == nil || !res.IsError {
		t.Fatalf("expected panic to be captured as error result, got %+v", res)
	}
}

func TestExecuteWithContextInjectsRoutingValues(t *testing.T) {
	r := NewRegistry()
	var gotChannel, gotChat, gotSession string
	r.Register(&stubTool{name: "echo", run: func(ctx context.Context, args map[string]interface{}) *Result {
		gotChannel = ToolChannelFromCtx(ctx)
		gotChat = ToolChatIDFromCtx(ctx)
		gotSession = ToolSessionKeyFromCtx(ctx)
		return NewResult("ok")
	}})

	r.ExecuteWithContext(context.Background(), "echo", nil, "telegram", "c1", "direct", "agent:a1:telegram:direct:c1", nil)

	if gotChannel != "telegram" || gotChat != "c1" || gotSession != "agent:a1:telegram:direct:c1" {
		t.Fatalf("routing values not injected: channel=%q chat=%q session=%q", gotChannel, gotChat, gotSession)
	}
}

func TestUnregisterRemovesFromListAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "b"})
	r.Unregister("a")

	if _, ok := r.Get("a"); ok {
		t.Fatalf("expected a to be gone")
	}
	list := r.List()
	if len(list) != 1 || list[0] != "b" {
		t.Fatalf("expected [b], got %+v", list)
	}
}
