package providers

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeProvider struct {
	name          string
	chatResp      *ChatResponse
	chatErr       error
	streamResp    *ChatResponse
	streamErr     error
	chatCalls     int
	streamCalls   int
}

func (f *fakeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	f.chatCalls++
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return f.chatResp, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	f.streamCalls++
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.streamResp, nil
}

func (f *fakeProvider) DefaultModel() string { return "fake-model" }
func (f *fakeProvider) Name() string         { return f.name }

func TestChatFallsBackToStreamOnNonStreamFailure(t *testing.T) {
	inner := &fakeProvider{
		chatErr:    errors.New("connection reset"),
		streamResp: &ChatResponse{Content: "from stream", FinishReason: "stop"},
	}
	a := NewAdapter(inner, AdapterConfig{PreferStream: false})

	resp, err := a.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Content != "from stream" {
		t.Fatalf("expected fallback content, got %q", resp.Content)
	}
	if inner.chatCalls != 1 || inner.streamCalls != 1 {
		t.Fatalf("expected one call to each mode, got chat=%d stream=%d", inner.chatCalls, inner.streamCalls)
	}
}

func TestChatReturnsErrorResponseOnDoubleFailure(t *testing.T) {
	inner := &fakeProvider{
		chatErr:   errors.New("boom"),
		streamErr: errors.New("boom again"),
	}
	a := NewAdapter(inner, AdapterConfig{})

	resp, err := a.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("expected no Go error, got %v", err)
	}
	if resp.FinishReason != "error" {
		t.Fatalf("expected finish_reason=error, got %q", resp.FinishReason)
	}
	if resp.Content == "" {
		t.Fatalf("expected a non-empty error content")
	}
}

func TestChatPrefersStreamWhenConfigured(t *testing.T) {
	inner := &fakeProvider{
		streamResp: &ChatResponse{Content: "streamed", FinishReason: "stop"},
	}
	a := NewAdapter(inner, AdapterConfig{PreferStream: true})

	resp, err := a.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Content != "streamed" {
		t.Fatalf("got %q", resp.Content)
	}
	if inner.streamCalls != 1 || inner.chatCalls != 0 {
		t.Fatalf("expected only the stream path to be called, got chat=%d stream=%d", inner.chatCalls, inner.streamCalls)
	}
}

func TestRecoverPseudoToolCallsParsesMarkerAndStripsText(t *testing.T) {
	inner := &fakeProvider{
		chatResp: &ChatResponse{
			Content:      `Sure, let me check. [tool_call] read_file({"path": "notes.md"}) I'll have it shortly.`,
			FinishReason: "stop",
		},
	}
	a := NewAdapter(inner, AdapterConfig{})

	resp, err := a.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected one recovered tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "read_file" {
		t.Fatalf("got name %q", tc.Name)
	}
	if tc.Arguments["path"] != "notes.md" {
		t.Fatalf("got arguments %+v", tc.Arguments)
	}
	if resp.FinishReason != "tool_calls" {
		t.Fatalf("expected finish_reason promoted to tool_calls, got %q", resp.FinishReason)
	}
	if containsMarker(resp.Content) {
		t.Fatalf("expected marker stripped from content, got %q", resp.Content)
	}
}

func TestRecoverPseudoToolCallsLeavesMalformedOccurrenceInText(t *testing.T) {
	inner := &fakeProvider{
		chatResp: &ChatResponse{
			Content:      `[tool_call] read_file({not valid json})`,
			FinishReason: "stop",
		},
	}
	a := NewAdapter(inner, AdapterConfig{})

	resp, err := a.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if len(resp.ToolCalls) != 0 {
		t.Fatalf("expected no recovered tool calls for malformed JSON, got %d", len(resp.ToolCalls))
	}
	if !containsMarker(resp.Content) {
		t.Fatalf("expected malformed marker left in text, got %q", resp.Content)
	}
}

func TestNormalizeForGeminiProxyDropsToolRecordsAndNonCoreRoles(t *testing.T) {
	a := NewAdapter(&fakeProvider{}, AdapterConfig{GeminiProxy: true})
	messages := []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
		{Role: "tool", Content: "result", ToolCallID: "c1"},
		{Role: "assistant", Content: "", ToolCalls: nil},
		{Role: "assistant", Content: "hello", ToolCalls: []ToolCall{{ID: "c1", Name: "x"}}},
	}

	got := a.normalizeForGeminiProxy(messages)
	if len(got) != 3 {
		t.Fatalf("expected 3 normalized messages, got %d: %+v", len(got), got)
	}
	for _, m := range got {
		if m.Role == "tool" {
			t.Fatalf("expected tool role dropped, found %+v", m)
		}
		if len(m.ToolCalls) != 0 || m.ToolCallID != "" || m.Name != "" {
			t.Fatalf("expected tool fields stripped, found %+v", m)
		}
	}
}

func TestNormalizeForGeminiProxyFallsBackWhenResultWouldBeEmpty(t *testing.T) {
	a := NewAdapter(&fakeProvider{}, AdapterConfig{GeminiProxy: true})
	messages := []Message{{Role: "tool", Content: "only a tool record"}}

	got := a.normalizeForGeminiProxy(messages)
	if len(got) != 1 || got[0].Role != "tool" {
		t.Fatalf("expected fallback to original list, got %+v", got)
	}
}

func containsMarker(s string) bool {
	return strings.Contains(s, "[tool_call]")
}
