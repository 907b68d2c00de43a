package memory

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// fakeSessionStore is a minimal in-memory store.SessionStore double, enough
// to exercise the consolidation trigger formula without a real backend.
type fakeSessionStore struct {
	messages         []providers.Message
	lastConsolidated int
	lastConsolidatedAt *time.Time
	saved            bool
}

func (f *fakeSessionStore) GetOrCreate(key string) *store.SessionData          { return &store.SessionData{} }
func (f *fakeSessionStore) AddMessage(key string, msg providers.Message)      {}
func (f *fakeSessionStore) GetHistory(key string) []providers.Message         { return f.messages }
func (f *fakeSessionStore) GetSummary(key string) string                      { return "" }
func (f *fakeSessionStore) SetSummary(key, summary string)                    {}
func (f *fakeSessionStore) SetLabel(key, label string)                        {}
func (f *fakeSessionStore) SetAgentInfo(key string, agentUUID uuid.UUID, userID string) {}
func (f *fakeSessionStore) UpdateMetadata(key, model, provider, channel string) {}
func (f *fakeSessionStore) AccumulateTokens(key string, input, output int64)   {}
func (f *fakeSessionStore) IncrementCompaction(key string)                    {}
func (f *fakeSessionStore) GetCompactionCount(key string) int                 { return 0 }
func (f *fakeSessionStore) GetMemoryFlushCompactionCount(key string) int      { return 0 }
func (f *fakeSessionStore) SetMemoryFlushDone(key string)                     {}
func (f *fakeSessionStore) SetSpawnInfo(key, spawnedBy string, depth int)      {}
func (f *fakeSessionStore) SetContextWindow(key string, cw int)               {}
func (f *fakeSessionStore) GetContextWindow(key string) int                   { return 0 }
func (f *fakeSessionStore) SetLastPromptTokens(key string, tokens, msgCount int) {}
func (f *fakeSessionStore) GetLastPromptTokens(key string) (int, int)         { return 0, 0 }
func (f *fakeSessionStore) TruncateHistory(key string, keepLast int)          {}
func (f *fakeSessionStore) Reset(key string)                                  {}
func (f *fakeSessionStore) Delete(key string) error                           { return nil }
func (f *fakeSessionStore) List(agentID string) []store.SessionInfo           { return nil }
func (f *fakeSessionStore) ListPaged(opts store.SessionListOpts) store.SessionListResult {
	return store.SessionListResult{}
}
func (f *fakeSessionStore) Save(key string) error { f.saved = true; return nil }
func (f *fakeSessionStore) LastUsedChannel(agentID string) (string, string) { return "", "" }
func (f *fakeSessionStore) AddMessages(key string, msgs ...providers.Message) {
	f.messages = append(f.messages, msgs...)
}
func (f *fakeSessionStore) GetHistoryWindow(key string, maxMessages int) []providers.Message {
	return f.messages
}
func (f *fakeSessionStore) GetConsolidationWatermark(key string) (int, *time.Time) {
	return f.lastConsolidated, f.lastConsolidatedAt
}
func (f *fakeSessionStore) SetConsolidationWatermark(key string, lastConsolidated int, at time.Time) {
	f.lastConsolidated = lastConsolidated
	t := at
	f.lastConsolidatedAt = &t
}

func messagesOfLen(n int) []providers.Message {
	out := make([]providers.Message, n)
	for i := range out {
		out[i] = providers.Message{Role: "user", Content: "msg"}
	}
	return out
}

func TestEligibleFalseWhenBelowMemoryWindow(t *testing.T) {
	fs := &fakeSessionStore{messages: messagesOfLen(10)}
	c := NewConsolidator(Config{Sessions: fs, Memory: &config.MemoryConfig{MemoryWindow: 40}})
	if c.eligible("s1") {
		t.Fatalf("expected not eligible with only 10 messages and window 40")
	}
}

func TestEligibleTrueAtHardLimit(t *testing.T) {
	// memoryWindow=40 -> keep=20; hardLimit=30 -> fires once compress_end-last >= 30,
	// i.e. len(messages) >= 50.
	fs := &fakeSessionStore{messages: messagesOfLen(50)}
	c := NewConsolidator(Config{Sessions: fs, Memory: &config.MemoryConfig{MemoryWindow: 40, HardLimit: 30, CompressionWindowSize: 1000}})
	if !c.eligible("s1") {
		t.Fatalf("expected eligible at hard limit boundary")
	}
}

func TestEligibleTrueAtCompressionWindowSize(t *testing.T) {
	// keep=20, compressionWindowSize=12 -> fires once len(messages) >= 32.
	fs := &fakeSessionStore{messages: messagesOfLen(32)}
	c := NewConsolidator(Config{Sessions: fs, Memory: &config.MemoryConfig{MemoryWindow: 40, HardLimit: 1000, CompressionWindowSize: 12}})
	if !c.eligible("s1") {
		t.Fatalf("expected eligible at compression window size boundary")
	}
}

func TestEligibleTrueAfterCooldownEvenBelowWindowThresholds(t *testing.T) {
	fs := &fakeSessionStore{
		messages:           messagesOfLen(21), // delta = 21-20 = 1, below both thresholds
		lastConsolidatedAt: timePtr(time.Now().Add(-20 * time.Minute)),
	}
	c := NewConsolidator(Config{Sessions: fs, Memory: &config.MemoryConfig{
		MemoryWindow: 40, HardLimit: 1000, CompressionWindowSize: 1000, ConsolidationCooldownMin: 15,
	}})
	if !c.eligible("s1") {
		t.Fatalf("expected eligible once cooldown has elapsed")
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestSerializeForConsolidationIncludesToolNames(t *testing.T) {
	msgs := []providers.Message{
		{Role: "user", Content: "do the thing"},
		{Role: "assistant", ToolCalls: []providers.ToolCall{{Name: "read_file"}, {Name: "exec"}}},
	}
	got := serializeForConsolidation(msgs)
	if !strings.Contains(got, "[tools: read_file,exec]") {
		t.Fatalf("expected tool names in serialized output, got %q", got)
	}
	if !strings.Contains(got, "USER") || !strings.Contains(got, "ASSISTANT") {
		t.Fatalf("expected uppercased roles, got %q", got)
	}
}

func TestParseConsolidationResponseStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"history_entry\": \"did stuff\", \"memory_update\": \"remember stuff\"}\n```"
	entry, update, ok := parseConsolidationResponse(raw)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if entry != "did stuff" || update != "remember stuff" {
		t.Fatalf("got entry=%q update=%q", entry, update)
	}
}

func TestParseConsolidationResponsePlainJSON(t *testing.T) {
	raw := `{"history_entry": "did stuff", "memory_update": ""}`
	entry, update, ok := parseConsolidationResponse(raw)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if entry != "did stuff" || update != "" {
		t.Fatalf("got entry=%q update=%q", entry, update)
	}
}

func TestParseConsolidationResponseFallsBackOnGarbage(t *testing.T) {
	_, _, ok := parseConsolidationResponse("not json at all")
	if ok {
		t.Fatalf("expected parse failure on non-JSON input")
	}
}
