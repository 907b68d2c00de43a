package sessions

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

func TestGetHistoryTrimsToUserBoundaryAfterMaxWindowCut(t *testing.T) {
	s := &Session{Messages: []providers.Message{
		{Role: "user", Content: "u1"},
		{Role: "assistant", Content: "a1", ToolCalls: []providers.ToolCall{{ID: "c1", Name: "exec"}}},
		{Role: "tool", ToolCallID: "c1", Name: "exec", Content: "t1"},
		{Role: "user", Content: "u2"},
	}}

	got := s.GetHistory(2)
	if len(got) != 1 || got[0].Content != "u2" {
		t.Fatalf("expected [u2], got %+v", got)
	}
}

func TestGetHistoryHasNoOrphanToolMessagesInTrimmedWindow(t *testing.T) {
	s := &Session{Messages: []providers.Message{
		{Role: "user", Content: "u1"},
		{Role: "assistant", Content: "a1", ToolCalls: []providers.ToolCall{{ID: "c1", Name: "exec"}}},
		{Role: "tool", ToolCallID: "c1", Name: "exec", Content: "t1"},
		{Role: "user", Content: "u2"},
		{Role: "assistant", Content: "a2"},
	}}

	got := s.GetHistory(4)
	for _, m := range got {
		if m.Role == "tool" {
			established := false
			for _, prior := range got {
				if prior.Role == "assistant" {
					for _, tc := range prior.ToolCalls {
						if tc.ID == m.ToolCallID {
							established = true
						}
					}
				}
			}
			if !established {
				t.Fatalf("orphan tool record in window: %+v (window=%+v)", m, got)
			}
		}
	}
	if len(got) == 0 || got[0].Role != "user" {
		t.Fatalf("window must begin at user boundary, got %+v", got)
	}
}

func TestGetHistoryEmptyWhenNoUserBoundaryExists(t *testing.T) {
	s := &Session{Messages: []providers.Message{
		{Role: "assistant", Content: "a1"},
		{Role: "assistant", Content: "a2"},
	}}
	if got := s.GetHistory(2); len(got) != 0 {
		t.Fatalf("expected empty window, got %+v", got)
	}
}

func TestClearResetsWatermarksAndKeepsKey(t *testing.T) {
	m := NewManager("")
	key := SessionKey("a1", "chat:c1")
	m.AddMessage(key, providers.Message{Role: "user", Content: "hi"})
	m.SetConsolidationWatermark(key, 1, m.GetOrCreate(key).Updated)

	m.Clear(key)

	s := m.GetOrCreate(key)
	if s.Key != key {
		t.Fatalf("key must survive clear")
	}
	if len(s.Messages) != 0 {
		t.Fatalf("expected empty messages after clear, got %d", len(s.Messages))
	}
	if s.LastConsolidated != 0 || s.LastConsolidatedAt != nil {
		t.Fatalf("expected watermarks reset, got %d %v", s.LastConsolidated, s.LastConsolidatedAt)
	}
}

func TestInvalidateForcesReloadFromDisk(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	key := SessionKey("a1", "chat:c1")
	m.AddMessage(key, providers.Message{Role: "user", Content: "hi"})
	if err := m.Save(key); err != nil {
		t.Fatalf("save: %v", err)
	}

	m.AddMessage(key, providers.Message{Role: "assistant", Content: "unsaved"})
	m.Invalidate(key)

	s := m.GetOrCreate(key)
	if len(s.Messages) != 1 {
		t.Fatalf("expected reload from disk to drop unsaved in-memory mutation, got %d messages", len(s.Messages))
	}
}
