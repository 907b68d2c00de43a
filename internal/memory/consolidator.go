package memory

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

const (
	defaultMemoryWindow             = 40
	defaultCompressionWindowSize    = 12
	defaultHardLimit                = 30
	defaultConsolidationCooldownMin = 15
)

// triggerPolicy is the resolved, defaulted form of config.MemoryConfig's
// consolidation-trigger fields.
type triggerPolicy struct {
	memoryWindow          int
	compressionWindowSize int
	hardLimit             int
	cooldown              time.Duration
}

func resolveTriggerPolicy(cfg *config.MemoryConfig) triggerPolicy {
	p := triggerPolicy{
		memoryWindow:          defaultMemoryWindow,
		compressionWindowSize: defaultCompressionWindowSize,
		hardLimit:             defaultHardLimit,
		cooldown:              defaultConsolidationCooldownMin * time.Minute,
	}
	if cfg == nil {
		return p
	}
	if cfg.MemoryWindow > 0 {
		p.memoryWindow = cfg.MemoryWindow
	}
	if cfg.CompressionWindowSize > 0 {
		p.compressionWindowSize = cfg.CompressionWindowSize
	}
	if cfg.HardLimit > 0 {
		p.hardLimit = cfg.HardLimit
	}
	if cfg.ConsolidationCooldownMin > 0 {
		p.cooldown = time.Duration(cfg.ConsolidationCooldownMin) * time.Minute
	}
	return p
}

// WorkspaceResolver returns the filesystem workspace root to use for a
// session's memory files (per-agent or per-user workspace, depending on mode).
type WorkspaceResolver func(sessionKey string) string

// Consolidator reduces long session histories into a durable long-term
// memory blob plus an append-only history log, triggered by message-count
// and cooldown thresholds and deduplicated per session via a
// running-set + pending-set state machine.
type Consolidator struct {
	provider  providers.Provider
	model     string
	sessions  store.SessionStore
	workspace WorkspaceResolver
	policy    triggerPolicy

	mu      sync.Mutex
	running map[string]bool
	pending map[string]bool
}

// Config configures a new Consolidator.
type Config struct {
	Provider  providers.Provider
	Model     string
	Sessions  store.SessionStore
	Workspace WorkspaceResolver
	Memory    *config.MemoryConfig
}

func NewConsolidator(cfg Config) *Consolidator {
	return &Consolidator{
		provider:  cfg.Provider,
		model:     cfg.Model,
		sessions:  cfg.Sessions,
		workspace: cfg.Workspace,
		policy:    resolveTriggerPolicy(cfg.Memory),
		running:   make(map[string]bool),
		pending:   make(map[string]bool),
	}
}

// MaybeTrigger evaluates the trigger formula for sessionKey and schedules a
// consolidation run as a detached goroutine if eligible. If a run is already
// in flight for this session, the request is recorded as pending instead —
// the in-flight run re-checks eligibility on completion and fires again if
// still warranted.
func (c *Consolidator) MaybeTrigger(ctx context.Context, sessionKey string) {
	if !c.eligible(sessionKey) {
		return
	}

	c.mu.Lock()
	if c.running[sessionKey] {
		c.pending[sessionKey] = true
		c.mu.Unlock()
		return
	}
	c.running[sessionKey] = true
	c.mu.Unlock()

	go c.runLoop(context.Background(), sessionKey)
}

// runLoop performs one consolidation pass, then re-checks the pending flag
// and re-enters if a trigger arrived while this run was in flight.
func (c *Consolidator) runLoop(ctx context.Context, sessionKey string) {
	for {
		c.consolidateOnce(ctx, sessionKey, false, nil)

		c.mu.Lock()
		if c.pending[sessionKey] && c.eligible(sessionKey) {
			c.pending[sessionKey] = false
			c.mu.Unlock()
			continue
		}
		delete(c.pending, sessionKey)
		delete(c.running, sessionKey)
		c.mu.Unlock()
		return
	}
}

// eligible implements the distilled trigger formula:
//
//	keep = max(1, memory_window/2)
//	compress_end = len(messages) - keep
//	delta = compress_end - last_consolidated
//
// eligible when delta > 0; fires when delta >= hard_limit OR
// delta >= compression_window_size OR the cooldown has elapsed since the
// last consolidation.
func (c *Consolidator) eligible(sessionKey string) bool {
	messages := c.sessions.GetHistory(sessionKey)
	lastConsolidated, lastAt := c.sessions.GetConsolidationWatermark(sessionKey)

	keep := c.policy.memoryWindow / 2
	if keep < 1 {
		keep = 1
	}
	compressEnd := len(messages) - keep
	delta := compressEnd - lastConsolidated
	if delta <= 0 {
		return false
	}

	if delta >= c.policy.hardLimit || delta >= c.policy.compressionWindowSize {
		return true
	}
	if lastAt != nil && time.Since(*lastAt) >= c.policy.cooldown {
		return true
	}
	return false
}

// ArchiveAll runs a one-shot consolidation over a full message snapshot
// (triggered by /new), with no watermark advance and no session save — the
// session has already been cleared by the time this runs.
func (c *Consolidator) ArchiveAll(ctx context.Context, sessionKey string, snapshot []providers.Message) {
	if len(snapshot) == 0 {
		return
	}
	go c.consolidateOnce(ctx, sessionKey, true, snapshot)
}

// consolidateOnce performs a single consolidation LLM call and, on success,
// writes the results and advances the watermark (unless archiveAll).
func (c *Consolidator) consolidateOnce(ctx context.Context, sessionKey string, archiveAll bool, snapshot []providers.Message) {
	var toConsolidate []providers.Message
	var compressEnd int

	if archiveAll {
		toConsolidate = snapshot
	} else {
		messages := c.sessions.GetHistory(sessionKey)
		lastConsolidated, _ := c.sessions.GetConsolidationWatermark(sessionKey)
		keep := c.policy.memoryWindow / 2
		if keep < 1 {
			keep = 1
		}
		compressEnd = len(messages) - keep
		if compressEnd <= lastConsolidated || compressEnd > len(messages) {
			return
		}
		toConsolidate = messages[lastConsolidated:compressEnd]
	}
	if len(toConsolidate) == 0 {
		return
	}

	workspace := ""
	if c.workspace != nil {
		workspace = c.workspace(sessionKey)
	}
	memStore := NewStore(workspace, "")

	serialized := serializeForConsolidation(toConsolidate)
	resp, err := c.callConsolidationLLM(ctx, memStore, serialized)
	if err != nil {
		slog.Warn("memory consolidation failed", "session", sessionKey, "error", err)
		return
	}

	historyEntry, memoryUpdate, ok := parseConsolidationResponse(resp)
	if !ok {
		// Lenient fallback: treat the whole response as the history entry,
		// leave long-term memory unchanged.
		slog.Warn("memory consolidation: response not parseable, storing it as the history entry", "session", sessionKey)
		historyEntry = strings.TrimSpace(resp)
		memoryUpdate = ""
	}

	if historyEntry != "" {
		if err := memStore.AppendHistory(historyEntry); err != nil {
			slog.Warn("memory consolidation: history append failed", "session", sessionKey, "error", err)
			return
		}
	}
	if memoryUpdate != "" {
		if err := memStore.WriteLongTerm(memoryUpdate); err != nil {
			slog.Warn("memory consolidation: long-term write failed", "session", sessionKey, "error", err)
			return
		}
	}

	if archiveAll {
		return
	}
	c.sessions.SetConsolidationWatermark(sessionKey, compressEnd, time.Now())
	c.sessions.Save(sessionKey)
}

func (c *Consolidator) callConsolidationLLM(ctx context.Context, memStore *Store, serialized string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	prompt := fmt.Sprintf(`You are consolidating an aging conversation slice into long-term memory.

Existing long-term memory:
%s

Conversation slice to consolidate (one line per message):
%s

Reply with exactly one JSON object with two keys:
- "history_entry": a short paragraph starting with a "[YYYY-MM-DD HH:MM]" timestamp, summarizing this slice for an append-only log.
- "memory_update": the new full text of the long-term memory blob (or the existing text unchanged if nothing durable changed).`,
		memStore.ReadLongTerm(), serialized)

	resp, err := c.provider.Chat(cctx, providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: prompt}},
		Model:    c.model,
		Options: map[string]interface{}{
			providers.OptMaxTokens:   2048,
			providers.OptTemperature: 0.2,
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// serializeForConsolidation renders each message as one line:
// "[<short-ts>] ROLE [tools: name1,name2]: content".
func serializeForConsolidation(messages []providers.Message) string {
	var b strings.Builder
	for _, m := range messages {
		ts := m.Timestamp.Format("15:04")
		if m.Timestamp.IsZero() {
			ts = "--:--"
		}
		role := strings.ToUpper(m.Role)
		toolsNote := ""
		if len(m.ToolCalls) > 0 {
			names := make([]string, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				names[i] = tc.Name
			}
			toolsNote = " [tools: " + strings.Join(names, ",") + "]"
		}
		fmt.Fprintf(&b, "[%s] %s%s: %s\n", ts, role, toolsNote, m.Content)
	}
	return b.String()
}

var codeFencePattern = regexp.MustCompile("(?s)^```(?:json5?)?\\s*\n?(.*?)\n?```\\s*$")

// parseConsolidationResponse strips Markdown code fences if present, then
// leniently parses the {history_entry, memory_update} object via json5
// (tolerant of trailing commas and the occasional stray comment line some
// models emit inside otherwise-valid JSON).
func parseConsolidationResponse(raw string) (historyEntry, memoryUpdate string, ok bool) {
	text := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	var parsed struct {
		HistoryEntry string `json:"history_entry"`
		MemoryUpdate string `json:"memory_update"`
	}
	if err := json5.Unmarshal([]byte(text), &parsed); err != nil {
		return "", "", false
	}
	if parsed.HistoryEntry == "" && parsed.MemoryUpdate == "" {
		return "", "", false
	}
	return parsed.HistoryEntry, parsed.MemoryUpdate, true
}
