package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// memoryFlushSettings is the resolved, defaulted form of config.MemoryFlushConfig.
type memoryFlushSettings struct {
	enabled             bool
	softThresholdTokens int
	prompt              string
	systemPrompt        string
}

const (
	defaultMemoryFlushSoftThreshold = 4000
	defaultMemoryFlushPrompt        = "Summarize anything from this conversation worth remembering long-term " +
		"(facts about the user, decisions made, ongoing tasks). Be concise. If nothing is worth keeping, say so."
	defaultMemoryFlushSystemPrompt = "You are extracting durable memory notes from a conversation that is about to be compacted."
)

// ResolveMemoryFlushSettings applies defaults on top of the configured
// compaction.memoryFlush block. A nil cfg or nil MemoryFlush yields the
// default (enabled) settings, matching the config struct's documented
// "nil = enabled" convention.
func ResolveMemoryFlushSettings(cfg *config.CompactionConfig) memoryFlushSettings {
	settings := memoryFlushSettings{
		enabled:             true,
		softThresholdTokens: defaultMemoryFlushSoftThreshold,
		prompt:              defaultMemoryFlushPrompt,
		systemPrompt:        defaultMemoryFlushSystemPrompt,
	}
	if cfg == nil || cfg.MemoryFlush == nil {
		return settings
	}
	mf := cfg.MemoryFlush
	if mf.Enabled != nil {
		settings.enabled = *mf.Enabled
	}
	if mf.SoftThresholdTokens > 0 {
		settings.softThresholdTokens = mf.SoftThresholdTokens
	}
	if mf.Prompt != "" {
		settings.prompt = mf.Prompt
	}
	if mf.SystemPrompt != "" {
		settings.systemPrompt = mf.SystemPrompt
	}
	return settings
}

// shouldRunMemoryFlush decides whether the current turn should run a
// memory-flush pass: memory must be configured for this agent, the flush
// must be enabled, and the session must be within softThresholdTokens of its
// compaction trigger — close enough that durable context is about to be
// dropped, but before it actually is.
func (l *Loop) shouldRunMemoryFlush(sessionKey string, tokenEstimate int, settings memoryFlushSettings) bool {
	if !settings.enabled || !l.hasMemory {
		return false
	}

	historyShare := 0.75
	if l.compactionCfg != nil && l.compactionCfg.MaxHistoryShare > 0 {
		historyShare = l.compactionCfg.MaxHistoryShare
	}
	threshold := int(float64(l.contextWindow) * historyShare)

	remaining := threshold - tokenEstimate
	return remaining >= 0 && remaining <= settings.softThresholdTokens
}

// runMemoryFlush asks the model to extract durable notes from the
// about-to-be-compacted history and appends them to the workspace's
// MEMORY.md file. Best-effort: failures are logged, never surfaced to the
// user, since compaction proceeds regardless.
func (l *Loop) runMemoryFlush(ctx context.Context, sessionKey string, settings memoryFlushSettings) {
	history := l.sessions.GetHistory(sessionKey)
	if len(history) == 0 {
		return
	}

	var transcript string
	for _, m := range history {
		if m.Role == "user" || m.Role == "assistant" {
			transcript += fmt.Sprintf("%s: %s\n", m.Role, SanitizeAssistantContent(m.Content))
		}
	}

	fctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := l.provider.Chat(fctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: settings.systemPrompt},
			{Role: "user", Content: settings.prompt + "\n\n" + transcript},
		},
		Model: l.model,
		Options: map[string]interface{}{
			providers.OptMaxTokens:   512,
			providers.OptTemperature: 0.2,
		},
	})
	if err != nil {
		slog.Warn("memory flush failed", "session", sessionKey, "error", err)
		return
	}

	note := SanitizeAssistantContent(resp.Content)
	if note == "" {
		return
	}

	if err := l.appendMemoryNote(note); err != nil {
		slog.Warn("memory flush write failed", "session", sessionKey, "error", err)
	}
}

// appendMemoryNote appends a timestamped entry to MEMORY.md in the agent's
// workspace, creating the file if it doesn't exist yet.
func (l *Loop) appendMemoryNote(note string) error {
	if l.workspace == "" {
		return nil
	}
	path := filepath.Join(l.workspace, "MEMORY.md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	entry := fmt.Sprintf("\n## %s\n\n%s\n", time.Now().UTC().Format(time.RFC3339), note)
	_, err = f.WriteString(entry)
	return err
}
