package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bootstrap"
)

// PromptMode selects how much of the system prompt gets assembled.
type PromptMode string

const (
	// PromptFull is the normal, direct-chat prompt: identity, all context
	// files, and message rules. No skills or sandbox section is built.
	PromptFull PromptMode = "full"
	// PromptMinimal strips bootstrap/persona framing for subagent and cron
	// runs, which don't need the full onboarding voice — just identity,
	// tools, and whatever context files were explicitly passed in.
	PromptMinimal PromptMode = "minimal"
)

// SystemPromptConfig carries everything BuildSystemPrompt needs to assemble
// a request's system prompt. Constructed fresh per request in buildMessages.
type SystemPromptConfig struct {
	AgentID   string
	Model     string
	Workspace string
	Channel   string
	OwnerIDs  []string
	Mode      PromptMode

	ToolNames []string
	HasMemory bool
	HasSpawn  bool

	ContextFiles []bootstrap.ContextFile
	ExtraPrompt  string
}

// BuildSystemPrompt assembles the full system prompt from the identity
// section (runtime, workspace, tools, owners, time), the context files, the
// message rules (full mode only), ExtraPrompt and the current channel,
// joined the same way other markdown-section prompts in this codebase are:
// "\n\n---\n\n" between top-level sections.
func BuildSystemPrompt(cfg SystemPromptConfig) string {
	var parts []string

	parts = append(parts, buildIdentitySection(cfg))

	if cfg.Mode == PromptFull {
		if cf := buildContextFilesSection(cfg.ContextFiles); cf != "" {
			parts = append(parts, cf)
		}
		parts = append(parts, buildMessageRulesSection(cfg))
	} else {
		// Minimal mode: subagent/cron context files only, no persona framing.
		if cf := buildContextFilesSection(cfg.ContextFiles); cf != "" {
			parts = append(parts, cf)
		}
	}

	if cfg.ExtraPrompt != "" {
		parts = append(parts, cfg.ExtraPrompt)
	}

	if cfg.Channel != "" {
		parts = append(parts, fmt.Sprintf("## Current Session\nChannel: %s", cfg.Channel))
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func buildIdentitySection(cfg SystemPromptConfig) string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	tz, _ := time.Now().Zone()

	var b strings.Builder
	fmt.Fprintf(&b, "# Agent %s\n\n", cfg.AgentID)
	b.WriteString("You are an autonomous chat agent. Identity lives in SOUL.md, user context in USER.md, " +
		"behavioral rules in AGENTS.md — read those context files below if present.\n\n")
	b.WriteString("You can: read and edit files, run commands, search the web, send messages, and spawn subagents.\n\n")

	b.WriteString("## Runtime\n")
	fmt.Fprintf(&b, "Model: %s\n\n", cfg.Model)

	b.WriteString("## Workspace\n")
	fmt.Fprintf(&b, "Your workspace is at: %s\n", cfg.Workspace)
	if cfg.Workspace != "" {
		fmt.Fprintf(&b, "- Memory notes: %s/MEMORY.md\n", cfg.Workspace)
	}
	if len(cfg.ToolNames) > 0 {
		fmt.Fprintf(&b, "- Available tools: %s\n", strings.Join(cfg.ToolNames, ", "))
	}
	if len(cfg.OwnerIDs) > 0 {
		fmt.Fprintf(&b, "- Owners: %s\n", strings.Join(cfg.OwnerIDs, ", "))
	}

	b.WriteString("\n## Current Time\n")
	fmt.Fprintf(&b, "%s (%s)", now, tz)

	return b.String()
}

func buildContextFilesSection(files []bootstrap.ContextFile) string {
	if len(files) == 0 {
		return ""
	}
	var parts []string
	for _, f := range files {
		if f.Content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", f.Path, f.Content))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n")
}

func buildMessageRulesSection(cfg SystemPromptConfig) string {
	var b strings.Builder
	b.WriteString("## Message Rules\n")
	b.WriteString("- Default: for normal conversation, reply directly with assistant text; don't call a message tool.\n")
	b.WriteString("- Use a message tool only when needed (e.g. sending a sticker, a long-running task's progress notice, " +
		"or an explicit out-of-band/cross-chat send).\n")
	b.WriteString("- If no reply is needed, output exactly [SILENT] — it is stripped before delivery and nothing is sent.\n")
	b.WriteString("- Avoid duplicating a message tool's final answer in your text reply: if the message tool already " +
		"sent the complete answer, your final text should be [SILENT].\n")
	if cfg.HasSpawn {
		b.WriteString("- Use spawn to delegate self-contained subtasks to a subagent instead of doing everything inline.\n")
	}
	if cfg.HasMemory {
		b.WriteString("- Long-term facts worth remembering across sessions are consolidated automatically; you don't need to manage this yourself.\n")
	}
	return b.String()
}

