package agent

import (
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

const (
	defaultKeepLastAssistants   = 3
	defaultSoftTrimRatio        = 0.3
	defaultHardClearRatio       = 0.5
	defaultMinPrunableToolChars = 50000
	defaultSoftTrimMaxChars     = 4000
	defaultSoftTrimHeadChars    = 1500
	defaultSoftTrimTailChars    = 1500
	defaultHardClearPlaceholder = "[Old tool result content cleared]"
)

// pruneContextMessages trims or clears old tool results in-memory so a long
// session doesn't exceed the model's context window. Messages are never
// mutated in the session store — this only affects what's sent to the LLM
// on this turn. Off by default (cfg.Mode == "" or "off").
func pruneContextMessages(messages []providers.Message, contextWindow int, cfg *config.ContextPruningConfig) []providers.Message {
	if cfg == nil || cfg.Mode != "cache-ttl" || contextWindow <= 0 {
		return messages
	}

	keepLastAssistants := cfg.KeepLastAssistants
	if keepLastAssistants <= 0 {
		keepLastAssistants = defaultKeepLastAssistants
	}
	protectedFrom := protectedBoundary(messages, keepLastAssistants)

	estimatedTokens := estimateTokensFlat(messages)
	softRatio := cfg.SoftTrimRatio
	if softRatio <= 0 {
		softRatio = defaultSoftTrimRatio
	}
	hardRatio := cfg.HardClearRatio
	if hardRatio <= 0 {
		hardRatio = defaultHardClearRatio
	}
	softThreshold := int(float64(contextWindow) * softRatio)
	hardThreshold := int(float64(contextWindow) * hardRatio)

	if estimatedTokens < softThreshold {
		return messages
	}

	minPrunableChars := cfg.MinPrunableToolChars
	if minPrunableChars <= 0 {
		minPrunableChars = defaultMinPrunableToolChars
	}

	hardClear := estimatedTokens >= hardThreshold
	hardClearEnabled := cfg.HardClear == nil || cfg.HardClear.Enabled == nil || *cfg.HardClear.Enabled
	placeholder := defaultHardClearPlaceholder
	if cfg.HardClear != nil && cfg.HardClear.Placeholder != "" {
		placeholder = cfg.HardClear.Placeholder
	}

	maxChars := defaultSoftTrimMaxChars
	headChars := defaultSoftTrimHeadChars
	tailChars := defaultSoftTrimTailChars
	if cfg.SoftTrim != nil {
		if cfg.SoftTrim.MaxChars > 0 {
			maxChars = cfg.SoftTrim.MaxChars
		}
		if cfg.SoftTrim.HeadChars > 0 {
			headChars = cfg.SoftTrim.HeadChars
		}
		if cfg.SoftTrim.TailChars > 0 {
			tailChars = cfg.SoftTrim.TailChars
		}
	}

	out := make([]providers.Message, len(messages))
	copy(out, messages)

	// Total prunable chars across candidate messages, used to decide whether
	// it's even worth acting (matches the "minPrunableToolChars" gate).
	prunableChars := 0
	for i := 0; i < protectedFrom; i++ {
		if out[i].Role == "tool" {
			prunableChars += len(out[i].Content)
		}
	}
	if prunableChars < minPrunableChars {
		return out
	}

	for i := 0; i < protectedFrom; i++ {
		if out[i].Role != "tool" {
			continue
		}
		content := out[i].Content
		if hardClear && hardClearEnabled {
			out[i].Content = placeholder
			continue
		}
		if len(content) > maxChars {
			out[i].Content = content[:headChars] + "\n...[trimmed]...\n" + content[len(content)-tailChars:]
		}
	}
	return out
}

// protectedBoundary returns the index of the first message that belongs to
// the protected tail: the last keepLastAssistants assistant turns and
// everything after them. Messages before this index are eligible for pruning.
func protectedBoundary(messages []providers.Message, keepLastAssistants int) int {
	seen := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" {
			seen++
			if seen >= keepLastAssistants {
				return i
			}
		}
	}
	return 0
}
