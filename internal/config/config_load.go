package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// DefaultAgentID is used when no agent in Agents.List is marked default.
const DefaultAgentID = "default"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Workspace:           "~/.agent-runtime/workspace",
				RestrictToWorkspace: true,
				Provider:            "openai",
				Model:               "gpt-4o",
				MaxTokens:           8192,
				Temperature:         0.7,
				MaxToolIterations:   50,
				ContextWindow:       128000,
			},
		},
		Gateway: GatewayConfig{
			MaxMessageChars: 32000,
		},
		Tools: ToolsConfig{
			Web: WebToolsConfig{
				DuckDuckGo: DuckDuckGoConfig{Enabled: true, MaxResults: 5},
			},
			ExecApproval: ExecApprovalCfg{
				Security: "full",
				Ask:      "off",
			},
		},
		Sessions: SessionsConfig{
			Storage: "~/.agent-runtime/sessions",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			cfg.applyContextPruningDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyContextPruningDefaults()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("AGENT_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("AGENT_OPENAI_BASE_URL", &c.Providers.OpenAI.APIBase)
	envStr("AGENT_OPENROUTER_API_KEY", &c.Providers.OpenRouter.APIKey)
	envStr("AGENT_GROQ_API_KEY", &c.Providers.Groq.APIKey)
	envStr("AGENT_DEEPSEEK_API_KEY", &c.Providers.DeepSeek.APIKey)
	envStr("AGENT_GEMINI_API_KEY", &c.Providers.Gemini.APIKey)
	envStr("AGENT_MISTRAL_API_KEY", &c.Providers.Mistral.APIKey)
	envStr("AGENT_XAI_API_KEY", &c.Providers.XAI.APIKey)
	envStr("AGENT_MINIMAX_API_KEY", &c.Providers.MiniMax.APIKey)
	envStr("AGENT_COHERE_API_KEY", &c.Providers.Cohere.APIKey)
	envStr("AGENT_PERPLEXITY_API_KEY", &c.Providers.Perplexity.APIKey)
	envStr("AGENT_BRAVE_API_KEY", &c.Tools.Web.Brave.APIKey)

	// Allow overriding default provider/model
	envStr("AGENT_PROVIDER", &c.Agents.Defaults.Provider)
	envStr("AGENT_MODEL", &c.Agents.Defaults.Model)

	// Workspace & sessions
	envStr("AGENT_WORKSPACE", &c.Agents.Defaults.Workspace)
	envStr("AGENT_SESSIONS_STORAGE", &c.Sessions.Storage)

	// Telemetry
	envStr("AGENT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("AGENT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("AGENT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("AGENT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENT_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	// Owner IDs from env (comma-separated)
	if v := os.Getenv("AGENT_OWNER_IDS"); v != "" {
		c.Gateway.OwnerIDs = strings.Split(v, ",")
	}
}

// applyContextPruningDefaults auto-enables context pruning once any provider
// is configured, so long sessions don't unboundedly grow tool-result context.
func (c *Config) applyContextPruningDefaults() {
	if !c.HasAnyProvider() {
		return
	}

	defaults := &c.Agents.Defaults
	if defaults.ContextPruning == nil {
		defaults.ContextPruning = &ContextPruningConfig{
			Mode: "cache-ttl",
		}
	} else if defaults.ContextPruning.Mode == "" {
		defaults.ContextPruning.Mode = "cache-ttl"
	}
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config for optimistic concurrency.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// WorkspacePath returns the expanded workspace path.
func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Agents.Defaults.Workspace)
}

// ResolveAgent returns the effective config for a given agent ID,
// merging defaults with per-agent overrides.
func (c *Config) ResolveAgent(agentID string) AgentDefaults {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := c.Agents.Defaults
	if spec, ok := c.Agents.List[agentID]; ok {
		if spec.Provider != "" {
			d.Provider = spec.Provider
		}
		if spec.Model != "" {
			d.Model = spec.Model
		}
		if spec.MaxTokens > 0 {
			d.MaxTokens = spec.MaxTokens
		}
		if spec.Temperature > 0 {
			d.Temperature = spec.Temperature
		}
		if spec.MaxToolIterations > 0 {
			d.MaxToolIterations = spec.MaxToolIterations
		}
		if spec.ContextWindow > 0 {
			d.ContextWindow = spec.ContextWindow
		}
		if spec.Workspace != "" {
			d.Workspace = spec.Workspace
		}
	}

	return d
}

// ResolveDefaultAgentID returns the ID of the agent marked as default,
// or DefaultAgentID if none is explicitly marked.
func (c *Config) ResolveDefaultAgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for id, spec := range c.Agents.List {
		if spec.Default {
			return id
		}
	}
	return DefaultAgentID
}

// ResolveDisplayName returns the display name for an agent.
func (c *Config) ResolveDisplayName(agentID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if spec, ok := c.Agents.List[agentID]; ok && spec.DisplayName != "" {
		return spec.DisplayName
	}
	return "Agent"
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
// Call this after modifying config to restore runtime secrets from env vars.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
	c.applyContextPruningDefaults()
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
