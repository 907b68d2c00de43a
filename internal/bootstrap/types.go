package bootstrap

import "github.com/nextlevelbuilder/goclaw/internal/sessions"

// ContextFile is a named, in-memory text file injected into the system
// prompt alongside the seeded workspace files — auto-generated content
// (delegation targets, team roster, availability) that isn't written to
// disk, only assembled per-request.
type ContextFile struct {
	Path    string
	Content string
}

// Workspace file names. These are seeded by EnsureWorkspaceFiles and read
// back by the system prompt builder on every request.
const (
	AgentsFile    = "AGENTS.md"
	SoulFile      = "SOUL.md"
	ToolsFile     = "TOOLS.md"
	IdentityFile  = "IDENTITY.md"
	UserFile      = "USER.md"
	HeartbeatFile = "HEARTBEAT.md"
	BootstrapFile = "BOOTSTRAP.md"

	// DelegationFile and TeamFile are synthetic ContextFile paths — never
	// written to disk, only attached per-request by the resolver.
	DelegationFile = "DELEGATES.md"
	TeamFile       = "TEAM.md"
)

// IsSubagentSession reports whether a session key belongs to a subagent run.
func IsSubagentSession(key string) bool { return sessions.IsSubagentSession(key) }

// IsCronSession reports whether a session key belongs to a scheduled/cron run.
func IsCronSession(key string) bool { return sessions.IsCronSession(key) }
