package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
)

// readyTimeout bounds how long a server gets to complete its handshake and
// tool discovery before Start gives up on it and moves on.
const readyTimeout = 30 * time.Second

// connectReady is what the handshake goroutine hands back through the
// one-shot ready signal.
type connectReady struct {
	client     *mcpclient.Client
	toolsResult *mcpgo.ListToolsResult
	err        error
}

// connectServer creates a client, initializes the connection, discovers tools, and registers them.
// The handshake and discovery run under a readyTimeout deadline: a server
// that doesn't answer in time is cancelled and skipped rather than blocking
// the rest of Start indefinitely.
func (m *Manager) connectServer(ctx context.Context, name, transportType, command string, args []string, env map[string]string, url string, headers map[string]string, toolPrefix string, timeoutSec int) error {
	readyCtx, readyCancel := context.WithTimeout(ctx, readyTimeout)
	defer readyCancel()

	ready := make(chan connectReady, 1)
	go func() {
		client, err := createClient(transportType, command, args, env, url, headers)
		if err != nil {
			ready <- connectReady{err: fmt.Errorf("create client: %w", err)}
			return
		}

		// Start transport (SSE/streamable-http need explicit Start; stdio auto-starts)
		if transportType != "stdio" {
			if err := client.Start(readyCtx); err != nil {
				_ = client.Close()
				ready <- connectReady{err: fmt.Errorf("start transport: %w", err)}
				return
			}
		}

		// Initialize MCP handshake
		initReq := mcpgo.InitializeRequest{}
		initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
		initReq.Params.ClientInfo = mcpgo.Implementation{
			Name:    "openclaw-go",
			Version: "1.0.0",
		}

		if _, err := client.Initialize(readyCtx, initReq); err != nil {
			_ = client.Close()
			ready <- connectReady{err: fmt.Errorf("initialize: %w", err)}
			return
		}

		// Discover tools
		toolsResult, err := client.ListTools(readyCtx, mcpgo.ListToolsRequest{})
		if err != nil {
			_ = client.Close()
			ready <- connectReady{err: fmt.Errorf("list tools: %w", err)}
			return
		}

		ready <- connectReady{client: client, toolsResult: &toolsResult}
	}()

	var r connectReady
	select {
	case r = <-ready:
		if r.err != nil {
			return r.err
		}
	case <-readyCtx.Done():
		return fmt.Errorf("server %q did not become ready within %s", name, readyTimeout)
	}

	client := r.client
	toolsResult := r.toolsResult

	if timeoutSec <= 0 {
		timeoutSec = 60
	}

	ss := &serverState{
		name:       name,
		transport:  transportType,
		client:     client,
		timeoutSec: timeoutSec,
	}
	ss.connected.Store(true)

	// Register tools
	var registeredNames []string
	for _, mcpTool := range toolsResult.Tools {
		bt := NewBridgeTool(name, mcpTool, client, toolPrefix, timeoutSec, &ss.connected)

		// Check for name collision with existing tools
		if _, exists := m.registry.Get(bt.Name()); exists {
			slog.Warn("mcp.tool.name_collision",
				"server", name,
				"tool", bt.Name(),
				"action", "skipped",
			)
			continue
		}

		m.registry.Register(bt)
		registeredNames = append(registeredNames, bt.Name())
	}
	ss.toolNames = registeredNames

	// Register dynamic tool groups for policy filtering
	if len(registeredNames) > 0 {
		tools.RegisterToolGroup("mcp:"+name, registeredNames)
		m.updateMCPGroup()
	}

	// Start health monitoring
	hctx, hcancel := context.WithCancel(context.Background())
	ss.cancel = hcancel
	go m.healthLoop(hctx, ss)

	m.mu.Lock()
	if _, exists := m.servers[name]; !exists {
		m.order = append(m.order, name)
	}
	m.servers[name] = ss
	m.mu.Unlock()

	slog.Info("mcp.server.connected",
		"server", name,
		"transport", transportType,
		"tools", len(registeredNames),
	)

	return nil
}

// createClient creates the appropriate MCP client based on transport type.
func createClient(transportType, command string, args []string, env map[string]string, url string, headers map[string]string) (*mcpclient.Client, error) {
	switch transportType {
	case "stdio":
		envSlice := mapToEnvSlice(env)
		return mcpclient.NewStdioMCPClient(command, envSlice, args...)

	case "sse":
		var opts []transport.ClientOption
		if len(headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(headers))
		}
		return mcpclient.NewSSEMCPClient(url, opts...)

	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(headers))
		}
		return mcpclient.NewStreamableHttpClient(url, opts...)

	default:
		return nil, fmt.Errorf("unsupported transport: %q", transportType)
	}
}

// healthLoop periodically pings the MCP server and attempts reconnection on failure.
func (m *Manager) healthLoop(ctx context.Context, ss *serverState) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ss.client.Ping(ctx); err != nil {
				// Servers that don't implement "ping" are still alive — treat as healthy.
				if strings.Contains(strings.ToLower(err.Error()), "method not found") {
					ss.connected.Store(true)
					ss.mu.Lock()
					ss.reconnAttempts = 0
					ss.lastErr = ""
					ss.mu.Unlock()
					continue
				}
				ss.connected.Store(false)
				ss.mu.Lock()
				ss.lastErr = err.Error()
				ss.mu.Unlock()

				slog.Warn("mcp.server.health_failed", "server", ss.name, "error", err)
				m.tryReconnect(ctx, ss)
			} else {
				ss.connected.Store(true)
				ss.mu.Lock()
				ss.reconnAttempts = 0
				ss.lastErr = ""
				ss.mu.Unlock()
			}
		}
	}
}

// tryReconnect attempts to reconnect with exponential backoff.
func (m *Manager) tryReconnect(ctx context.Context, ss *serverState) {
	ss.mu.Lock()
	if ss.reconnAttempts >= maxReconnectAttempts {
		ss.lastErr = fmt.Sprintf("max reconnect attempts (%d) reached", maxReconnectAttempts)
		ss.mu.Unlock()
		slog.Error("mcp.server.reconnect_exhausted", "server", ss.name)
		return
	}
	ss.reconnAttempts++
	attempt := ss.reconnAttempts
	ss.mu.Unlock()

	backoff := initialBackoff * time.Duration(1<<(attempt-1))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	slog.Info("mcp.server.reconnecting",
		"server", ss.name,
		"attempt", attempt,
		"backoff", backoff,
	)

	select {
	case <-ctx.Done():
		return
	case <-time.After(backoff):
	}

	// Try to ping again — transport may have auto-reconnected
	if err := ss.client.Ping(ctx); err == nil {
		ss.connected.Store(true)
		ss.mu.Lock()
		ss.reconnAttempts = 0
		ss.lastErr = ""
		ss.mu.Unlock()
		slog.Info("mcp.server.reconnected", "server", ss.name)
	}
}
