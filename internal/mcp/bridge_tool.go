package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
)

// BridgeTool wraps a single tool discovered on an MCP server as a
// tools.Tool, namespacing it so collisions across servers can't happen and
// giving the agent loop a uniform interface regardless of transport.
//
// The registered name is "external__<server>__<tool>" unless the server
// config supplies an explicit prefix override, in which case it is
// "<prefix><tool>".
type BridgeTool struct {
	serverName string
	prefix     string
	mcpTool    mcpgo.Tool
	client     *mcpclient.Client
	timeoutSec int
	connected  *atomic.Bool
}

// NewBridgeTool constructs a BridgeTool for one discovered MCP tool.
func NewBridgeTool(serverName string, mcpTool mcpgo.Tool, client *mcpclient.Client, prefix string, timeoutSec int, connected *atomic.Bool) *BridgeTool {
	return &BridgeTool{
		serverName: serverName,
		prefix:     prefix,
		mcpTool:    mcpTool,
		client:     client,
		timeoutSec: timeoutSec,
		connected:  connected,
	}
}

func (b *BridgeTool) Name() string {
	if b.prefix != "" {
		return b.prefix + b.mcpTool.Name
	}
	return "external__" + b.serverName + "__" + b.mcpTool.Name
}

func (b *BridgeTool) Description() string {
	return b.mcpTool.Description
}

func (b *BridgeTool) Parameters() map[string]interface{} {
	schema := map[string]interface{}{
		"type": "object",
	}
	if len(b.mcpTool.InputSchema.Properties) > 0 {
		schema["properties"] = b.mcpTool.InputSchema.Properties
	} else {
		schema["properties"] = map[string]interface{}{}
	}
	if len(b.mcpTool.InputSchema.Required) > 0 {
		schema["required"] = b.mcpTool.InputSchema.Required
	}
	return schema
}

func (b *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if b.connected != nil && !b.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("Error: MCP server %q is not connected", b.serverName))
	}

	timeout := time.Duration(b.timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = b.mcpTool.Name
	req.Params.Arguments = args

	res, err := b.client.CallTool(callCtx, req)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("Error calling %s: %v", b.Name(), err))
	}

	text := renderToolContent(res.Content)
	if res.IsError {
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

// renderToolContent flattens an MCP CallToolResult's content blocks into a
// single string the agent loop can feed back to the LLM. Text blocks are
// joined as-is; anything else (images, embedded resources) is summarized by
// type rather than dropped silently.
func renderToolContent(content []mcpgo.Content) string {
	var parts []string
	for _, c := range content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			b, err := json.Marshal(c)
			if err != nil {
				parts = append(parts, fmt.Sprintf("[unrenderable %T]", c))
				continue
			}
			parts = append(parts, string(b))
		}
	}
	return strings.Join(parts, "\n")
}
