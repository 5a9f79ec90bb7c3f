// Package mcpserver serves the tools over the Model Context Protocol so
// external agents can use the nearby lookup, clock and grounded search.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	internal "github.com/ZanzyTHEbar/sangamner-ai/sai"
	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/toolconv"
)

// New builds an MCP server exposing tools.
func New(tools []ports.Tool, logger zerolog.Logger) (*server.MCPServer, error) {
	logger = logger.With().Str("component", "mcp").Logger()
	s := server.NewMCPServer(internal.DefaultAppName, internal.Version, server.WithToolCapabilities(false))
	for _, tool := range tools {
		decl, err := toolconv.ToMCP(ports.SpecOf(tool))
		if err != nil {
			return nil, fmt.Errorf("failed to declare tool %s: %w", tool.Name(), err)
		}
		s.AddTool(decl, Handler(tool, logger))
	}
	return s, nil
}

// Handler adapts a tool to an MCP tool handler. Tool failures are already
// folded into the result text.
func Handler(tool ports.Tool, logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		arguments := req.GetArguments()
		if arguments == nil {
			arguments = map[string]any{}
		}
		args, err := json.Marshal(arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		start := time.Now()
		result := tool.Call(ctx, args)
		logger.Debug().Str("tool", tool.Name()).Dur("elapsed", time.Since(start)).Msg("tool call served")
		return mcp.NewToolResultText(result), nil
	}
}

// ServeStdio serves s on stdin/stdout until the input closes.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
