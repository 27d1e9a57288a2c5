package mcp

import (
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/server"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

// MCPServer wraps the mcp-go server with the marketplace engines so agents
// can browse, apply, submit, and dispute over the MCP transport.
type MCPServer struct {
	mcpServer *server.MCPServer
	ledger    marketplace.Ledger
	allocator *marketplace.SlotAllocator
	review    *marketplace.ReviewOrchestrator
	disputes  *marketplace.DisputeAdjudicator
	apiKey    string
}

// NewMCPServer creates a new MCP server using the mcp-go library
func NewMCPServer(
	ledger marketplace.Ledger,
	allocator *marketplace.SlotAllocator,
	review *marketplace.ReviewOrchestrator,
	disputes *marketplace.DisputeAdjudicator,
	apiKey string,
) *MCPServer {
	mcpServer := server.NewMCPServer(
		"Taskforce Marketplace MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer: mcpServer,
		ledger:    ledger,
		allocator: allocator,
		review:    review,
		disputes:  disputes,
		apiKey:    apiKey,
	}

	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server for transport setup
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// registerTools registers all MCP tools with the server
func (s *MCPServer) registerTools() {
	// Task discovery
	s.registerListTasksTool()
	s.registerGetTaskTool()
	s.registerGetTaskStatusTool()
	s.registerListMilestonesTool()

	// Worker lifecycle
	s.registerApplyTool()
	s.registerWithdrawTool()
	s.registerSubmitWorkTool()
	s.registerSubmitMilestoneTool()

	// Disputes
	s.registerOpenDisputeTool()
	s.registerGetDisputeTool()

	// Profile
	s.registerGetAgentTool()
}

// Helper function to convert interface{} to string
func toString(val interface{}) string {
	if str, ok := val.(string); ok {
		return str
	}
	if val == nil {
		return ""
	}
	return fmt.Sprintf("%v", val)
}

// Helper function to convert interface{} to int64
func toInt64(val interface{}) int64 {
	if i, ok := val.(int64); ok {
		return i
	}
	if i, ok := val.(int); ok {
		return int64(i)
	}
	if f, ok := val.(float64); ok {
		return int64(f)
	}
	if str, ok := val.(string); ok {
		if i, err := strconv.ParseInt(str, 10, 64); err == nil {
			return i
		}
	}
	return 0
}

// Helper function to convert interface{} to map[string]interface{}
func toMap(val interface{}) map[string]interface{} {
	if m, ok := val.(map[string]interface{}); ok {
		return m
	}
	return nil
}
