package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/capsule/internal/memory"
	"github.com/kalambet/capsule/internal/storage"
	"github.com/kalambet/capsule/internal/store"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Storage  *storage.Store
	Analyzer store.Discoverer
	OnChange func() // optional
}

// NewMCPServer creates an MCP server exposing the memory collection as
// tools and a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"capsule",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("capsule — a personal memory journal. Save memories and discover what they say about you."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("add_memory",
			mcp.WithDescription("Save a memory. Either title or desc must be given."),
			mcp.WithString("title", mcp.Description("Short title")),
			mcp.WithString("desc", mcp.Description("What happened")),
			mcp.WithString("date", mcp.Description("Free-form date, e.g. \"Summer 2018\"")),
			mcp.WithString("place", mcp.Description("Where it happened")),
			mcp.WithString("mood", mcp.Description("Mood tag"), mcp.Enum(memory.MoodNames()...)),
		),
		mcpAddMemory(deps),
	)

	s.AddTool(
		mcp.NewTool("list_memories",
			mcp.WithDescription("List every saved memory in the order it was added."),
		),
		mcpListMemories(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_memory",
			mcp.WithDescription("Delete a memory by id."),
			mcp.WithNumber("id", mcp.Description("Memory id"), mcp.Required()),
		),
		mcpDeleteMemory(deps),
	)

	s.AddTool(
		mcp.NewTool("discover_patterns",
			mcp.WithDescription("Analyze all saved memories and describe the patterns in what makes this person happy. Needs at least 2 memories."),
		),
		mcpDiscoverPatterns(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"memories://all",
			"All Memories",
			mcp.WithResourceDescription("Every saved memory as a JSON array"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceMemories(deps),
	)

	return s
}

func mcpAddMemory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		c := memory.Candidate{
			Title: req.GetString("title", ""),
			Desc:  req.GetString("desc", ""),
			Date:  req.GetString("date", ""),
			Place: req.GetString("place", ""),
			Mood:  req.GetString("mood", ""),
		}
		if err := c.Validate(); err != nil {
			return mcpError(err.Error()), nil
		}

		rec, err := deps.Storage.SaveMemory(c)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}
		if deps.OnChange != nil {
			deps.OnChange()
		}

		return mcpText(fmt.Sprintf("Saved memory %d: %s", rec.ID, rec.Title)), nil
	}
}

func mcpListMemories(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := memoriesJSON(deps)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDeleteMemory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("id", 0)
		if id <= 0 {
			return mcpError("id is required"), nil
		}

		if err := deps.Storage.DeleteMemory(int64(id)); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return mcpError(fmt.Sprintf("memory %d not found", id)), nil
			}
			return mcpError(fmt.Sprintf("failed to delete: %v", err)), nil
		}
		if deps.OnChange != nil {
			deps.OnChange()
		}

		return mcpText(fmt.Sprintf("Deleted memory %d", id)), nil
	}
}

func mcpDiscoverPatterns(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		records, err := deps.Storage.ListMemories()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list memories: %v", err)), nil
		}
		if len(records) < store.MinForDiscovery {
			return mcpError(store.ErrTooFew.Error()), nil
		}

		set, _ := deps.Analyzer.Discover(ctx, records)
		b, err := json.Marshal(set)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal insights: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceMemories(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := memoriesJSON(deps)
		if err != nil {
			return nil, err
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func memoriesJSON(deps MCPDeps) ([]byte, error) {
	records, err := deps.Storage.ListMemories()
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	if records == nil {
		records = []memory.Record{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal memories: %w", err)
	}
	return b, nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
