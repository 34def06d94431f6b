package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/callcoach/internal/conversation"
	"github.com/kalambet/callcoach/internal/feedback"
	"github.com/kalambet/callcoach/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Sessions *session.Registry
	History  conversation.Store
	Lookup   conversation.Lookup // optional; lookup_response reports an error when nil
	Feedback feedback.Reader
	Version  string
}

// NewMCPServer creates an MCP server exposing the admin views as tools and
// resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"callcoach",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("callcoach: live sales-call guidance. Inspect sessions, conversation history and agent feedback."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_sessions",
			mcp.WithDescription("List the session ids that currently have a live connection."),
		),
		mcpListSessions(deps),
	)

	s.AddTool(
		mcp.NewTool("session_history",
			mcp.WithDescription("Return the most recent exchanges of a session, oldest first."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of exchanges (default 10)")),
		),
		mcpSessionHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("lookup_response",
			mcp.WithDescription("Find the exchange that produced a guidance response id."),
			mcp.WithString("response_id", mcp.Description("Response id sent with the guidance frame"), mcp.Required()),
		),
		mcpLookupResponse(deps),
	)

	s.AddTool(
		mcp.NewTool("feedback_summary",
			mcp.WithDescription("Count helpful and not-helpful feedback received from agents."),
		),
		mcpFeedbackSummary(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"feedback://recent",
			"Recent Feedback",
			mcp.WithResourceDescription("Last 20 feedback records, oldest first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentFeedback(deps),
	)

	return s
}

func mcpListSessions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list := deps.Sessions.Sessions()
		b, err := json.Marshal(SessionsResponse{Count: len(list), Sessions: list})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSessionHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil || id == "" {
			return mcpError("session_id is required"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}

		hist, err := deps.History.History(ctx, id, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read history: %v", err)), nil
		}
		if hist == nil {
			hist = []conversation.Exchange{}
		}

		b, err := json.Marshal(HistoryResponse{SessionID: id, Exchanges: hist})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLookupResponse(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Lookup == nil {
			return mcpError("response lookup is not available"), nil
		}
		id, err := req.RequireString("response_id")
		if err != nil || id == "" {
			return mcpError("response_id is required"), nil
		}

		sid, ex, err := deps.Lookup.ExchangeByResponseID(ctx, id)
		if errors.Is(err, conversation.ErrUnknownResponse) {
			return mcpError(fmt.Sprintf("no exchange for response %s", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(ResponseLookup{SessionID: sid, Exchange: ex})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal exchange: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpFeedbackSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sum, err := deps.Feedback.FeedbackSummary(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to summarise feedback: %v", err)), nil
		}
		b, err := json.Marshal(sum)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentFeedback(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		records, err := deps.Feedback.ListFeedback(ctx, defaultListLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to list feedback: %w", err)
		}
		if records == nil {
			records = []feedback.Record{}
		}

		b, err := json.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal feedback: %w", err)
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
