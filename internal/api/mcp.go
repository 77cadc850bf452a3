package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/cineai/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store       *storage.Store
	Recommender Recommender
}

// NewMCPServer creates an MCP server exposing the recommendation flow
// and history as tools, plus usage statistics as a resource.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"cineai",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("cineai: AI movie recommendations with per-session history."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("recommend_movies",
			mcp.WithDescription("Generate five AI movie recommendations for a free-text preference and store them in the session history."),
			mcp.WithString("query", mcp.Description("Movie preference, e.g. \"mind-bending sci-fi\""), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session identifier; generated when omitted")),
		),
		mcpRecommend(deps),
	)

	s.AddTool(
		mcp.NewTool("movie_history",
			mcp.WithDescription("List past recommendations for a session, most recent first."),
			mcp.WithString("session_id", mcp.Description("Session identifier"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 10)")),
		),
		mcpHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("clear_history",
			mcp.WithDescription("Delete all stored recommendations for a session."),
			mcp.WithString("session_id", mcp.Description("Session identifier"), mcp.Required()),
		),
		mcpClearHistory(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"cineai://statistics",
			"Usage Statistics",
			mcp.WithResourceDescription("Aggregate usage counts and recent activity as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatistics(deps),
	)

	return s
}

func mcpRecommend(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		sessionID := req.GetString("session_id", "")
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		user, err := deps.Store.GetOrCreateUser(sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to resolve session: %v", err)), nil
		}

		movies, err := deps.Recommender.Generate(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("recommendation failed: %v", err)), nil
		}

		rec, err := deps.Store.SaveRecommendation(user.ID, query, movies)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save recommendation: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"session_id":        sessionID,
			"recommendation_id": rec.ID,
			"movies":            movies,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		limit := req.GetInt("limit", defaultHistoryLimit)
		if limit <= 0 {
			limit = defaultHistoryLimit
		}
		if limit > 50 {
			limit = 50
		}

		recs, err := deps.Store.History(sessionID, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to fetch history: %v", err)), nil
		}

		b, err := json.Marshal(toHistoryItems(recs))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpClearHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		n, err := deps.Store.ClearHistory(sessionID)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("no session found with id %s", sessionID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to clear history: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("History cleared successfully (%d items removed)", n)), nil
	}
}

func mcpResourceStatistics(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := deps.Store.Statistics()
		if err != nil {
			return nil, fmt.Errorf("failed to compute statistics: %w", err)
		}

		b, err := json.Marshal(statisticsPayload(stats))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal statistics: %w", err)
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
