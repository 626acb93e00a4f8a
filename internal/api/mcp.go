package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/wildguide/internal/chat"
	"github.com/kalambet/wildguide/internal/conversation"
	"github.com/kalambet/wildguide/internal/history"
	"github.com/kalambet/wildguide/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	History      *history.Manager
	Conversation *conversation.Conversation
}

// NewMCPServer creates an MCP server exposing the survival guide chat and
// its history as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"wildguide",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("wildguide: a local wilderness survival assistant with saved chat history."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the local survival guide a question in the active conversation and return its full answer."),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("list_sessions",
			mcp.WithDescription("List saved chat sessions, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of sessions (default 10)")),
		),
		mcpListSessions(deps),
	)

	s.AddTool(
		mcp.NewTool("get_session",
			mcp.WithDescription("Return the transcript of a saved chat session."),
			mcp.WithString("id", mcp.Description("Session ID"), mcp.Required()),
		),
		mcpGetSession(deps),
	)

	s.AddTool(
		mcp.NewTool("import_transcript",
			mcp.WithDescription("Save a plain-text transcript as a new session. Lines wrapped in '*' are user messages."),
			mcp.WithString("title", mcp.Description("Session title")),
			mcp.WithString("content", mcp.Description("Transcript text"), mcp.Required()),
		),
		mcpImportTranscript(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"chat://current",
			"Current Conversation",
			mcp.WithResourceDescription("Turns of the active conversation as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCurrent(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		updates, err := deps.Conversation.Send(ctx, question, nil)
		if errors.Is(err, conversation.ErrBusy) {
			return mcpError("the guide is still answering another question"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		var final *conversation.Update
		for u := range updates {
			if u.Done {
				final = &u
			}
		}
		if final == nil {
			return mcpError("the conversation was cleared before the answer finished"), nil
		}
		if final.Err != nil {
			return mcpError(final.Turn.Content), nil
		}
		return mcpText(final.Turn.Content), nil
	}
}

func mcpListSessions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		sessions := deps.History.Sessions()
		if len(sessions) > limit {
			sessions = sessions[:limit]
		}
		active := deps.History.CurrentID()
		out := make([]SessionSummary, len(sessions))
		for i, s := range sessions {
			out[i] = summarize(s, active)
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		s, err := deps.History.Get(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("session %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get session: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("# %s\n\n%s", s.Title, s.Content())), nil
	}
}

func mcpImportTranscript(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		title := req.GetString("title", "")
		if title == "" {
			title = chat.TitleFrom(chat.ParseLegacy(content, time.Now()))
		}

		s, err := deps.History.SaveLegacy(title, content)
		if errors.Is(err, history.ErrEmptyTranscript) {
			return mcpError("transcript is empty"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to import: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Imported session %s with %d turns", s.ID, len(s.Turns))), nil
	}
}

func mcpResourceCurrent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Conversation.Turns())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal conversation: %w", err)
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
