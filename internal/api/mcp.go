package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dashd/dashd/internal/composer"
	"github.com/dashd/dashd/internal/feed"
	"github.com/dashd/dashd/internal/proxy"
	"github.com/dashd/dashd/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store         *storage.Store
	Composer      *composer.Composer
	Feed          *feed.Fetcher
	GenAI         *proxy.Client
	HeadlineLimit int
}

// NewMCPServer creates an MCP server with all dashboard tools and resources registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	if deps.HeadlineLimit <= 0 {
		deps.HeadlineLimit = 8
	}

	s := server.NewMCPServer(
		"dashd",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("dashd is a personal dashboard: headlines, diary notes, todos and an asset-value series."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("dashboard",
			mcp.WithDescription("Return the composed dashboard view: headlines, recent notes, todos and assets."),
		),
		mcpDashboard(deps),
	)

	s.AddTool(
		mcp.NewTool("list_todos",
			mcp.WithDescription("List todos, open ones first."),
		),
		mcpListTodos(deps),
	)
	s.AddTool(
		mcp.NewTool("add_todo",
			mcp.WithDescription("Add a todo."),
			mcp.WithString("task", mcp.Description("Task text"), mcp.Required()),
		),
		mcpAddTodo(deps),
	)
	s.AddTool(
		mcp.NewTool("flip_todo",
			mcp.WithDescription("Invert the completion state of a todo."),
			mcp.WithString("id", mcp.Description("Todo ID"), mcp.Required()),
		),
		mcpFlipTodo(deps),
	)
	s.AddTool(
		mcp.NewTool("delete_todo",
			mcp.WithDescription("Delete a todo."),
			mcp.WithString("id", mcp.Description("Todo ID"), mcp.Required()),
		),
		mcpDeleteTodo(deps),
	)

	s.AddTool(
		mcp.NewTool("list_notes",
			mcp.WithDescription("List diary notes, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of notes (default 20)")),
		),
		mcpListNotes(deps),
	)
	s.AddTool(
		mcp.NewTool("add_note",
			mcp.WithDescription("Write a diary note."),
			mcp.WithString("content", mcp.Description("Note text"), mcp.Required()),
		),
		mcpAddNote(deps),
	)
	s.AddTool(
		mcp.NewTool("edit_note",
			mcp.WithDescription("Replace the text of a diary note."),
			mcp.WithString("id", mcp.Description("Note ID"), mcp.Required()),
			mcp.WithString("content", mcp.Description("New note text"), mcp.Required()),
		),
		mcpEditNote(deps),
	)
	s.AddTool(
		mcp.NewTool("delete_note",
			mcp.WithDescription("Delete a diary note."),
			mcp.WithString("id", mcp.Description("Note ID"), mcp.Required()),
		),
		mcpDeleteNote(deps),
	)

	s.AddTool(
		mcp.NewTool("list_assets",
			mcp.WithDescription("List the asset-value series in date order."),
		),
		mcpListAssets(deps),
	)
	s.AddTool(
		mcp.NewTool("record_asset",
			mcp.WithDescription("Record the total asset value for a day."),
			mcp.WithString("date", mcp.Description("Date as YYYY-MM-DD"), mcp.Required()),
			mcp.WithNumber("amount", mcp.Description("Total value"), mcp.Required()),
		),
		mcpRecordAsset(deps),
	)

	s.AddTool(
		mcp.NewTool("headlines",
			mcp.WithDescription("Fetch current news headlines."),
			mcp.WithString("query", mcp.Description("Search query; defaults to the configured source filter")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of headlines (default 8, max 50)")),
		),
		mcpHeadlines(deps),
	)
	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Send a single prompt to the generative-text provider."),
			mcp.WithString("prompt", mcp.Description("Prompt text"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"dashboard://view",
			"Dashboard",
			mcp.WithResourceDescription("Composed dashboard view as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDashboard(deps),
	)

	return s
}

func mcpDashboard(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		view, err := deps.Composer.Compose(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to compose dashboard: %v", err)), nil
		}
		return mcpJSON(view), nil
	}
}

func mcpListTodos(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		todos, err := deps.Store.ListTodos(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list todos: %v", err)), nil
		}
		return mcpJSON(todos), nil
	}
}

func mcpAddTodo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := req.RequireString("task")
		if err != nil {
			return mcpError("task is required"), nil
		}
		t, err := deps.Store.InsertTodo(ctx, task)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to add todo: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Added todo %s", t.ID)), nil
	}
}

func mcpFlipTodo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		t, err := deps.Store.FlipTodo(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("todo %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to flip todo: %v", err)), nil
		}
		state := "open"
		if t.IsCompleted {
			state = "done"
		}
		return mcpText(fmt.Sprintf("Todo %s is now %s", t.ID, state)), nil
	}
}

func mcpDeleteTodo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		if err := deps.Store.DeleteTodo(ctx, id); err != nil {
			return mcpError(fmt.Sprintf("failed to delete todo: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted todo %s", id)), nil
	}
}

func mcpListNotes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 500 {
			limit = 500
		}
		notes, err := deps.Store.ListNotes(ctx, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list notes: %v", err)), nil
		}
		return mcpJSON(notes), nil
	}
}

func mcpAddNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		n, err := deps.Store.InsertNote(ctx, content, "")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to add note: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Added note %s", n.ID)), nil
	}
}

func mcpEditNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		err = deps.Store.UpdateNoteContent(ctx, id, content)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("note %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to edit note: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Updated note %s", id)), nil
	}
}

func mcpDeleteNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		if err := deps.Store.DeleteNote(ctx, id); err != nil {
			return mcpError(fmt.Sprintf("failed to delete note: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted note %s", id)), nil
	}
}

func mcpListAssets(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		assets, err := deps.Store.ListAssets(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list assets: %v", err)), nil
		}
		return mcpJSON(assets), nil
	}
}

func mcpRecordAsset(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dateStr, err := req.RequireString("date")
		if err != nil {
			return mcpError("date is required"), nil
		}
		date, err := time.Parse(storage.DateLayout, dateStr)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid date %q: want YYYY-MM-DD", dateStr)), nil
		}
		amount, err := req.RequireFloat("amount")
		if err != nil {
			return mcpError("amount is required"), nil
		}
		a, err := deps.Store.InsertAsset(ctx, date, amount)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to record asset: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded %s on %s", formatAmount(a.Amount), a.RecordDate.Format(storage.DateLayout))), nil
	}
}

func mcpHeadlines(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", deps.Feed.DefaultQuery())
		limit := req.GetInt("limit", deps.HeadlineLimit)
		if limit <= 0 {
			limit = deps.HeadlineLimit
		}
		if limit > maxHeadlineLimit {
			limit = maxHeadlineLimit
		}
		items := deps.Feed.FetchHeadlines(ctx, query, limit)
		return mcpJSON(composer.Headlines(items)), nil
	}
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}
		res := deps.GenAI.Complete(ctx, prompt)
		if !res.OK() {
			return mcpError(res.Message()), nil
		}
		return mcpText(res.Text), nil
	}
}

func mcpResourceDashboard(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		view, err := deps.Composer.Compose(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to compose dashboard: %w", err)
		}

		b, err := json.Marshal(view)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal dashboard: %w", err)
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

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
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
