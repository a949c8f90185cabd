package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"diary/internal/models"
	"diary/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes read-only diary lookups as MCP tools.
type MCPServer struct {
	store store.Store
}

func NewMCPServer(s store.Store) *MCPServer {
	return &MCPServer{store: s}
}

func (m *MCPServer) showEntriesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError("date is required"), nil
	}
	date, err := models.ParseDate(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	day, err := m.store.GetDayByDate(ctx, date)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultText(fmt.Sprintf("No entries for %s.", date)), nil
	} else if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}

	entries, err := m.store.ListEntriesByDate(ctx, day.Date)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No entries for %s.", date)), nil
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("- %s: %s", e.Title, e.Text))
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d entries for %s (day %d):\n%s", len(entries), date, day.ID, strings.Join(lines, "\n"))), nil
}

func (m *MCPServer) listDaysHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	year, err := request.RequireInt("year")
	if err != nil {
		return mcp.NewToolResultError("year is required"), nil
	}
	month, err := request.RequireInt("month")
	if err != nil {
		return mcp.NewToolResultError("month is required"), nil
	}
	if _, err := models.NewDate(year, time.Month(month), 1); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	days, err := m.store.ListDaysInMonth(ctx, year, time.Month(month))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("database error: %v", err)), nil
	}
	if len(days) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No days with entries in %s %d.", time.Month(month), year)), nil
	}

	dates := make([]string, 0, len(days))
	for _, d := range days {
		dates = append(dates, d.Date.String())
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d days:\n%s", len(days), strings.Join(dates, "\n"))), nil
}

// Handler returns the stateless streamable HTTP transport for mounting at /mcp.
func (m *MCPServer) Handler() *server.StreamableHTTPServer {
	mcpServer := server.NewMCPServer("Diary", "1.0.0")

	showEntries := mcp.NewTool("show_entries",
		mcp.WithDescription("List the diary entries written for one day."),
		mcp.WithString("date", mcp.Required(), mcp.Description("The day, as YYYY-MM-DD")),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
	listDays := mcp.NewTool("list_days",
		mcp.WithDescription("List the days of a month that have diary entries."),
		mcp.WithNumber("year", mcp.Required(), mcp.Description("Four digit year")),
		mcp.WithNumber("month", mcp.Required(), mcp.Description("Month number, 1-12")),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	mcpServer.AddTool(showEntries, m.showEntriesHandler)
	mcpServer.AddTool(listDays, m.listDaysHandler)

	return server.NewStreamableHTTPServer(mcpServer, server.WithStateLess(true))
}
