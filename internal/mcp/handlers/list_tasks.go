package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/crier/internal/task"
)

// ListTasks returns a handler that lists the caller's tasks with optional filters.
func ListTasks(svc *task.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		me, ok := caller(ctx)
		if !ok {
			return mcp.NewToolResultError("not authenticated"), nil
		}
		args := req.GetArguments()

		filter := task.Filter{
			AssigneeID: me,
			Limit:      20,
		}

		if status, ok := args["status"].(string); ok && status != "" && status != "all" {
			filter.Status = task.Status(status)
		}
		if scope, ok := args["scope"].(string); ok && scope == "created" {
			filter.AssigneeID = 0
			filter.CreatorID = me
		}
		if limit, ok := args["limit"].(float64); ok && limit > 0 {
			filter.Limit = int(limit)
		}

		tasks, err := svc.List(filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Listing tasks failed: %s", err)), nil
		}
		if len(tasks) == 0 {
			return mcp.NewToolResultText("No tasks found matching the given filters."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "📋 Tasks (%d found)\n\n", len(tasks))

		for _, t := range tasks {
			fmt.Fprintf(&sb, "%s **#%d %s** — %s\n", statusIcon(t.Status), t.ID, t.Title, t.Status)
			fmt.Fprintf(&sb, "  Creator: %d", t.CreatorID)
			if t.AssigneeID != 0 {
				fmt.Fprintf(&sb, " | Assignee: %d", t.AssigneeID)
			}
			if !t.Deadline.IsZero() {
				fmt.Fprintf(&sb, " | Deadline: %s", t.Deadline.Format("2006-01-02 15:04"))
			}
			sb.WriteString("\n")
			if t.RejectReason != "" {
				fmt.Fprintf(&sb, "  Rejected: %s\n", t.RejectReason)
			}
			if t.RevisionNote != "" && t.Status == task.StatusAssigned {
				fmt.Fprintf(&sb, "  Revision requested: %s\n", t.RevisionNote)
			}
			sb.WriteString("\n")
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func statusIcon(s task.Status) string {
	switch s {
	case task.StatusPending:
		return "⏳"
	case task.StatusAssigned:
		return "📥"
	case task.StatusInProgress:
		return "🔄"
	case task.StatusCompleted:
		return "✅"
	case task.StatusExpired:
		return "⌛"
	default:
		return "❓"
	}
}
