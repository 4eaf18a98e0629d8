package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/crier/internal/middleware"
	"github.com/btouchard/crier/internal/task"
)

// CheckTask returns a handler that reports a task's status, the actions
// legal from it, and its recent history.
func CheckTask(svc *task.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		me, ok := caller(ctx)
		if !ok {
			return mcp.NewToolResultError("not authenticated"), nil
		}
		id, errResult := taskID(req)
		if errResult != nil {
			return errResult, nil
		}

		t, err := svc.Get(id)
		if err != nil || (t.CreatorID != me && t.AssigneeID != me) {
			return mcp.NewToolResultError(fmt.Sprintf("Task not found: %d", id)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s **#%d %s** — %s\n", statusIcon(t.Status), t.ID, t.Title, t.Status)
		if t.Description != "" {
			fmt.Fprintf(&sb, "%s\n", t.Description)
		}

		allowed := task.Allowed(t.Status)
		if len(allowed) == 0 {
			sb.WriteString("\nNo further transitions: the task is terminal.\n")
		} else {
			names := make([]string, 0, len(allowed))
			for _, a := range allowed {
				if a != task.ActionExpire {
					names = append(names, string(a))
				}
			}
			fmt.Fprintf(&sb, "\nAllowed actions: %s\n", strings.Join(names, ", "))
		}

		events, err := svc.History(id, 10)
		if err == nil && len(events) > 0 {
			sb.WriteString("\nHistory:\n")
			for _, e := range events {
				fmt.Fprintf(&sb, "  %s %s → %s (by %d)\n", e.CreatedAt.Format("2006-01-02 15:04"), e.FromStatus, e.ToStatus, e.ActorID)
			}
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func caller(ctx context.Context) (int64, bool) {
	return middleware.UserID(ctx)
}

func taskID(req mcp.CallToolRequest) (int64, *mcp.CallToolResult) {
	raw, ok := req.GetArguments()["task_id"].(float64)
	if !ok || raw <= 0 || raw != float64(int64(raw)) {
		return 0, mcp.NewToolResultError("task_id is required")
	}
	return int64(raw), nil
}

// describeError turns a state machine error into a tool error message.
func describeError(err error) string {
	switch {
	case errors.Is(err, task.ErrInvalidTransition):
		return fmt.Sprintf("Not allowed now: %s", err)
	case errors.Is(err, task.ErrForbidden):
		return fmt.Sprintf("Forbidden: %s", err)
	case errors.Is(err, task.ErrNotFound):
		return "Task not found"
	case errors.Is(err, task.ErrConflict):
		return "The task changed concurrently, check it and retry"
	default:
		return fmt.Sprintf("Failed: %s", err)
	}
}
