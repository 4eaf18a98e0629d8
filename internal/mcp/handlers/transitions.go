package handlers

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/crier/internal/task"
)

type applyFunc func(args map[string]any, id, actorID int64) (*task.Task, error)

// transition wraps one state machine action as a tool handler.
func transition(apply applyFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		me, ok := caller(ctx)
		if !ok {
			return mcp.NewToolResultError("not authenticated"), nil
		}
		id, errResult := taskID(req)
		if errResult != nil {
			return errResult, nil
		}

		t, err := apply(req.GetArguments(), id, me)
		if err != nil {
			return mcp.NewToolResultError(describeError(err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s Task #%d is now %s", statusIcon(t.Status), t.ID, t.Status)), nil
	}
}

// AssignTask hands a pending task to user_id.
func AssignTask(svc *task.Service) server.ToolHandlerFunc {
	return transition(func(args map[string]any, id, me int64) (*task.Task, error) {
		userID, _ := args["user_id"].(float64)
		return svc.Assign(id, me, int64(userID))
	})
}

// AcceptTask starts work on an assigned task.
func AcceptTask(svc *task.Service) server.ToolHandlerFunc {
	return transition(func(_ map[string]any, id, me int64) (*task.Task, error) {
		return svc.Accept(id, me)
	})
}

// RejectTask gives a task back to its creator.
func RejectTask(svc *task.Service) server.ToolHandlerFunc {
	return transition(func(args map[string]any, id, me int64) (*task.Task, error) {
		reason, _ := args["reason"].(string)
		return svc.Reject(id, me, reason)
	})
}

// FinishTask completes an in-progress task.
func FinishTask(svc *task.Service) server.ToolHandlerFunc {
	return transition(func(_ map[string]any, id, me int64) (*task.Task, error) {
		return svc.Finish(id, me)
	})
}

// ReturnTask sends an in-progress task back for revision.
func ReturnTask(svc *task.Service) server.ToolHandlerFunc {
	return transition(func(args map[string]any, id, me int64) (*task.Task, error) {
		reason, _ := args["reason"].(string)
		return svc.ReturnForRevision(id, me, reason)
	})
}
