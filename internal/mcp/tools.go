package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/crier/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	// list_tasks: List the caller's tasks
	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List tasks assigned to you, or created by you with scope=created."),
			mcp.WithString("status",
				mcp.Description("Filter by status"),
				mcp.Enum("all", "pending", "assigned", "in_progress", "completed", "expired"),
			),
			mcp.WithString("scope",
				mcp.Description("Which tasks to list (default: assigned)"),
				mcp.Enum("assigned", "created"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of tasks to return (default: 20)"),
			),
		),
		handlers.ListTasks(deps.Tasks),
	)

	// check_task: Status, legal actions, history
	s.AddTool(
		mcp.NewTool("check_task",
			mcp.WithDescription("Show a task's status, the actions allowed from it, and its recent history."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The task ID"),
			),
		),
		handlers.CheckTask(deps.Tasks),
	)

	// assign_task: creator hands a pending task to someone
	s.AddTool(
		mcp.NewTool("assign_task",
			mcp.WithDescription("Assign a pending task you created to a user. The assignee is notified."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The task ID"),
			),
			mcp.WithNumber("user_id",
				mcp.Required(),
				mcp.Description("User to assign the task to"),
			),
		),
		handlers.AssignTask(deps.Tasks),
	)

	// accept_task: assignee starts work
	s.AddTool(
		mcp.NewTool("accept_task",
			mcp.WithDescription("Accept a task assigned to you. The creator is notified."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The task ID"),
			),
		),
		handlers.AcceptTask(deps.Tasks),
	)

	// reject_task: assignee gives the task back
	s.AddTool(
		mcp.NewTool("reject_task",
			mcp.WithDescription("Reject a task assigned to you. It returns to pending and unassigned; the creator is notified."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The task ID"),
			),
			mcp.WithString("reason",
				mcp.Description("Why the task is rejected"),
			),
		),
		handlers.RejectTask(deps.Tasks),
	)

	// finish_task: creator completes the task
	s.AddTool(
		mcp.NewTool("finish_task",
			mcp.WithDescription("Mark an in-progress task you created as completed."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The task ID"),
			),
		),
		handlers.FinishTask(deps.Tasks),
	)

	// return_task: creator asks for revision
	s.AddTool(
		mcp.NewTool("return_task",
			mcp.WithDescription("Return an in-progress task you created to its assignee for revision."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("The task ID"),
			),
			mcp.WithString("reason",
				mcp.Description("What needs to change"),
			),
		),
		handlers.ReturnTask(deps.Tasks),
	)
}
