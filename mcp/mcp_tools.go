package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

// registerListTasksTool creates a tool for listing open tasks
func (s *MCPServer) registerListTasksTool() {
	tool := mcp.NewTool("list_tasks",
		mcp.WithDescription("List marketplace tasks with optional filtering"),
		mcp.WithString("status", mcp.Description("Filter by task status (draft, active, in_progress, completed, cancelled, disputed)")),
		mcp.WithString("creator_id", mcp.Description("Filter by creator")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of tasks to return")),
		mcp.WithNumber("offset", mcp.Description("Number of tasks to skip")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		filter := marketplace.TaskFilter{
			Status:    marketplace.TaskStatus(toString(args["status"])),
			CreatorID: toString(args["creator_id"]),
			Limit:     int(toInt64(args["limit"])),
			Offset:    int(toInt64(args["offset"])),
		}
		if filter.Limit == 0 {
			filter.Limit = 50
		}

		tasks, err := s.ledger.ListTasks(ctx, filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list tasks: %v", err)), nil
		}

		result := map[string]interface{}{
			"tasks":       tasks,
			"total_count": len(tasks),
		}

		return mcp.NewToolResultText(fmt.Sprintf("Found %d tasks:\n\n%+v", len(tasks), result)), nil
	})
}

// registerGetTaskTool creates a tool for getting a specific task
func (s *MCPServer) registerGetTaskTool() {
	tool := mcp.NewTool("get_task",
		mcp.WithDescription("Get details of a specific task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task to retrieve")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, err := s.ledger.GetTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get task: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task details:\n\n%+v", task)), nil
	})
}

// registerGetTaskStatusTool creates a tool returning the derived task status
func (s *MCPServer) registerGetTaskStatusTool() {
	tool := mcp.NewTool("get_task_status",
		mcp.WithDescription("Get the current derived status of a task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		status, err := marketplace.RecomputeTaskStatus(ctx, s.ledger, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get task status: %v", err)), nil
		}
		task, err := s.ledger.GetTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get task: %v", err)), nil
		}

		result := map[string]interface{}{
			"task_id":         taskID,
			"status":          status,
			"current_workers": task.CurrentWorkers,
			"max_workers":     task.MaxWorkers,
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task status:\n\n%+v", result)), nil
	})
}

// registerListMilestonesTool creates a tool for listing a task's milestones
func (s *MCPServer) registerListMilestonesTool() {
	tool := mcp.NewTool("list_milestones",
		mcp.WithDescription("List the milestones of a milestone-based task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ms, err := s.ledger.ListMilestones(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list milestones: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Found %d milestones:\n\n%+v", len(ms), ms)), nil
	})
}

// registerApplyTool creates a tool for applying to a task
func (s *MCPServer) registerApplyTool() {
	tool := mcp.NewTool("apply_to_task",
		mcp.WithDescription("Apply for a worker slot on an open task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task to apply to")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Identifier of the applying agent")),
		mcp.WithString("message", mcp.Description("Pitch accompanying the application")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		agentID, err := request.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		app, err := s.allocator.Apply(ctx, taskID, agentID, toString(args["message"]))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to apply: %v", err)), nil
		}

		result := map[string]interface{}{
			"success":        true,
			"application_id": app.ApplicationID,
			"status":         app.Status,
			"message":        "Application filed. You will be notified when the creator decides.",
		}

		return mcp.NewToolResultText(fmt.Sprintf("Applied successfully:\n\n%+v", result)), nil
	})
}

// registerWithdrawTool creates a tool for withdrawing an application
func (s *MCPServer) registerWithdrawTool() {
	tool := mcp.NewTool("withdraw_application",
		mcp.WithDescription("Withdraw a pending or accepted application (blocked once work is submitted)"),
		mcp.WithString("application_id", mcp.Required(), mcp.Description("ID of application to withdraw")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Identifier of the withdrawing agent")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		applicationID, err := request.RequireString("application_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		agentID, err := request.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := s.allocator.Withdraw(ctx, applicationID, agentID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to withdraw: %v", err)), nil
		}

		return mcp.NewToolResultText("Application withdrawn."), nil
	})
}

// registerSubmitWorkTool creates a tool for submitting deliverables
func (s *MCPServer) registerSubmitWorkTool() {
	tool := mcp.NewTool("submit_work",
		mcp.WithDescription("Submit completed work for an accepted application"),
		mcp.WithString("application_id", mcp.Required(), mcp.Description("ID of the accepted application")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Identifier of the submitting agent")),
		mcp.WithObject("content", mcp.Required(), mcp.Description("Work deliverables")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		applicationID, err := request.RequireString("application_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		agentID, err := request.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		content := toMap(args["content"])
		if content == nil {
			return mcp.NewToolResultError("content is required"), nil
		}

		sub, err := s.review.SubmitWork(ctx, applicationID, agentID, content)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to submit work: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Work submitted successfully:\n\n%+v", sub)), nil
	})
}

// registerSubmitMilestoneTool creates a tool for submitting a milestone
func (s *MCPServer) registerSubmitMilestoneTool() {
	tool := mcp.NewTool("submit_milestone",
		mcp.WithDescription("Send a milestone deliverable for creator review"),
		mcp.WithString("milestone_id", mcp.Required(), mcp.Description("ID of the milestone")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Identifier of the submitting agent")),
		mcp.WithString("deliverable", mcp.Required(), mcp.Description("Deliverable description or link")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		milestoneID, err := request.RequireString("milestone_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		agentID, err := request.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		deliverable, err := request.RequireString("deliverable")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ms, err := s.review.SubmitMilestone(ctx, milestoneID, agentID, deliverable)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to submit milestone: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Milestone submitted:\n\n%+v", ms)), nil
	})
}

// registerOpenDisputeTool creates a tool for disputing a rejection
func (s *MCPServer) registerOpenDisputeTool() {
	tool := mcp.NewTool("open_dispute",
		mcp.WithDescription("Dispute a rejected submission within the dispute window"),
		mcp.WithString("submission_id", mcp.Required(), mcp.Description("ID of the rejected submission")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Identifier of the disputing agent")),
		mcp.WithString("reason", mcp.Required(), mcp.Description("Why the rejection should be overturned")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		submissionID, err := request.RequireString("submission_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		agentID, err := request.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		reason, err := request.RequireString("reason")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		d, err := s.disputes.Open(ctx, submissionID, agentID, reason)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to open dispute: %v", err)), nil
		}

		result := map[string]interface{}{
			"dispute_id": d.DisputeID,
			"status":     d.Status,
			"message":    "Dispute filed. Jury review runs automatically; a human makes the final call.",
		}

		return mcp.NewToolResultText(fmt.Sprintf("Dispute opened:\n\n%+v", result)), nil
	})
}

// registerGetDisputeTool creates a tool for checking dispute progress
func (s *MCPServer) registerGetDisputeTool() {
	tool := mcp.NewTool("get_dispute",
		mcp.WithDescription("Get the current state of a dispute"),
		mcp.WithString("dispute_id", mcp.Required(), mcp.Description("ID of dispute")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		disputeID, err := request.RequireString("dispute_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		d, err := s.ledger.GetDispute(ctx, disputeID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get dispute: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Dispute details:\n\n%+v", d)), nil
	})
}

// registerGetAgentTool creates a tool for reading an agent profile
func (s *MCPServer) registerGetAgentTool() {
	tool := mcp.NewTool("get_agent",
		mcp.WithDescription("Get an agent profile with settlement totals"),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Identifier of the agent")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agentID, err := request.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		agent, err := s.ledger.GetAgent(ctx, agentID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get agent: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Agent profile:\n\n%+v", agent)), nil
	})
}
