package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sheetsync/internal/core"
	"sheetsync/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "sheetsync"
	serverVersion = "1.0.0"
)

// MCPServer exposes task management to MCP clients.
type MCPServer struct {
	store     *store.Store
	scheduler *core.Scheduler
	logger    *slog.Logger
	location  *time.Location
	srv       *server.MCPServer
}

// NewMCPServer creates a new MCP server instance with all tools registered.
func NewMCPServer(store *store.Store, scheduler *core.Scheduler, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		store:     store,
		scheduler: scheduler,
		logger:    logger,
		location:  scheduler.Location(),
	}
	s.srv = server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(true))
	s.registerTools(s.srv)
	return s
}

// Run serves MCP over stdio until the client disconnects.
func (s *MCPServer) Run() error {
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(s.srv)
}

// Handler serves MCP over streamable HTTP.
func (s *MCPServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.srv)
}

func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("sync_list_tasks",
		mcp.WithDescription("List scheduled sync tasks with their next run time"),
		mcp.WithString("status",
			mcp.Description("Only list enabled or disabled tasks"),
			mcp.Enum("enabled", "disabled"),
		),
	), s.handleListTasks)

	mcpServer.AddTool(mcp.NewTool("sync_get_task",
		mcp.WithDescription("Show a sync task's configuration and last result"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleGetTask)

	mcpServer.AddTool(mcp.NewTool("sync_set_enabled",
		mcp.WithDescription("Enable or disable a sync task. Disabled tasks keep their configuration but never fire."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithBoolean("enabled",
			mcp.Required(),
			mcp.Description("true to schedule the task, false to pause it"),
		),
	), s.handleSetEnabled)

	mcpServer.AddTool(mcp.NewTool("sync_delete_task",
		mcp.WithDescription("Delete a sync task and cancel its schedule"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleDeleteTask)

	mcpServer.AddTool(mcp.NewTool("sync_run_task",
		mcp.WithDescription("Run a sync task now and wait for the result. The regular schedule is not affected."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleRunTask)

	mcpServer.AddTool(mcp.NewTool("sync_list_logs",
		mcp.WithDescription("Show recent executions of a task, newest first"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of entries to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListLogs)

	mcpServer.AddTool(mcp.NewTool("sync_validate_cron",
		mcp.WithDescription("Check a cron expression. Five fields, or six with leading seconds."),
		mcp.WithString("cron",
			mcp.Required(),
			mcp.Description("Cron expression, e.g. '0 9 * * 1-5' for weekdays at 09:00"),
		),
	), s.handleValidateCron)

	mcpServer.AddTool(mcp.NewTool("sync_cron_preview",
		mcp.WithDescription("Preview upcoming fire times of a cron expression"),
		mcp.WithString("cron",
			mcp.Required(),
			mcp.Description("Cron expression"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of fire times to return, default 5"),
			mcp.Min(1),
			mcp.Max(10),
		),
	), s.handleCronPreview)

	mcpServer.AddTool(mcp.NewTool("sync_next_run",
		mcp.WithDescription("Show when a task fires next"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleNextRun)

	s.logger.Info("MCP tools registered", "count", 9)
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := mcp.ParseString(request, "status", "")

	tasks, err := s.store.LoadTasks(ctx)
	if err != nil {
		s.logger.Error("list tasks", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}

	var b strings.Builder
	count := 0
	for _, t := range tasks {
		if (status == "enabled" && !t.Enabled) || (status == "disabled" && t.Enabled) {
			continue
		}
		count++
		fmt.Fprintf(&b, "%s %s\n", enabledIcon(t.Enabled), t.ID)
		fmt.Fprintf(&b, "  Name: %s\n", truncateString(t.Name, 60))
		fmt.Fprintf(&b, "  Trigger: %s\n", describeTrigger(t))
		fmt.Fprintf(&b, "  Paths: %s\n", strings.Join(t.Paths, ", "))
		if t.Enabled {
			fmt.Fprintf(&b, "  Next run: %s\n", s.scheduler.NextRunTime(t))
		}
		b.WriteString("\n")
	}
	if count == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d tasks:\n\n%s", count, b.String())), nil
}

func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, errResult := s.loadTask(ctx, taskID)
	if errResult != nil {
		return errResult, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task ID: %s\n", task.ID)
	fmt.Fprintf(&b, "Name: %s\n", task.Name)
	fmt.Fprintf(&b, "Enabled: %t\n", task.Enabled)
	fmt.Fprintf(&b, "State: %s\n", s.scheduler.State(task.ID))
	fmt.Fprintf(&b, "Trigger: %s\n", describeTrigger(task))
	fmt.Fprintf(&b, "Paths: %s\n", strings.Join(task.Paths, ", "))
	if p := task.FileFilter.FileName.Pattern; p != "" {
		fmt.Fprintf(&b, "File name: %s (%s)\n", p, task.FileFilter.FileName.Mode)
	}
	if q := task.FileFilter.Time.QuickOption; q != "" {
		fmt.Fprintf(&b, "Created: %s\n", q)
	}
	fmt.Fprintf(&b, "Template: %s\n", task.TemplateID)
	fmt.Fprintf(&b, "Max retries: %d\n", task.MaxRetries)
	if task.LastRunAt != nil {
		fmt.Fprintf(&b, "Last run: %s %s %s\n", formatTime(task.LastRunAt, s.location), statusToIcon(task.LastRunStatus), task.LastRunMessage)
	}
	fmt.Fprintf(&b, "Next run: %s\n", s.scheduler.NextRunTime(task))
	fmt.Fprintf(&b, "Created at: %s\n", formatTime(&task.CreatedAt, s.location))

	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleSetEnabled(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	enabled := mcp.ParseBoolean(request, "enabled", true)

	task, err := s.store.SetTaskEnabled(ctx, taskID, enabled)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to update task: %v", err)), nil
	}

	if err := s.scheduler.SetEnabled(taskID, enabled); errors.Is(err, core.ErrTaskNotFound) {
		err = s.scheduler.Register(task)
		if err != nil {
			s.logger.Error("schedule task", "task_id", taskID, "err", err)
		}
	} else if err != nil {
		s.logger.Error("schedule task", "task_id", taskID, "err", err)
	}

	if !enabled {
		return mcp.NewToolResultText(fmt.Sprintf("Task disabled: %s", taskID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task enabled: %s\nNext run: %s", taskID, s.scheduler.NextRunTime(task))), nil
}

func (s *MCPServer) handleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete task: %v", err)), nil
	}
	s.scheduler.Unregister(taskID)

	return mcp.NewToolResultText(fmt.Sprintf("Task deleted: %s", taskID)), nil
}

func (s *MCPServer) handleRunTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	result, err := s.scheduler.ExecuteNow(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to run task: %v", err)), nil
	}

	text := fmt.Sprintf("%s %s\nFiles synced: %d\nFiles failed: %d\nRows synced: %d\nDuration: %s",
		statusToIcon(result.Status()),
		result.Message,
		result.FilesProcessed,
		result.FilesFailed,
		result.RowsSynced,
		result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond),
	)
	if !result.Success {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *MCPServer) handleListLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	if _, ok := s.scheduler.Task(taskID); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
	}
	logs := s.scheduler.Logs(taskID)
	if len(logs) == 0 {
		return mcp.NewToolResultText("No executions recorded for this task"), nil
	}
	if limit > 0 && limit < len(logs) {
		logs = logs[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d executions:\n\n", len(logs))
	for _, entry := range logs {
		fmt.Fprintf(&b, "[%s] %s\n", statusToIcon(entry.Status), entry.ID)
		fmt.Fprintf(&b, "    Started: %s\n", formatTime(&entry.StartTime, s.location))
		if entry.EndTime != nil {
			fmt.Fprintf(&b, "    Ended: %s\n", formatTime(entry.EndTime, s.location))
		}
		fmt.Fprintf(&b, "    Files: %d  Rows: %d\n", entry.FilesProcessed, entry.RowsSynced)
		fmt.Fprintf(&b, "    %s\n", entry.Message)
		if entry.ErrorDetails != "" {
			fmt.Fprintf(&b, "    Error: %s\n", truncateString(entry.ErrorDetails, 200))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleValidateCron(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v := core.ValidateCron(mcp.ParseString(request, "cron", ""))
	if !v.Valid {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %s", v.Error)), nil
	}
	return mcp.NewToolResultText("valid"), nil
}

func (s *MCPServer) handleCronPreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cronExpr := mcp.ParseString(request, "cron", "")

	schedule, err := core.ParseCron(cronExpr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %v", err)), nil
	}

	count := int(mcp.ParseFloat64(request, "count", 5))
	if count <= 0 || count > 10 {
		count = 5
	}

	nextTimes := core.NextOccurrences(schedule, time.Now().In(s.location), count)

	var b strings.Builder
	fmt.Fprintf(&b, "Cron expression: %s\n", cronExpr)
	fmt.Fprintf(&b, "Time zone: %s\n\n", s.location)
	b.WriteString("Upcoming fire times:\n")
	for i, t := range nextTimes {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, t.Format(core.NextRunLayout))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleNextRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, errResult := s.loadTask(ctx, taskID)
	if errResult != nil {
		return errResult, nil
	}
	return mcp.NewToolResultText(s.scheduler.NextRunTime(task)), nil
}

func (s *MCPServer) loadTask(ctx context.Context, taskID string) (core.TaskSpec, *mcp.CallToolResult) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return core.TaskSpec{}, mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID))
		}
		return core.TaskSpec{}, mcp.NewToolResultError(fmt.Sprintf("failed to load task: %v", err))
	}
	return task, nil
}

// Helper functions

func describeTrigger(t core.TaskSpec) string {
	if t.TriggerMode == core.TriggerFixedTime && t.FixedTimeConfig != nil {
		cfg := t.FixedTimeConfig
		switch {
		case cfg.Period == core.PeriodWeekly && cfg.WeekDay != nil:
			return fmt.Sprintf("weekly on %s at %s", time.Weekday(*cfg.WeekDay%7), cfg.Time)
		case cfg.Period == core.PeriodMonthly && cfg.MonthDay != nil:
			return fmt.Sprintf("monthly on day %d at %s", *cfg.MonthDay, cfg.Time)
		default:
			return fmt.Sprintf("%s at %s", cfg.Period, cfg.Time)
		}
	}
	return "cron " + t.CronExpression
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format(core.NextRunLayout)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func enabledIcon(enabled bool) string {
	if enabled {
		return "▶️"
	}
	return "⏸️"
}

func statusToIcon(status core.TaskStatus) string {
	switch status {
	case core.TaskStatusSuccess:
		return "✅"
	case core.TaskStatusFailed:
		return "❌"
	case core.TaskStatusRunning:
		return "▶️"
	case core.TaskStatusPaused:
		return "⏸️"
	case core.TaskStatusIdle:
		return "⏳"
	default:
		return "❓"
	}
}
