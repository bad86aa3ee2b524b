package api

import (
	"net/http"

	"sheetsync/internal/core"

	"github.com/go-chi/chi/v5"
)

type nextRunResponse struct {
	TaskID      string `json:"task_id"`
	NextRun     string `json:"next_run"`
	ScheduledAt string `json:"scheduled_at,omitempty"`
}

// handleListLogs returns the in-memory execution history, newest first.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if _, ok := s.scheduler.Task(taskID); !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	logs := s.scheduler.Logs(taskID)

	limit := parseIntDefault(r.URL.Query().Get("limit"), len(logs))
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	if offset < 0 || offset > len(logs) {
		offset = len(logs)
	}
	logs = logs[offset:]
	if limit >= 0 && limit < len(logs) {
		logs = logs[:limit]
	}
	if logs == nil {
		logs = []core.ExecutionLogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleNextRun(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, ok := s.scheduler.Task(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	resp := nextRunResponse{TaskID: taskID, NextRun: s.scheduler.NextRunTime(task)}
	if at, ok := s.scheduler.ScheduledAt(taskID); ok {
		resp.ScheduledAt = at.Format(core.NextRunLayout)
	}
	writeJSON(w, http.StatusOK, resp)
}
