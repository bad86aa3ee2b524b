package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sheetsync/internal/core"

	"github.com/go-chi/chi/v5"
)

type taskResponse struct {
	core.TaskSpec
	NextRun string         `json:"nextRun"`
	State   core.TaskState `json:"state"`
}

type taskStatsResponse struct {
	Total    int                     `json:"total"`
	Enabled  int                     `json:"enabled"`
	Disabled int                     `json:"disabled"`
	ByStatus map[core.TaskStatus]int `json:"byStatus"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var spec core.TaskSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if spec.ID != "" {
		if _, err := s.store.GetTask(r.Context(), spec.ID); err == nil {
			writeError(w, http.StatusConflict, "conflict", "task already exists")
			return
		}
	}
	s.saveTask(w, r, spec, http.StatusCreated)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if _, ok := s.loadTask(w, r, taskID); !ok {
		return
	}
	var spec core.TaskSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	spec.ID = taskID
	s.saveTask(w, r, spec, http.StatusOK)
}

// saveTask validates, persists, then (re)registers the task with the scheduler.
func (s *Server) saveTask(w http.ResponseWriter, r *http.Request, spec core.TaskSpec, status int) {
	normalizeTask(&spec)
	if err := validateTask(spec, s.now().In(s.location)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	saved, err := s.store.UpsertTask(r.Context(), spec)
	if err != nil {
		s.logger.Error("save task", "task_id", spec.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save task")
		return
	}
	if err := s.scheduler.Register(saved); err != nil {
		s.logger.Error("schedule task", "task_id", saved.ID, "err", err)
	}
	writeJSON(w, status, s.taskToResponse(saved))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var enabledFilter *bool
	if v := strings.TrimSpace(r.URL.Query().Get("enabled")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "enabled must be true or false")
			return
		}
		enabledFilter = &b
	}
	tasks, err := s.store.LoadTasks(r.Context())
	if err != nil {
		s.logger.Error("list tasks", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list tasks")
		return
	}
	res := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		if enabledFilter != nil && t.Enabled != *enabledFilter {
			continue
		}
		res = append(res, s.taskToResponse(t))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.LoadTasks(r.Context())
	if err != nil {
		s.logger.Error("task stats", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load tasks")
		return
	}
	stats := taskStatsResponse{Total: len(tasks), ByStatus: map[core.TaskStatus]int{}}
	for _, t := range tasks {
		if t.Enabled {
			stats.Enabled++
		} else {
			stats.Disabled++
		}
		status := t.LastRunStatus
		if status == "" {
			status = core.TaskStatusIdle
		}
		stats.ByStatus[status]++
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadTask(w, r, chi.URLParam(r, "taskID"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.taskToResponse(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.store.DeleteTask(r.Context(), taskID); err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
		} else {
			s.logger.Error("delete task", "task_id", taskID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete task")
		}
		return
	}
	s.scheduler.Unregister(taskID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		task, err := s.store.SetTaskEnabled(r.Context(), taskID, enabled)
		if err != nil {
			if errors.Is(err, core.ErrTaskNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "task not found")
			} else {
				s.logger.Error("set task enabled", "task_id", taskID, "err", err)
				writeError(w, http.StatusInternalServerError, "internal_error", "failed to update task")
			}
			return
		}
		if err := s.scheduler.SetEnabled(taskID, enabled); errors.Is(err, core.ErrTaskNotFound) {
			err = s.scheduler.Register(task)
			if err != nil {
				s.logger.Error("schedule task", "task_id", taskID, "err", err)
			}
		} else if err != nil {
			s.logger.Error("schedule task", "task_id", taskID, "err", err)
		}
		writeJSON(w, http.StatusOK, s.taskToResponse(task))
	}
}

// handleRunTask starts a run outside the schedule. With ?wait=true the
// response carries the result, otherwise the run continues in the background.
func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if _, ok := s.scheduler.Task(taskID); !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		// Runs are not cancellable; a client hanging up must not abort retries.
		result, err := s.scheduler.ExecuteNow(context.WithoutCancel(r.Context()), taskID)
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	ctx := s.runCtx
	go func(ctx context.Context) {
		if _, err := s.scheduler.ExecuteNow(ctx, taskID); err != nil {
			s.logger.Warn("manual run", "task_id", taskID, "err", err)
		}
	}(ctx)
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "status": string(core.TaskStatusRunning)})
}

func (s *Server) loadTask(w http.ResponseWriter, r *http.Request, taskID string) (core.TaskSpec, bool) {
	task, err := s.store.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
		} else {
			s.logger.Error("get task", "task_id", taskID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load task")
		}
		return core.TaskSpec{}, false
	}
	return task, true
}

func (s *Server) taskToResponse(task core.TaskSpec) taskResponse {
	return taskResponse{
		TaskSpec: task,
		NextRun:  s.scheduler.NextRunTime(task),
		State:    s.scheduler.State(task.ID),
	}
}

func normalizeTask(spec *core.TaskSpec) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.CronExpression = strings.TrimSpace(spec.CronExpression)
	paths := spec.Paths[:0]
	for _, p := range spec.Paths {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	spec.Paths = paths
}

func validateTask(spec core.TaskSpec, now time.Time) error {
	if spec.Name == "" {
		return &core.ValidationError{Field: "name", Message: "is required"}
	}
	if spec.MaxRetries < 0 {
		return &core.ValidationError{Field: "maxRetries", Message: "must not be negative"}
	}
	switch spec.FileFilter.FileName.Mode {
	case "", core.MatchExact, core.MatchFuzzy:
	default:
		return &core.ValidationError{Field: "fileFilter.fileName.mode", Message: "must be exact or fuzzy"}
	}
	if _, err := core.NextRun(spec.Trigger(), now); err != nil {
		return err
	}
	return nil
}
