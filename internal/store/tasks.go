package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"sheetsync/internal/core"
)

// TasksKey is the key the task list is stored under.
const TasksKey = "scheduled_tasks"

// LoadTasks returns every stored task in stored order.
func (s *Store) LoadTasks(ctx context.Context) ([]core.TaskSpec, error) {
	raw, ok, err := s.Get(ctx, TasksKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []core.TaskSpec{}, nil
	}
	return decodeTasks(raw)
}

// SaveTasks replaces the whole task list.
func (s *Store) SaveTasks(ctx context.Context, tasks []core.TaskSpec) error {
	raw, err := encodeTasks(tasks)
	if err != nil {
		return err
	}
	return s.Put(ctx, TasksKey, raw)
}

// GetTask returns one task or core.ErrTaskNotFound.
func (s *Store) GetTask(ctx context.Context, id string) (core.TaskSpec, error) {
	tasks, err := s.LoadTasks(ctx)
	if err != nil {
		return core.TaskSpec{}, err
	}
	i := slices.IndexFunc(tasks, func(t core.TaskSpec) bool { return t.ID == id })
	if i < 0 {
		return core.TaskSpec{}, core.ErrTaskNotFound
	}
	return tasks[i], nil
}

// UpsertTask inserts a new task or replaces an existing one. A missing id is
// generated. CreatedAt and the last-run fields of an existing task are kept.
func (s *Store) UpsertTask(ctx context.Context, task core.TaskSpec) (core.TaskSpec, error) {
	if task.ID == "" {
		task.ID = core.NewID()
	}
	now := s.now()
	task.UpdatedAt = now
	err := s.updateTasks(ctx, func(tasks []core.TaskSpec) ([]core.TaskSpec, error) {
		i := slices.IndexFunc(tasks, func(t core.TaskSpec) bool { return t.ID == task.ID })
		if i < 0 {
			if task.CreatedAt.IsZero() {
				task.CreatedAt = now
			}
			if task.LastRunStatus == "" {
				task.LastRunStatus = core.TaskStatusIdle
			}
			return append(tasks, task), nil
		}
		prev := tasks[i]
		task.CreatedAt = prev.CreatedAt
		task.LastRunAt = prev.LastRunAt
		task.LastRunStatus = prev.LastRunStatus
		task.LastRunMessage = prev.LastRunMessage
		tasks[i] = task
		return tasks, nil
	})
	if err != nil {
		return core.TaskSpec{}, err
	}
	return task, nil
}

// SetTaskEnabled flips the enabled flag of a stored task.
func (s *Store) SetTaskEnabled(ctx context.Context, id string, enabled bool) (core.TaskSpec, error) {
	var out core.TaskSpec
	err := s.updateTasks(ctx, func(tasks []core.TaskSpec) ([]core.TaskSpec, error) {
		i := slices.IndexFunc(tasks, func(t core.TaskSpec) bool { return t.ID == id })
		if i < 0 {
			return nil, core.ErrTaskNotFound
		}
		tasks[i].Enabled = enabled
		tasks[i].UpdatedAt = s.now()
		out = tasks[i]
		return tasks, nil
	})
	return out, err
}

// DeleteTask removes a task or returns core.ErrTaskNotFound.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.updateTasks(ctx, func(tasks []core.TaskSpec) ([]core.TaskSpec, error) {
		n := len(tasks)
		tasks = slices.DeleteFunc(tasks, func(t core.TaskSpec) bool { return t.ID == id })
		if len(tasks) == n {
			return nil, core.ErrTaskNotFound
		}
		return tasks, nil
	})
}

// UpdateTaskResult records the outcome of a run on the stored task. It has the
// shape of core.ExecutionCallback. Results for tasks deleted in the meantime
// are dropped.
func (s *Store) UpdateTaskResult(ctx context.Context, taskID string, result core.ExecutionResult) error {
	err := s.updateTasks(ctx, func(tasks []core.TaskSpec) ([]core.TaskSpec, error) {
		i := slices.IndexFunc(tasks, func(t core.TaskSpec) bool { return t.ID == taskID })
		if i < 0 {
			return nil, core.ErrTaskNotFound
		}
		finished := result.FinishedAt
		tasks[i].LastRunAt = &finished
		tasks[i].LastRunStatus = result.Status()
		tasks[i].LastRunMessage = result.Message
		return tasks, nil
	})
	if err != nil {
		return fmt.Errorf("record result of task %s: %w", taskID, err)
	}
	return nil
}

// ImportTasks upserts every given task and returns the full stored list.
func (s *Store) ImportTasks(ctx context.Context, specs []core.TaskSpec) ([]core.TaskSpec, error) {
	for _, spec := range specs {
		if _, err := s.UpsertTask(ctx, spec); err != nil {
			return nil, fmt.Errorf("import task %s: %w", spec.ID, err)
		}
	}
	return s.LoadTasks(ctx)
}

func (s *Store) updateTasks(ctx context.Context, fn func([]core.TaskSpec) ([]core.TaskSpec, error)) error {
	return s.update(ctx, TasksKey, func(old []byte) ([]byte, error) {
		tasks := []core.TaskSpec{}
		if old != nil {
			var err error
			if tasks, err = decodeTasks(old); err != nil {
				return nil, err
			}
		}
		tasks, err := fn(tasks)
		if err != nil {
			return nil, err
		}
		return encodeTasks(tasks)
	})
}

func decodeTasks(raw []byte) ([]core.TaskSpec, error) {
	var tasks []core.TaskSpec
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, fmt.Errorf("decode %s: %w", TasksKey, err)
	}
	if tasks == nil {
		tasks = []core.TaskSpec{}
	}
	return tasks, nil
}

func encodeTasks(tasks []core.TaskSpec) ([]byte, error) {
	if tasks == nil {
		tasks = []core.TaskSpec{}
	}
	raw, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", TasksKey, err)
	}
	return raw, nil
}
