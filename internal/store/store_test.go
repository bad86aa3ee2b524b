package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetsync/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), dir)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "k", []byte("one")))
	require.NoError(t, s.Put(ctx, "k", []byte("two")))
	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(v))

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestTasksRoundTripUnderWellKnownKey(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tasks, err := s.LoadTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	weekDay := 1
	spec := core.TaskSpec{
		ID:              "t1",
		Name:            "weekly",
		Enabled:         true,
		TriggerMode:     core.TriggerFixedTime,
		FixedTimeConfig: &core.FixedTimeConfig{Time: "09:00", Period: core.PeriodWeekly, WeekDay: &weekDay},
		Paths:           []string{"/a", "/b"},
		FileFilter:      core.FileFilter{FileName: core.NameFilter{Mode: core.MatchFuzzy, Pattern: "*.xlsx"}},
		MaxRetries:      3,
	}
	saved, err := s.UpsertTask(ctx, spec)
	require.NoError(t, err)
	assert.False(t, saved.CreatedAt.IsZero())
	assert.Equal(t, core.TaskStatusIdle, saved.LastRunStatus)

	raw, ok, err := s.Get(ctx, TasksKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), `"fixedTimeConfig"`)
	assert.Contains(t, string(raw), `"weekDay":1`)

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, spec.Paths, got.Paths)
	assert.Equal(t, 1, *got.FixedTimeConfig.WeekDay)
}

func TestUpsertTaskKeepsCreatedAtAndLastRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	created, err := s.UpsertTask(ctx, core.TaskSpec{Name: "a"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.NoError(t, s.UpdateTaskResult(ctx, created.ID, core.ExecutionResult{Success: true, Message: "ok", FinishedAt: time.Now()}))

	updated := created
	updated.Name = "renamed"
	updated.CreatedAt = time.Time{}
	_, err = s.UpsertTask(ctx, updated)
	require.NoError(t, err)

	got, err := s.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, core.TaskStatusSuccess, got.LastRunStatus)

	all, err := s.LoadTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdateTaskResult(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.UpsertTask(ctx, core.TaskSpec{ID: "t1"})
	require.NoError(t, err)

	finished := time.Date(2024, 6, 15, 9, 0, 5, 0, time.UTC)
	require.NoError(t, s.UpdateTaskResult(ctx, "t1", core.ExecutionResult{Message: "no matching files", FinishedAt: finished}))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, finished.Equal(*got.LastRunAt))
	assert.Equal(t, core.TaskStatusFailed, got.LastRunStatus)
	assert.Equal(t, "no matching files", got.LastRunMessage)

	assert.ErrorIs(t, s.UpdateTaskResult(ctx, "gone", core.ExecutionResult{}), core.ErrTaskNotFound)
}

func TestSetTaskEnabledAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.UpsertTask(ctx, core.TaskSpec{ID: "t1", Enabled: true})
	require.NoError(t, err)

	got, err := s.SetTaskEnabled(ctx, "t1", false)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	_, err = s.SetTaskEnabled(ctx, "nope", true)
	assert.ErrorIs(t, err, core.ErrTaskNotFound)

	require.NoError(t, s.DeleteTask(ctx, "t1"))
	assert.ErrorIs(t, s.DeleteTask(ctx, "t1"), core.ErrTaskNotFound)
	_, err = s.GetTask(ctx, "t1")
	assert.ErrorIs(t, err, core.ErrTaskNotFound)
}

func TestImportTasks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.UpsertTask(ctx, core.TaskSpec{ID: "existing"})
	require.NoError(t, err)

	all, err := s.ImportTasks(ctx, []core.TaskSpec{{ID: "existing", Name: "updated"}, {ID: "new"}})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "updated", all[0].Name)
	assert.Equal(t, "new", all[1].ID)
}

func TestTemplates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.SaveTemplate(ctx, Template{Name: "no token"})
	assert.Error(t, err)

	b, err := s.SaveTemplate(ctx, Template{Name: "b", Target: core.SyncTarget{SpreadsheetToken: "tokB", AppID: "app"}})
	require.NoError(t, err)
	_, err = s.SaveTemplate(ctx, Template{Name: "a", Target: core.SyncTarget{SpreadsheetToken: "tokA"}})
	require.NoError(t, err)

	list, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)

	target, err := s.ResolveTarget(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "tokB", target.SpreadsheetToken)
	assert.Equal(t, "app", target.AppID)

	target, err = s.ResolveTarget(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, target)

	require.NoError(t, s.DeleteTemplate(ctx, b.ID))
	assert.ErrorIs(t, s.DeleteTemplate(ctx, b.ID), ErrTemplateNotFound)
}
