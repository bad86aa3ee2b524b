package core

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timerCount(s *Scheduler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func TestRegisterArmsSingleTimer(t *testing.T) {
	s := newTestScheduler(t, &fakeLister{}, &fakeSyncer{}, &fakeResolver{}, nil)

	require.NoError(t, s.Register(baseSpec("t1")))
	require.NoError(t, s.Register(baseSpec("t1")))
	assert.Equal(t, 1, timerCount(s))
	assert.Len(t, s.AllTasks(), 1)

	next, ok := s.ScheduledAt("t1")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 16, 9, 0, 0, 0, time.UTC), next)
	assert.Equal(t, StateScheduled, s.State("t1"))
}

func TestRegisterDisabledOrInvalidLeavesNoTimer(t *testing.T) {
	s := newTestScheduler(t, &fakeLister{}, &fakeSyncer{}, &fakeResolver{}, nil)

	disabled := baseSpec("off")
	disabled.Enabled = false
	require.NoError(t, s.Register(disabled))

	invalid := baseSpec("bad")
	invalid.CronExpression = "not a cron"
	assert.Error(t, s.Register(invalid))

	assert.Zero(t, timerCount(s))
	_, ok := s.Task("bad")
	assert.True(t, ok, "invalid tasks stay registered")
	assert.Equal(t, StateUnregistered, s.State("bad"))
	assert.Equal(t, CannotCompute, s.NextRunTime(invalid))

	assert.Error(t, s.Register(TaskSpec{Enabled: true}), "id is required")
}

func TestSetEnabled(t *testing.T) {
	s := newTestScheduler(t, &fakeLister{}, &fakeSyncer{}, &fakeResolver{}, nil)
	require.NoError(t, s.Register(baseSpec("t1")))

	require.NoError(t, s.SetEnabled("t1", false))
	assert.Zero(t, timerCount(s))
	spec, _ := s.Task("t1")
	assert.False(t, spec.Enabled)

	require.NoError(t, s.SetEnabled("t1", true))
	require.NoError(t, s.SetEnabled("t1", true))
	assert.Equal(t, 1, timerCount(s))

	assert.ErrorIs(t, s.SetEnabled("missing", true), ErrTaskNotFound)
}

func TestUnregisterDropsTimerAndLogs(t *testing.T) {
	s := newTestScheduler(t, &fakeLister{}, &fakeSyncer{}, &fakeResolver{}, nil)
	require.NoError(t, s.Register(baseSpec("t1")))
	_, err := s.ExecuteNow(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, s.Logs("t1"), 1)

	s.Unregister("t1")
	s.Unregister("t1")
	assert.Zero(t, timerCount(s))
	assert.Empty(t, s.Logs("t1"))
	assert.Empty(t, s.AllTasks())
}

func TestTimerCountMatchesEnabledTasksUnderRandomOperations(t *testing.T) {
	s := newTestScheduler(t, &fakeLister{}, &fakeSyncer{}, &fakeResolver{}, nil)
	rng := rand.New(rand.NewSource(7))
	ids := []string{"a", "b", "c", "d"}

	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(4) {
		case 0:
			spec := baseSpec(id)
			spec.Enabled = rng.Intn(2) == 0
			_ = s.Register(spec)
		case 1:
			s.Unregister(id)
		case 2:
			_ = s.SetEnabled(id, true)
		case 3:
			_ = s.SetEnabled(id, false)
		}

		enabled := 0
		for _, spec := range s.AllTasks() {
			if spec.Enabled {
				enabled++
			}
		}
		require.Equal(t, enabled, timerCount(s), "step %d", i)
	}
}

func TestExecuteNowLeavesTimerUntouched(t *testing.T) {
	s := newTestScheduler(t, &fakeLister{}, &fakeSyncer{}, &fakeResolver{}, nil)
	require.NoError(t, s.Register(baseSpec("t1")))
	before, ok := s.ScheduledAt("t1")
	require.True(t, ok)

	_, err := s.ExecuteNow(context.Background(), "t1")
	require.NoError(t, err)

	after, ok := s.ScheduledAt("t1")
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, timerCount(s))

	_, err = s.ExecuteNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestReconcileRemovesMissingTasks(t *testing.T) {
	s := newTestScheduler(t, &fakeLister{}, &fakeSyncer{}, &fakeResolver{}, nil)
	require.NoError(t, s.InitializeTasks([]TaskSpec{baseSpec("a"), baseSpec("b"), baseSpec("c")}))

	require.NoError(t, s.Reconcile([]TaskSpec{baseSpec("b"), baseSpec("d")}))

	var ids []string
	for _, spec := range s.AllTasks() {
		ids = append(ids, spec.ID)
	}
	assert.Equal(t, []string{"b", "d"}, ids)
	assert.Equal(t, 2, timerCount(s))
}

func TestInitializeTasksJoinsErrors(t *testing.T) {
	s := newTestScheduler(t, &fakeLister{}, &fakeSyncer{}, &fakeResolver{}, nil)
	bad := baseSpec("bad")
	bad.TriggerMode = TriggerFixedTime

	err := s.InitializeTasks([]TaskSpec{baseSpec("good"), bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, s.AllTasks(), 2)
	assert.Equal(t, 1, timerCount(s))
}

func TestTaskReturnsDeepCopy(t *testing.T) {
	s := newTestScheduler(t, &fakeLister{}, &fakeSyncer{}, &fakeResolver{}, nil)
	require.NoError(t, s.Register(baseSpec("t1")))

	spec, ok := s.Task("t1")
	require.True(t, ok)
	spec.Paths[0] = "/elsewhere"

	again, _ := s.Task("t1")
	assert.Equal(t, []string{"/data"}, again.Paths)
}

func TestDestroyClearsEverything(t *testing.T) {
	s := newTestScheduler(t, &fakeLister{}, &fakeSyncer{}, &fakeResolver{}, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Register(baseSpec(fmt.Sprintf("t%d", i))))
	}
	_, err := s.ExecuteNow(context.Background(), "t0")
	require.NoError(t, err)

	s.Destroy()
	assert.Zero(t, timerCount(s))
	assert.Empty(t, s.AllTasks())
	assert.Empty(t, s.Logs("t0"))
}

func TestTimerFiresAndRearms(t *testing.T) {
	lister := &fakeLister{files: map[string][]FileDescriptor{"/data": {spreadsheet("a.xlsx", time.Now())}}}
	syncer := &fakeSyncer{rows: 3}
	resolver := &fakeResolver{targets: map[string]SyncTarget{"tpl-1": {SpreadsheetToken: "x"}}}
	s := NewScheduler(lister, syncer, resolver, discardLogger(), Options{Location: time.UTC})
	t.Cleanup(s.Destroy)
	s.Start(context.Background())
	rec := newCallbackRecorder()
	s.OnExecuted(rec.Callback)

	spec := baseSpec("tick")
	spec.CronExpression = "* * * * * *"
	require.NoError(t, s.Register(spec))

	require.Eventually(t, func() bool { return rec.count("tick") >= 1 }, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return s.State("tick") == StateScheduled }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, timerCount(s))

	rec.mu.Lock()
	first := rec.results["tick"][0]
	rec.mu.Unlock()
	assert.True(t, first.Success)
	assert.Equal(t, 3, first.RowsSynced)
}

func TestDisabledTaskDoesNotFire(t *testing.T) {
	s := NewScheduler(&fakeLister{}, &fakeSyncer{}, &fakeResolver{}, discardLogger(), Options{Location: time.UTC})
	t.Cleanup(s.Destroy)
	rec := newCallbackRecorder()
	s.OnExecuted(rec.Callback)

	spec := baseSpec("tick")
	spec.CronExpression = "* * * * * *"
	require.NoError(t, s.Register(spec))
	require.NoError(t, s.SetEnabled("tick", false))

	time.Sleep(1500 * time.Millisecond)
	assert.Zero(t, rec.count("tick"))
}

func TestFireLogsWhenRearmFails(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := NewScheduler(&fakeLister{}, &fakeSyncer{}, &fakeResolver{}, logger, Options{
		Location: time.UTC,
		Now:      func() time.Time { return fixedNow },
	})
	t.Cleanup(s.Destroy)
	require.NoError(t, s.Register(baseSpec("t1")))

	s.mu.Lock()
	gen := s.timers["t1"].gen
	spec := s.tasks["t1"]
	spec.CronExpression = "not a cron"
	s.tasks["t1"] = spec
	s.mu.Unlock()

	s.fire("t1", gen)

	assert.Zero(t, timerCount(s))
	assert.Len(t, s.Logs("t1"), 1, "the run itself still happens")
	assert.Contains(t, buf.String(), "task left without a timer after run")
	assert.Contains(t, buf.String(), "task_id=t1")
}
