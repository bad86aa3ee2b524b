package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// TaskState is the scheduling state of a task inside the registry.
type TaskState string

const (
	StateUnregistered TaskState = "unregistered"
	StateScheduled    TaskState = "scheduled"
	StateFiring       TaskState = "firing"
)

// DefaultRetryBackoff is the base delay between sync retries, multiplied by the attempt number.
const DefaultRetryBackoff = time.Second

// Options tunes a Scheduler. Zero values select the defaults.
type Options struct {
	Location     *time.Location
	LogRetention int
	WeekStart    time.Weekday
	RetryBackoff time.Duration
	Now          func() time.Time
	Sleep        Sleeper
}

type taskTimer struct {
	timer *time.Timer
	gen   uint64
	next  time.Time
}

// Scheduler owns registered tasks and their countdown timers. Each enabled
// task has at most one pending timer; a fired timer runs the pipeline and
// then re-arms from the time the run finished.
type Scheduler struct {
	pipeline *Pipeline
	logs     *LogStore
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time

	mu     sync.Mutex
	tasks  map[string]TaskSpec
	order  []string
	timers map[string]*taskTimer
	firing map[string]int
	gen    uint64

	ctx context.Context
}

// NewScheduler constructs a scheduler with the given collaborators.
func NewScheduler(lister FileLister, syncer FileSyncer, resolver TargetResolver, logger *slog.Logger, opts Options) *Scheduler {
	location := opts.Location
	if location == nil {
		location = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	localNow := func() time.Time { return now().In(location) }
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	logs := NewLogStore(opts.LogRetention)
	return &Scheduler{
		pipeline: &Pipeline{
			lister:    lister,
			syncer:    syncer,
			resolver:  resolver,
			logs:      logs,
			logger:    logger,
			now:       localNow,
			sleep:     sleep,
			backoff:   backoff,
			weekStart: opts.WeekStart,
		},
		logs:     logs,
		logger:   logger,
		location: location,
		now:      localNow,
		tasks:    make(map[string]TaskSpec),
		timers:   make(map[string]*taskTimer),
		firing:   make(map[string]int),
	}
}

// Start records the context used for timer-driven runs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
}

// OnExecuted registers the observer notified after every run.
func (s *Scheduler) OnExecuted(cb ExecutionCallback) {
	s.pipeline.setCallback(cb)
}

// InitializeTasks registers a batch of tasks loaded at startup.
func (s *Scheduler) InitializeTasks(specs []TaskSpec) error {
	var errs []error
	for _, spec := range specs {
		if err := s.Register(spec); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Info("tasks initialized", "count", len(specs), "unscheduled", len(errs))
	return errors.Join(errs...)
}

// Reconcile makes the registry match specs: tasks not present are
// unregistered, every given task is registered again.
func (s *Scheduler) Reconcile(specs []TaskSpec) error {
	keep := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		keep[spec.ID] = struct{}{}
	}
	for _, spec := range s.AllTasks() {
		if _, ok := keep[spec.ID]; !ok {
			s.Unregister(spec.ID)
		}
	}
	return s.InitializeTasks(specs)
}

// Register stores or replaces the task and (re)arms its timer if enabled.
// A spec whose next run cannot be computed stays registered without a timer.
func (s *Scheduler) Register(spec TaskSpec) error {
	if spec.ID == "" {
		return &ValidationError{Field: "id", Message: "task id is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[spec.ID]; !ok {
		s.order = append(s.order, spec.ID)
	}
	s.tasks[spec.ID] = spec.Clone()
	if !spec.Enabled {
		s.unscheduleLocked(spec.ID)
		return nil
	}
	return s.scheduleLocked(spec.ID)
}

// Unregister cancels the task's timer and forgets the task and its logs.
// A run already in flight is allowed to finish.
func (s *Scheduler) Unregister(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unscheduleLocked(taskID)
	delete(s.tasks, taskID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == taskID })
	s.logs.Remove(taskID)
}

// SetEnabled toggles scheduling for a registered task.
func (s *Scheduler) SetEnabled(taskID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	spec.Enabled = enabled
	spec.UpdatedAt = s.now()
	s.tasks[taskID] = spec
	if !enabled {
		s.unscheduleLocked(taskID)
		return nil
	}
	return s.scheduleLocked(taskID)
}

// ExecuteNow runs the task immediately without touching its pending timer.
func (s *Scheduler) ExecuteNow(ctx context.Context, taskID string) (ExecutionResult, error) {
	s.mu.Lock()
	spec, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return ExecutionResult{}, ErrTaskNotFound
	}
	spec = spec.Clone()
	s.firing[taskID]++
	s.mu.Unlock()

	defer s.doneFiring(taskID)
	return s.pipeline.Run(ctx, spec), nil
}

// Destroy cancels every timer and clears all state. In-flight runs finish
// but are not re-armed.
func (s *Scheduler) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.timers {
		s.unscheduleLocked(id)
	}
	s.tasks = make(map[string]TaskSpec)
	s.order = nil
	s.logs.Clear()
	s.logger.Info("scheduler destroyed")
}

// Logs returns the task's execution history, newest first.
func (s *Scheduler) Logs(taskID string) []ExecutionLogEntry {
	return s.logs.Query(taskID)
}

// AllTasks returns copies of all registered tasks in registration order.
func (s *Scheduler) AllTasks() []TaskSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskSpec, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Clone())
	}
	return out
}

// Task returns a copy of one registered task.
func (s *Scheduler) Task(taskID string) (TaskSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.tasks[taskID]
	if !ok {
		return TaskSpec{}, false
	}
	return spec.Clone(), true
}

// NextRunTime formats the task's next run relative to now, or CannotCompute.
func (s *Scheduler) NextRunTime(spec TaskSpec) string {
	return FormatNextRun(spec.Trigger(), s.now())
}

// ScheduledAt reports when the task's pending timer will fire.
func (s *Scheduler) ScheduledAt(taskID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[taskID]
	if !ok {
		return time.Time{}, false
	}
	return t.next, true
}

// State reports where the task is in its scheduling lifecycle.
func (s *Scheduler) State(taskID string) TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firing[taskID] > 0 {
		return StateFiring
	}
	if _, ok := s.timers[taskID]; ok {
		return StateScheduled
	}
	return StateUnregistered
}

// Location is the time zone triggers are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

func (s *Scheduler) scheduleLocked(taskID string) error {
	s.unscheduleLocked(taskID)
	spec := s.tasks[taskID]
	now := s.now()
	next, err := NextRun(spec.Trigger(), now)
	if err != nil {
		s.logger.Warn("cannot compute next run, task left unscheduled", "task_id", taskID, "err", err)
		return fmt.Errorf("schedule task %s: %w", taskID, err)
	}
	delay := next.Sub(now)
	if delay <= 0 {
		s.logger.Warn("next run already passed, firing immediately", "task_id", taskID, "next_run", next)
		delay = 0
	}
	s.gen++
	gen := s.gen
	timer := time.AfterFunc(delay, func() { s.fire(taskID, gen) })
	s.timers[taskID] = &taskTimer{timer: timer, gen: gen, next: next}
	s.logger.Info("task scheduled", "task_id", taskID, "next_run", next.Format(NextRunLayout), "delay", delay.Round(time.Second))
	return nil
}

func (s *Scheduler) unscheduleLocked(taskID string) {
	if t, ok := s.timers[taskID]; ok {
		t.timer.Stop()
		delete(s.timers, taskID)
	}
}

// fire is the single point where a timer turns into a run and the task is re-armed.
func (s *Scheduler) fire(taskID string, gen uint64) {
	s.mu.Lock()
	t, ok := s.timers[taskID]
	if !ok || t.gen != gen {
		// Cancelled or replaced after the timer had already fired.
		s.mu.Unlock()
		return
	}
	delete(s.timers, taskID)
	spec, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return
	}
	spec = spec.Clone()
	s.firing[taskID]++
	ctx := s.ctxOrBackground()
	s.mu.Unlock()

	s.pipeline.Run(ctx, spec)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.decFiringLocked(taskID)
	if err := s.rearmLocked(taskID); err != nil {
		s.logger.Warn("task left without a timer after run", "task_id", taskID, "err", err)
	}
}

// rearmLocked arms the next timer after a fired run unless the task was
// removed, disabled or re-armed while it ran.
func (s *Scheduler) rearmLocked(taskID string) error {
	current, ok := s.tasks[taskID]
	if !ok || !current.Enabled {
		return nil
	}
	if _, armed := s.timers[taskID]; armed {
		return nil
	}
	return s.scheduleLocked(taskID)
}

func (s *Scheduler) doneFiring(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decFiringLocked(taskID)
}

func (s *Scheduler) decFiringLocked(taskID string) {
	if s.firing[taskID] <= 1 {
		delete(s.firing, taskID)
		return
	}
	s.firing[taskID]--
}

func (s *Scheduler) ctxOrBackground() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}
