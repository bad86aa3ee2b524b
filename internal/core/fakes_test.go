package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream rejected")

type fakeLister struct {
	files map[string][]FileDescriptor
	errs  map[string]error
}

func (l *fakeLister) ListDirectory(_ context.Context, path string) ([]FileDescriptor, error) {
	if err := l.errs[path]; err != nil {
		return nil, err
	}
	return l.files[path], nil
}

// fakeSyncer fails a file failures[name] times before succeeding; -1 fails forever.
type fakeSyncer struct {
	mu       sync.Mutex
	rows     int
	failures map[string]int
	panicOn  string
	calls    map[string]int
	targets  []SyncTarget
}

func (s *fakeSyncer) SyncFile(_ context.Context, file FileDescriptor, target SyncTarget) (SyncResult, error) {
	if file.Name == s.panicOn {
		panic("reader exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[file.Name]++
	s.targets = append(s.targets, target)
	if n, ok := s.failures[file.Name]; ok && (n < 0 || s.calls[file.Name] <= n) {
		return SyncResult{}, errUpstream
	}
	return SyncResult{RowsSynced: s.rows}, nil
}

func (s *fakeSyncer) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

type fakeResolver struct {
	targets map[string]SyncTarget
	calls   int
}

func (r *fakeResolver) ResolveTarget(_ context.Context, templateID string) (*SyncTarget, error) {
	r.calls++
	t, ok := r.targets[templateID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

type callbackRecorder struct {
	mu      sync.Mutex
	results map[string][]ExecutionResult
	ch      chan string
}

func newCallbackRecorder() *callbackRecorder {
	return &callbackRecorder{results: make(map[string][]ExecutionResult), ch: make(chan string, 64)}
}

func (c *callbackRecorder) Callback(_ context.Context, taskID string, result ExecutionResult) error {
	c.mu.Lock()
	c.results[taskID] = append(c.results[taskID], result)
	c.mu.Unlock()
	select {
	case c.ch <- taskID:
	default:
	}
	return nil
}

func (c *callbackRecorder) count(taskID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results[taskID])
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedNow is Saturday 2024-06-15 10:00 UTC.
var fixedNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, lister FileLister, syncer FileSyncer, resolver TargetResolver, sleeper *recordingSleeper) *Scheduler {
	t.Helper()
	opts := Options{
		Location: time.UTC,
		Now:      func() time.Time { return fixedNow },
	}
	if sleeper != nil {
		opts.Sleep = sleeper.Sleep
	}
	s := NewScheduler(lister, syncer, resolver, discardLogger(), opts)
	t.Cleanup(s.Destroy)
	return s
}

func spreadsheet(name string, created time.Time) FileDescriptor {
	return FileDescriptor{
		Name:          name,
		Path:          "/data/" + name,
		CreatedAt:     created,
		ModifiedAt:    created,
		Size:          1024,
		IsSpreadsheet: true,
	}
}

func baseSpec(id string) TaskSpec {
	return TaskSpec{
		ID:             id,
		Name:           "daily sales",
		TemplateID:     "tpl-1",
		Enabled:        true,
		TriggerMode:    TriggerCron,
		CronExpression: "0 0 9 * * *",
		Paths:          []string{"/data"},
		MaxRetries:     2,
	}
}
