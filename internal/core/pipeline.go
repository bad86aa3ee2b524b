package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// FileLister lists the files directly under a path. Implementations must
// return an error, not an empty list, when the path cannot be read.
type FileLister interface {
	ListDirectory(ctx context.Context, path string) ([]FileDescriptor, error)
}

// FileSyncer reads one file and pushes its rows to the remote table.
type FileSyncer interface {
	SyncFile(ctx context.Context, file FileDescriptor, target SyncTarget) (SyncResult, error)
}

// TargetResolver looks up the sync target behind a template id.
// A nil target with a nil error means the template does not exist.
type TargetResolver interface {
	ResolveTarget(ctx context.Context, templateID string) (*SyncTarget, error)
}

// ExecutionCallback receives the outcome of every run. Errors are logged and dropped.
type ExecutionCallback func(ctx context.Context, taskID string, result ExecutionResult) error

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Pipeline executes one run of one task: scan, filter, sync, log, report.
type Pipeline struct {
	lister    FileLister
	syncer    FileSyncer
	resolver  TargetResolver
	logs      *LogStore
	logger    *slog.Logger
	now       func() time.Time
	sleep     Sleeper
	backoff   time.Duration
	weekStart time.Weekday

	cbMu     sync.RWMutex
	callback ExecutionCallback
}

type runStats struct {
	candidates int
	processed  int
	rows       int
	failures   []error
}

// Run executes the task and always returns a terminal result. The result is
// appended to the log store and handed to the callback before Run returns.
func (p *Pipeline) Run(ctx context.Context, spec TaskSpec) ExecutionResult {
	started := p.now()
	p.logger.Info("run started", "task_id", spec.ID, "name", spec.Name)

	stats, err := p.safeExecute(ctx, spec)

	result := ExecutionResult{
		StartedAt:  started,
		FinishedAt: p.now(),
	}
	if err != nil {
		result.Message = err.Error()
		result.Error = errorDetails(err)
		p.logger.Error("run failed", "task_id", spec.ID, "err", err)
	} else {
		result.Success = true
		result.FilesProcessed = stats.processed
		result.FilesFailed = len(stats.failures)
		result.RowsSynced = stats.rows
		result.Message = fmt.Sprintf("processed %d file(s), synced %d row(s)", stats.processed, stats.rows)
		if len(stats.failures) > 0 {
			result.Message += fmt.Sprintf(", %d file(s) failed", len(stats.failures))
			result.Error = errors.Join(stats.failures...).Error()
		}
		p.logger.Info("run finished", "task_id", spec.ID, "candidates", stats.candidates,
			"processed", stats.processed, "failed", len(stats.failures), "rows", stats.rows)
	}

	p.finish(ctx, spec.ID, result)
	return result
}

func (p *Pipeline) finish(ctx context.Context, taskID string, result ExecutionResult) {
	ended := result.FinishedAt
	p.logs.Append(ExecutionLogEntry{
		ID:             NewID(),
		TaskID:         taskID,
		StartTime:      result.StartedAt,
		EndTime:        &ended,
		Status:         result.Status(),
		Message:        result.Message,
		FilesProcessed: result.FilesProcessed,
		RowsSynced:     result.RowsSynced,
		ErrorDetails:   result.Error,
	})

	p.cbMu.RLock()
	cb := p.callback
	p.cbMu.RUnlock()
	if cb == nil {
		return
	}
	if err := cb(ctx, taskID, result); err != nil {
		p.logger.Warn("execution callback", "task_id", taskID, "err", err)
	}
}

func (p *Pipeline) setCallback(cb ExecutionCallback) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.callback = cb
}

// safeExecute turns a collaborator panic into an ordinary run failure.
func (p *Pipeline) safeExecute(ctx context.Context, spec TaskSpec) (stats runStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			stats = runStats{}
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return p.execute(ctx, spec)
}

func (p *Pipeline) execute(ctx context.Context, spec TaskSpec) (runStats, error) {
	var stats runStats
	if !spec.Enabled {
		return stats, ErrTaskDisabled
	}
	if len(spec.Paths) == 0 {
		return stats, ErrNoPathsConfigured
	}

	// All-or-nothing scan: one unreadable path discards every listing.
	var all []FileDescriptor
	for _, path := range spec.Paths {
		files, err := p.lister.ListDirectory(ctx, path)
		if err != nil {
			return runStats{}, &PathScanError{Path: path, Err: err}
		}
		all = append(all, files...)
	}

	matched := FilterFiles(all, spec.FileFilter, p.now(), p.weekStart)
	stats.candidates = len(matched)
	p.logger.Debug("files filtered", "task_id", spec.ID, "listed", len(all), "matched", len(matched))
	if len(matched) == 0 {
		if spec.ValidateBeforeTrigger {
			return stats, ErrNoMatchingFiles
		}
		return stats, nil
	}

	target, err := p.resolveTarget(ctx, spec)
	if err != nil {
		return stats, err
	}

	for _, file := range matched {
		rows, err := p.syncWithRetry(ctx, spec, file, *target)
		if err != nil {
			p.logger.Warn("file sync failed", "task_id", spec.ID, "file", file.Name, "err", err)
			stats.failures = append(stats.failures, err)
			continue
		}
		stats.processed++
		stats.rows += rows
	}
	return stats, nil
}

func (p *Pipeline) resolveTarget(ctx context.Context, spec TaskSpec) (*SyncTarget, error) {
	if spec.SyncTarget != nil && spec.SyncTarget.SpreadsheetToken != "" {
		target := *spec.SyncTarget
		return &target, nil
	}
	if p.resolver == nil {
		return nil, &TargetNotFoundError{TemplateID: spec.TemplateID}
	}
	target, err := p.resolver.ResolveTarget(ctx, spec.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("resolve sync target: %w", err)
	}
	if target == nil {
		return nil, &TargetNotFoundError{TemplateID: spec.TemplateID}
	}
	return target, nil
}

// syncWithRetry makes one attempt plus up to MaxRetries retries, waiting
// backoff × attempt number between them.
func (p *Pipeline) syncWithRetry(ctx context.Context, spec TaskSpec, file FileDescriptor, target SyncTarget) (int, error) {
	attempts := 1 + max(spec.MaxRetries, 0)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := p.syncer.SyncFile(ctx, file, target)
		if err == nil {
			return res.RowsSynced, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		p.logger.Info("retrying file sync", "task_id", spec.ID, "file", file.Name,
			"retry", attempt, "of", attempts-1, "err", err)
		if err := p.sleep(ctx, time.Duration(attempt)*p.backoff); err != nil {
			return 0, &FileSyncError{File: file.Name, Attempts: attempt, Err: err}
		}
	}
	return 0, &FileSyncError{File: file.Name, Attempts: attempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("run aborted: %v", e.value)
}

func errorDetails(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return strings.TrimSpace(pe.Error() + "\n" + string(pe.stack))
	}
	return err.Error()
}
