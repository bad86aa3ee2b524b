package notify

import (
	"context"
	"fmt"

	"sheetsync/internal/core"
)

// NameLookup returns a display name for a task id.
type NameLookup func(taskID string) string

// OnFailure adapts a Notifier into an execution callback that pushes a
// message whenever a run fails.
func OnFailure(n Notifier, lookup NameLookup) core.ExecutionCallback {
	return func(ctx context.Context, taskID string, result core.ExecutionResult) error {
		if result.Success {
			return nil
		}
		name := taskID
		if lookup != nil {
			if v := lookup(taskID); v != "" {
				name = v
			}
		}
		title := fmt.Sprintf("Sync task failed: %s", name)
		if err := n.Send(ctx, title, result.Message); err != nil {
			return fmt.Errorf("notify failure of %s: %w", taskID, err)
		}
		return nil
	}
}

// Chain runs callbacks in order and returns the first error after running all.
func Chain(callbacks ...core.ExecutionCallback) core.ExecutionCallback {
	return func(ctx context.Context, taskID string, result core.ExecutionResult) error {
		var first error
		for _, cb := range callbacks {
			if cb == nil {
				continue
			}
			if err := cb(ctx, taskID, result); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}
