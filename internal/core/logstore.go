package core

import (
	"slices"
	"sync"
)

// DefaultLogRetention is the number of execution log entries kept per task.
const DefaultLogRetention = 100

// LogStore keeps a bounded, newest-first history of runs per task.
// It is safe for concurrent use.
type LogStore struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string][]ExecutionLogEntry
}

// NewLogStore creates a store that keeps at most capacity entries per task.
func NewLogStore(capacity int) *LogStore {
	if capacity < 1 {
		capacity = DefaultLogRetention
	}
	return &LogStore{
		capacity: capacity,
		entries:  make(map[string][]ExecutionLogEntry),
	}
}

// Append records a finished run, evicting the oldest entry on overflow.
func (s *LogStore) Append(entry ExecutionLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.entries[entry.TaskID]
	logs = slices.Insert(logs, 0, entry)
	if len(logs) > s.capacity {
		logs = logs[:s.capacity]
	}
	s.entries[entry.TaskID] = logs
}

// Query returns a copy of the task's entries, newest first.
func (s *LogStore) Query(taskID string) []ExecutionLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries[taskID])
}

// Remove drops all entries of a task.
func (s *LogStore) Remove(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, taskID)
}

// Clear drops everything.
func (s *LogStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]ExecutionLogEntry)
}
