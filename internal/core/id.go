package core

import (
	"github.com/google/uuid"
)

// NewID returns a random UUID string used for tasks and log entries.
func NewID() string {
	return uuid.NewString()
}
