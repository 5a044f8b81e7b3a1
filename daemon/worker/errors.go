package worker

import (
	"fmt"
	"time"
)

// JobTimeout reports that a task exceeded its deadline. The task's context
// was cancelled; whatever the function managed to produce is discarded.
type JobTimeout struct {
	Key     string
	Timeout time.Duration
}

func (e *JobTimeout) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("job %s timed out after %s", e.Key, e.Timeout)
	}
	return fmt.Sprintf("job timed out after %s", e.Timeout)
}

// PoolClosed rejects submissions once shutdown has begun.
type PoolClosed struct{}

func (e *PoolClosed) Error() string {
	return "worker pool is shutting down"
}
