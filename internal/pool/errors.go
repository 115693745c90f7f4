package pool

import (
	"errors"
	"fmt"
	"time"

	"github.com/pkmiec/passenger/internal/spawningkit"
)

// Errors surfaced through get callbacks and tickets.
var (
	// ErrPoolShuttingDown is returned for requests that arrive at, or are
	// still waiting in, a pool that has left the alive state
	ErrPoolShuttingDown = errors.New("the application pool is shutting down")

	// ErrGetAborted is returned when the caller cancelled before a session
	// could be assigned
	ErrGetAborted = errors.New("the get request was aborted")

	// ErrGroupDetached is returned for requests that were waiting on a
	// group that got detached
	ErrGroupDetached = errors.New("the group was detached while the request was waiting")
)

// RequestQueueFullError indicates that enqueuing a get request would
// exceed the wait list's size bound.
type RequestQueueFullError struct {
	// GroupName is the group whose queue overflowed; empty for the
	// pool-level wait list
	GroupName string
	// Size is the configured bound that was hit
	Size int
}

// Error implements the error interface
func (e *RequestQueueFullError) Error() string {
	if e.GroupName == "" {
		return fmt.Sprintf("request queue is full (limit %d)", e.Size)
	}
	return fmt.Sprintf("request queue for group %s is full (limit %d)", e.GroupName, e.Size)
}

// RequestQueueTimeoutError indicates that a get request sat on a wait
// list longer than its dwell-time bound.
type RequestQueueTimeoutError struct {
	// GroupName is the group the request was waiting on; empty for the
	// pool-level wait list
	GroupName string
	// Limit is the configured dwell-time bound
	Limit time.Duration
}

// Error implements the error interface
func (e *RequestQueueTimeoutError) Error() string {
	if e.GroupName == "" {
		return fmt.Sprintf("request timed out in queue after %v", e.Limit)
	}
	return fmt.Sprintf("request for group %s timed out in queue after %v", e.GroupName, e.Limit)
}

// IsRequestQueueFull reports whether err is a queue-overflow failure
func IsRequestQueueFull(err error) bool {
	var e *RequestQueueFullError
	return errors.As(err, &e)
}

// IsRequestQueueTimeout reports whether err is a queue-dwell-time failure
func IsRequestQueueTimeout(err error) bool {
	var e *RequestQueueTimeoutError
	return errors.As(err, &e)
}

// IsSpawnFailed reports whether err is a spawning kit failure
func IsSpawnFailed(err error) bool {
	return spawningkit.IsSpawnError(err)
}
