package pool

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Callback is a deferred closure accumulated while the pool lock is held
// and executed after release. Callbacks must never be invoked under the
// lock; running one there is how re-entrant deadlocks are born.
type Callback func()

// GetCallback delivers the outcome of a get request: exactly one of
// session or err is set, and it is invoked exactly once.
type GetCallback func(session *Session, err error)

// runAllActions executes deferred callbacks in insertion order
func runAllActions(actions []Callback) {
	for _, action := range actions {
		action()
	}
}

// getWaiter is one pending get request on a wait list, either a group's
// or the pool's.
type getWaiter struct {
	options  Options
	callback GetCallback
	queuedAt time.Time
	// timer enforces MaxRequestQueueTime; nil when unbounded
	timer clockwork.Timer
}

// satisfy stops the dwell timer and defers the callback
func (w *getWaiter) satisfy(session *Session, err error, actions *[]Callback) {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	cb := w.callback
	*actions = append(*actions, func() {
		cb(session, err)
	})
}

// flushWaiters fails every entry of a wait list with err, in FIFO order
func flushWaiters(waiters []*getWaiter, err error, actions *[]Callback) {
	for _, w := range waiters {
		w.satisfy(nil, err, actions)
	}
}

// removeWaiter deletes w from the list by identity, preserving order
func removeWaiter(waiters []*getWaiter, w *getWaiter) ([]*getWaiter, bool) {
	for i, cand := range waiters {
		if cand == w {
			return append(waiters[:i], waiters[i+1:]...), true
		}
	}
	return waiters, false
}
