package admission

import "errors"

var (
	// ErrQueueOverflow rejects a request when the wait queue is at its
	// configured depth. Rejecting beats queueing unboundedly.
	ErrQueueOverflow = errors.New("admission queue full")

	// ErrQueueTimeout rejects a queued request that waited longer than
	// the configured queue timeout without being dispatched.
	ErrQueueTimeout = errors.New("admission queue wait timed out")

	// ErrProcessingTimeout marks a job whose processor did not finish
	// within the size-scaled deadline. The timeout is cooperative: the
	// processor's work is not interrupted, only its result is discarded.
	ErrProcessingTimeout = errors.New("processing timeout")
)
