package worker

import "errors"

var (
	// ErrNilProcessor is raised when NewPool is given a nil processor.
	ErrNilProcessor = errors.New("worker pool requires a processor function")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("worker pool already started")
	// ErrPoolStopped is returned when submitting to a stopped pool.
	ErrPoolStopped = errors.New("worker pool stopped")
	// ErrQueueFull is returned by Submit when the queue is at capacity.
	ErrQueueFull = errors.New("worker pool queue full")
)
