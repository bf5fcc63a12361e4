// Package memory provides the in-process queues of the harvest pipeline: an
// unbounded task queue with completion tracking and a bounded result queue
// terminated by a sentinel.
package memory

import "errors"

var (
	// ErrEmpty is returned by TaskQueue.Pull when no item arrived within the wait
	// or the queue is sealed and drained.
	ErrEmpty = errors.New("task queue empty")
	// ErrSealed is returned by TaskQueue.Push once the queue no longer accepts work.
	ErrSealed = errors.New("task queue sealed")
	// ErrTooManyDone is returned when MarkDone is called more times than items were pushed.
	ErrTooManyDone = errors.New("mark done called more times than items were pushed")
	// ErrClosed is returned by ResultQueue.Push after the sentinel was pushed.
	ErrClosed = errors.New("result queue closed")
	// ErrEndOfStream is returned by ResultQueue.Pull once the sentinel is observed.
	ErrEndOfStream = errors.New("end of result stream")
	// ErrNilRecord is returned when pushing a nil record.
	ErrNilRecord = errors.New("nil record")
)
