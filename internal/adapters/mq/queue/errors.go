package queue

import "errors"

// Sentinel kinds for enqueue failures.
var (
	ErrQueueFull = errors.New("queue full")
	ErrClosed    = errors.New("queue closed")
)
