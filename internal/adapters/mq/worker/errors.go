package worker

import "errors"

// ErrProcessorPanic wraps a recovered processor panic.
var ErrProcessorPanic = errors.New("processor panicked")
