package service

import "errors"

// ErrStopped is returned when a stopped service is restarted.
var ErrStopped = errors.New("collector service stopped")
