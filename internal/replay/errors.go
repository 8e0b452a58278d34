package replay

import "errors"

// Sentinel kinds for replay failures.
var (
	ErrUnhealthy = errors.New("collector health check failed")
	ErrNoEvents  = errors.New("recording produced no events")
)
