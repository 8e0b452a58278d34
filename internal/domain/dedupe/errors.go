package dedupe

import "errors"

// ErrEmptyID is returned when an event without an id is stored.
var ErrEmptyID = errors.New("event id is empty")
