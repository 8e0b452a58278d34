package transcript

import "errors"

var (
	// ErrFileNotFound is reported when the transcript path does not exist.
	ErrFileNotFound = errors.New("transcript file does not exist")
	// ErrRead wraps I/O failures while scanning a transcript.
	ErrRead = errors.New("read transcript")
)
