package worker

import "errors"

// Fault kinds raised while processing a task. The run loop treats every
// one of them as a task failure; they are kept apart for logs.
var (
	ErrStoreUnavailable = errors.New("task store unavailable")
	ErrNotClaimed       = errors.New("task not claimed")
	ErrMetadataNotFound = errors.New("metadata not found")
	ErrBlobNotFound     = errors.New("artifact not found")
	ErrBlobFetch        = errors.New("artifact fetch failed")
	ErrDecode           = errors.New("artifact decode failed")
	ErrInference        = errors.New("inference failed")
	ErrOutputWrite      = errors.New("output write failed")
	ErrCounter          = errors.New("job counter update failed")
)
