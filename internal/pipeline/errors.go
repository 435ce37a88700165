package pipeline

import "errors"

// ErrClosed is returned by Pop once the queue is closed and drained.
var ErrClosed = errors.New("pipeline: queue closed")
