package engine

import (
	"errors"
)

// Strategy errors
var (
	// ErrNoBatchMethod means the adapter does not implement the batch
	// method its declared kind needs.
	ErrNoBatchMethod = errors.New("adapter lacks the batch method for its kind")
	// ErrBadSpan means a span is empty or reversed.
	ErrBadSpan = errors.New("invalid span")
)
