package source

import (
	"context"
	"errors"
	"image"
)

// ErrClosed is returned by ReadFrame once the upstream feed has ended.
// It is a permanent condition; transient read errors are returned as-is.
var ErrClosed = errors.New("source closed")

// Source is an upstream video feed the capture loop pulls frames from.
// Implementations may block in ReadFrame for as long as the upstream
// takes to deliver the next frame.
type Source interface {
	// Open establishes the connection to the upstream feed. The context
	// bounds the connection lifetime: canceling it aborts any in-flight
	// read.
	Open(ctx context.Context) error

	// ReadFrame blocks until the next decoded frame is available.
	// Returns ErrClosed when the feed has ended for good.
	ReadFrame(ctx context.Context) (image.Image, error)

	// Close releases the upstream connection
	Close() error
}
