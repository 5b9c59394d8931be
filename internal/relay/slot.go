package relay

import (
	"image"
	"sync"
	"time"
)

// FrameSlot holds the most recently captured frame for the stream relay.
// One capture loop publishes into it; any number of per-client generators
// read from it. Frames are never queued: a publish replaces whatever was
// there before, so slow readers skip frames rather than lag behind.
//
// Published frames must not be mutated afterwards; readers receive the
// shared image rather than a pixel copy.
type FrameSlot struct {
	mu          sync.RWMutex
	frame       image.Image
	lastPublish time.Time
	published   uint64
}

// NewFrameSlot creates an empty frame slot
func NewFrameSlot() *FrameSlot {
	return &FrameSlot{}
}

// Publish replaces the held frame with the given one
func (s *FrameSlot) Publish(frame image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frame = frame
	s.lastPublish = time.Now()
	s.published++
}

// Read returns the current frame, or false if none has been published yet.
// It never waits for a new frame.
func (s *FrameSlot) Read() (image.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.frame == nil {
		return nil, false
	}
	return s.frame, true
}

// LastPublish returns when the slot was last written, zero if never.
// A consumer that needs liveness detection can compare this against the
// wall clock; the relay itself never expires the frame.
func (s *FrameSlot) LastPublish() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPublish
}

// Published returns the total number of frames published so far
func (s *FrameSlot) Published() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published
}
