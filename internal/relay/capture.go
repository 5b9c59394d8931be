package relay

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/BrianFigueroa001/livestream-website/internal/logger"
	"github.com/BrianFigueroa001/livestream-website/internal/source"
)

const defaultRetryDelay = time.Second

// Capture continuously pulls frames from an upstream source, resizes them
// to a fixed width, and publishes them into a FrameSlot. It is the single
// writer of the slot.
type Capture struct {
	source     source.Source
	slot       *FrameSlot
	width      int
	retryDelay time.Duration

	mu      sync.RWMutex
	running bool
}

// NewCapture creates a capture loop for the given source and slot.
// Frames are resized to width pixels, preserving aspect ratio; width <= 0
// disables resizing.
func NewCapture(src source.Source, slot *FrameSlot, width int) *Capture {
	return &Capture{
		source:     src,
		slot:       slot,
		width:      width,
		retryDelay: defaultRetryDelay,
	}
}

// Run ingests frames until the context is canceled or the source ends for
// good. It blocks; callers run it on its own goroutine. A transient read
// error retries after a short delay. When the source ends, the slot keeps
// its last frame so connected clients serve a frozen image instead of
// dropping.
func (c *Capture) Run(ctx context.Context) {
	log := logger.WithComponent("capture")

	c.setRunning(true)
	defer c.setRunning(false)
	defer c.source.Close()

	if !c.openWithRetry(ctx) {
		return
	}

	for {
		if ctx.Err() != nil {
			log.Info().Msg("Capture loop stopped")
			return
		}

		frame, err := c.source.ReadFrame(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				log.Info().Msg("Capture loop stopped")
				return
			case errors.Is(err, source.ErrClosed):
				log.Warn().
					Uint64("frames", c.slot.Published()).
					Msg("Upstream feed ended, serving last frame")
				return
			default:
				log.Warn().Err(err).Msg("Transient capture failure, retrying")
				if !c.sleep(ctx, c.retryDelay) {
					return
				}
				continue
			}
		}

		c.slot.Publish(resizeToWidth(frame, c.width))
	}
}

// Alive reports whether the capture loop is still ingesting frames
func (c *Capture) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Capture) setRunning(v bool) {
	c.mu.Lock()
	c.running = v
	c.mu.Unlock()
}

// openWithRetry keeps trying to connect until it succeeds or the context
// is canceled. A camera that is down at startup is a degraded start, not
// a fatal one: clients just see no image until the feed comes up.
func (c *Capture) openWithRetry(ctx context.Context) bool {
	log := logger.WithComponent("capture")
	for {
		err := c.source.Open(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		log.Warn().Err(err).Msg("Failed to open upstream feed, retrying")
		if !c.sleep(ctx, c.retryDelay) {
			return false
		}
	}
}

func (c *Capture) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// resizeToWidth scales the frame down (or up) to the given width,
// preserving aspect ratio. Frames already at the target width pass
// through untouched.
func resizeToWidth(frame image.Image, width int) image.Image {
	b := frame.Bounds()
	if width <= 0 || b.Dx() <= 0 || b.Dx() == width {
		return frame
	}

	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, b, draw.Src, nil)
	return dst
}
