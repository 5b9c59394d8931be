package relay

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"
)

type flakyEncoder struct {
	mu    sync.Mutex
	fails int
	calls int
	real  JPEGEncoder
}

func (e *flakyEncoder) Encode(frame image.Image) ([]byte, error) {
	e.mu.Lock()
	e.calls++
	fail := e.calls <= e.fails
	e.mu.Unlock()
	if fail {
		return nil, errors.New("corrupt frame")
	}
	return e.real.Encode(frame)
}

func (e *flakyEncoder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// decodeChunk strips the multipart framing from one chunk and decodes
// the JPEG body.
func decodeChunk(t *testing.T, chunk []byte) image.Image {
	t.Helper()

	if !bytes.HasPrefix(chunk, chunkHeader) {
		t.Fatalf("chunk missing multipart header, got %q", chunk[:min(len(chunk), 48)])
	}
	if !bytes.HasSuffix(chunk, []byte("\r\n")) {
		t.Fatal("chunk missing trailing delimiter")
	}

	body := chunk[len(chunkHeader) : len(chunk)-2]
	img, err := jpeg.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("chunk body is not a valid JPEG: %v", err)
	}
	return img
}

// JPEG is lossy; compare the dominant channel with some slack.
func assertSolidColor(t *testing.T, img image.Image, want color.RGBA) {
	t.Helper()

	b := img.Bounds()
	r, g, bl, _ := img.At(b.Dx()/2, b.Dy()/2).RGBA()
	got := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8)}

	near := func(a, b uint8) bool {
		d := int(a) - int(b)
		return d > -40 && d < 40
	}
	if !near(got.R, want.R) || !near(got.G, want.G) || !near(got.B, want.B) {
		t.Fatalf("unexpected frame color: got %+v, want approximately %+v", got, want)
	}
}

func TestGeneratorEmptySlotProducesNoChunk(t *testing.T) {
	gen := NewGenerator(NewFrameSlot(), NewJPEGEncoder(90))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	chunk, err := gen.Next(ctx)
	if err == nil {
		t.Fatalf("expected context error from an empty slot, got chunk of %d bytes", len(chunk))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGeneratorChunkRoundTrip(t *testing.T) {
	slot := NewFrameSlot()
	slot.Publish(solidFrame(color.RGBA{R: 255, A: 255}, 400, 300))

	gen := NewGenerator(slot, NewJPEGEncoder(90))
	chunk, err := gen.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	img := decodeChunk(t, chunk)
	b := img.Bounds()
	if b.Dx() != 400 || b.Dy() != 300 {
		t.Fatalf("unexpected decoded size: %dx%d", b.Dx(), b.Dy())
	}
	assertSolidColor(t, img, color.RGBA{R: 255})
}

func TestGeneratorFollowsSlotUpdates(t *testing.T) {
	slot := NewFrameSlot()
	gen := NewGenerator(slot, NewJPEGEncoder(90))

	slot.Publish(solidFrame(color.RGBA{R: 255, A: 255}, 400, 300))
	chunk, err := gen.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	assertSolidColor(t, decodeChunk(t, chunk), color.RGBA{R: 255})

	slot.Publish(solidFrame(color.RGBA{B: 255, A: 255}, 400, 300))
	chunk, err = gen.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	assertSolidColor(t, decodeChunk(t, chunk), color.RGBA{B: 255})

	// A generator created after the second publish never sees the first
	// frame.
	late := NewGenerator(slot, NewJPEGEncoder(90))
	chunk, err = late.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	assertSolidColor(t, decodeChunk(t, chunk), color.RGBA{B: 255})
}

func TestGeneratorRetriesAfterEncodeFailure(t *testing.T) {
	slot := NewFrameSlot()
	slot.Publish(solidFrame(color.RGBA{G: 255, A: 255}, 400, 300))

	enc := &flakyEncoder{fails: 1, real: JPEGEncoder{Quality: 90}}
	gen := NewGenerator(slot, enc)

	chunk, err := gen.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	assertSolidColor(t, decodeChunk(t, chunk), color.RGBA{G: 255})

	if n := enc.callCount(); n != 2 {
		t.Fatalf("expected 2 encode attempts (1 failure, 1 retry), got %d", n)
	}
}

func TestTwoGeneratorsBothMakeProgress(t *testing.T) {
	slot := NewFrameSlot()
	slot.Publish(solidFrame(color.RGBA{R: 255, A: 255}, 400, 300))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	counts := make([]int, 2)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gen := NewGenerator(slot, NewJPEGEncoder(90))
			for n := 0; n < 5; n++ {
				if _, err := gen.Next(ctx); err != nil {
					return
				}
				counts[i]++
			}
		}(i)
	}
	wg.Wait()

	for i, n := range counts {
		if n == 0 {
			t.Fatalf("generator %d produced no chunks", i)
		}
	}
}
