package relay

import (
	"image"
	"image/color"
	"sync"
	"testing"
)

func solidFrame(c color.RGBA, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestFrameSlotEmptyRead(t *testing.T) {
	slot := NewFrameSlot()

	if _, ok := slot.Read(); ok {
		t.Fatal("expected empty slot before any publish")
	}
	if got := slot.Published(); got != 0 {
		t.Fatalf("unexpected publish count: %d", got)
	}
	if !slot.LastPublish().IsZero() {
		t.Fatal("expected zero last-publish time before any publish")
	}
}

func TestFrameSlotLastWriteWins(t *testing.T) {
	slot := NewFrameSlot()

	frames := []*image.RGBA{
		solidFrame(color.RGBA{R: 255, A: 255}, 4, 4),
		solidFrame(color.RGBA{G: 255, A: 255}, 4, 4),
		solidFrame(color.RGBA{B: 255, A: 255}, 4, 4),
	}
	for _, f := range frames {
		slot.Publish(f)
	}

	got, ok := slot.Read()
	if !ok {
		t.Fatal("expected a frame after publishing")
	}
	if got != frames[len(frames)-1] {
		t.Fatal("read did not return the most recently published frame")
	}
	if n := slot.Published(); n != uint64(len(frames)) {
		t.Fatalf("unexpected publish count: %d", n)
	}
	if slot.LastPublish().IsZero() {
		t.Fatal("expected non-zero last-publish time")
	}
}

// Readers racing a writer must only ever observe complete frames: every
// read is either empty or one of the published solid-color frames, never
// a mix.
func TestFrameSlotConcurrentReaders(t *testing.T) {
	slot := NewFrameSlot()

	colors := []color.RGBA{
		{R: 255, A: 255},
		{G: 255, A: 255},
		{B: 255, A: 255},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 300; i++ {
			slot.Publish(solidFrame(colors[i%len(colors)], 8, 8))
		}
	}()

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				frame, ok := slot.Read()
				if !ok {
					continue
				}
				img := frame.(*image.RGBA)
				first := img.RGBAAt(0, 0)
				for _, pt := range []image.Point{{X: 7, Y: 0}, {X: 0, Y: 7}, {X: 7, Y: 7}, {X: 3, Y: 4}} {
					if img.RGBAAt(pt.X, pt.Y) != first {
						t.Errorf("observed torn frame: pixel at %v differs from origin", pt)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	<-done
}
