package relay

import (
	"bytes"
	"context"
	"time"

	"github.com/BrianFigueroa001/livestream-website/internal/logger"
)

// Boundary is the multipart boundary token used on the streaming response
const Boundary = "frame"

const defaultPollInterval = 10 * time.Millisecond

var chunkHeader = []byte("--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n")

// Generator produces the multipart chunk sequence for one connected
// client. Each client gets its own Generator and drains it at its own
// pace; the only thing generators share is the frame slot, so a slow
// client cannot stall the capture loop or other clients.
type Generator struct {
	slot *FrameSlot
	enc  Encoder
	poll time.Duration
}

// NewGenerator creates a generator reading the given slot
func NewGenerator(slot *FrameSlot, enc Encoder) *Generator {
	return &Generator{
		slot: slot,
		enc:  enc,
		poll: defaultPollInterval,
	}
}

// Next produces one multipart chunk:
//
//	--frame\r\n
//	Content-Type: image/jpeg\r\n
//	\r\n
//	<JPEG bytes>\r\n
//
// It polls while the slot is empty and skips frames that fail to encode,
// so the only error it ever returns is the context's. The sequence has no
// natural end; it stops when the client's context is canceled.
func (g *Generator) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, ok := g.slot.Read()
		if !ok {
			// No frame published yet. Yield instead of spinning.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.poll):
			}
			continue
		}

		data, err := g.enc.Encode(frame)
		if err != nil {
			// A single bad frame must not drop the client; retry
			// from a fresh read.
			logger.WithComponent("stream").Debug().Err(err).Msg("Skipping frame that failed to encode")
			continue
		}

		buf := bytes.NewBuffer(make([]byte, 0, len(chunkHeader)+len(data)+2))
		buf.Write(chunkHeader)
		buf.Write(data)
		buf.WriteString("\r\n")
		return buf.Bytes(), nil
	}
}
