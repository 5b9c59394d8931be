package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/BrianFigueroa001/livestream-website/internal/logger"
)

// HTTPSource reads frames from a remote MJPEG endpoint served as a
// multipart/x-mixed-replace HTTP response, the format IP cameras and
// relays like this one emit.
type HTTPSource struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	resp   *http.Response
	reader *multipart.Reader
	closed bool
}

// NewHTTPSource creates a source for the given MJPEG stream URL
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: http.DefaultClient,
	}
}

// Open connects to the upstream endpoint and prepares the multipart reader
func (s *HTTPSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resp != nil {
		return fmt.Errorf("source already open")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build stream request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("stream returned status %s", resp.Status)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		return fmt.Errorf("failed to parse stream content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		resp.Body.Close()
		return fmt.Errorf("stream is not multipart: %s", mediaType)
	}
	boundary, ok := params["boundary"]
	if !ok {
		resp.Body.Close()
		return fmt.Errorf("stream content type has no boundary")
	}

	s.resp = resp
	s.reader = multipart.NewReader(resp.Body, boundary)
	s.closed = false

	logger.WithComponent("source").Info().
		Str("url", s.url).
		Str("boundary", boundary).
		Msg("Connected to upstream stream")
	return nil
}

// ReadFrame reads and decodes the next JPEG part from the stream
func (s *HTTPSource) ReadFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	reader := s.reader
	closed := s.closed
	s.mu.Unlock()

	if closed || reader == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	part, err := reader.NextPart()
	if err != nil {
		if err == io.EOF {
			return nil, ErrClosed
		}
		// The request context cancels body reads mid-flight.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if s.isClosed() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("failed to read stream part: %w", err)
	}
	defer part.Close()

	img, _, err := image.Decode(part)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

// Close releases the upstream connection
func (s *HTTPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.resp != nil {
		err := s.resp.Body.Close()
		s.resp = nil
		s.reader = nil
		return err
	}
	return nil
}

func (s *HTTPSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
