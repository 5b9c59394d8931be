package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"

	"github.com/BrianFigueroa001/livestream-website/internal/logger"
	"github.com/BrianFigueroa001/livestream-website/internal/relay"
)

const snapshotTTL = 500 * time.Millisecond

// Server represents the HTTP streaming server
type Server struct {
	router   *mux.Router
	slot     *relay.FrameSlot
	capture  *relay.Capture
	encoder  relay.Encoder
	upgrader websocket.Upgrader

	// Cache of the last encoded snapshot so bursts of /snapshot requests
	// don't re-encode the same frame.
	snapshots *cache.Cache

	clients atomic.Int64

	httpServer *http.Server
}

// NewServer creates a new streaming server around the given frame slot.
// capture may be nil when no capture loop exists (tests).
func NewServer(slot *relay.FrameSlot, capture *relay.Capture, encoder relay.Encoder) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		slot:    slot,
		capture: capture,
		encoder: encoder,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		snapshots: cache.New(snapshotTTL, time.Minute),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/live_video_feed", s.handleStream).Methods("GET")
	s.router.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/stats/ws", s.handleStatsStream)
}

// Handler returns the root handler, useful for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	logger.WithComponent("api").Info().Str("addr", addr).Msg("Starting server")

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline. Open stream connections are cut loose once the
// deadline passes.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleStream serves the live MJPEG feed. Each connection gets its own
// generator and drains it at its own pace until the client disconnects
// or the server shuts down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("stream")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+relay.Boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Connection", "close")

	total := s.clients.Add(1)
	log.Info().Str("remote", r.RemoteAddr).Int64("clients", total).Msg("Client connected")
	defer func() {
		remaining := s.clients.Add(-1)
		log.Info().Str("remote", r.RemoteAddr).Int64("clients", remaining).Msg("Client disconnected")
	}()

	flusher, _ := w.(http.Flusher)
	gen := relay.NewGenerator(s.slot, s.encoder)

	for {
		chunk, err := gen.Next(r.Context())
		if err != nil {
			// Client gone or server stopping.
			return
		}
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// handleSnapshot serves the current frame as a single JPEG
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	data, ok := s.cachedSnapshot()
	if !ok {
		frame, ok := s.slot.Read()
		if !ok {
			http.Error(w, "no frame available yet", http.StatusServiceUnavailable)
			return
		}

		var err error
		data, err = s.encoder.Encode(frame)
		if err != nil {
			http.Error(w, "failed to encode frame", http.StatusInternalServerError)
			return
		}
		s.snapshots.SetDefault("current", data)
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

func (s *Server) cachedSnapshot() ([]byte, bool) {
	v, ok := s.snapshots.Get("current")
	if !ok {
		return nil, false
	}
	data, ok := v.([]byte)
	return data, ok
}

// handleStats reports relay liveness counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.statsSnapshot())
}

// handleStatsStream pushes the stats payload over a websocket once a second
func (s *Server) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(s.statsSnapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.statsSnapshot()); err != nil {
				return
			}
		}
	}
}

func (s *Server) statsSnapshot() map[string]interface{} {
	alive := false
	if s.capture != nil {
		alive = s.capture.Alive()
	}

	stats := map[string]interface{}{
		"frames_captured": s.slot.Published(),
		"source_alive":    alive,
		"clients":         s.clients.Load(),
	}
	if t := s.slot.LastPublish(); !t.IsZero() {
		stats["last_publish"] = t
	}
	return stats
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// handleIndex serves the viewer page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Live Stream</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            background: #000;
            overflow: hidden;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
        }
        img {
            width: 100vw;
            height: 100vh;
            object-fit: contain;
            display: block;
            background: #000;
        }
    </style>
</head>
<body>
    <img src="/live_video_feed" alt="Live Stream">
</body>
</html>`
	w.Write([]byte(html))
}
