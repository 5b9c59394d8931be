package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BrianFigueroa001/livestream-website/internal/api"
	"github.com/BrianFigueroa001/livestream-website/internal/config"
	"github.com/BrianFigueroa001/livestream-website/internal/logger"
	"github.com/BrianFigueroa001/livestream-website/internal/relay"
	"github.com/BrianFigueroa001/livestream-website/internal/source"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stream relay server",
	Long: `Start the HTTP server and the background capture loop.

The capture loop pulls frames from the upstream camera and keeps the most
recent one; every connected browser is served that frame as a live MJPEG
stream at its own pace.`,
	Example: `  # Relay a camera feed on the default port (8000)
  livestream serve --stream-url http://camera.local:8081/video.mjpg

  # Custom port and config file
  livestream serve --port 9000 --config /path/to/config.yaml

  # Debug logging
  livestream serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Flag and environment overrides
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			configMgr.SetPort(port)
		}
	}
	if viper.IsSet("stream_url") {
		if url := viper.GetString("stream_url"); url != "" {
			configMgr.SetStreamURL(url)
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			configMgr.SetLogLevel(level)
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("serve")

	if cfg.StreamURL == "" {
		return fmt.Errorf("no upstream stream URL configured (set stream_url in %s or pass --stream-url)", configMgr.GetConfigPath())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One slot, one writer, any number of readers.
	slot := relay.NewFrameSlot()
	capture := relay.NewCapture(source.NewHTTPSource(cfg.StreamURL), slot, cfg.FrameWidth)

	captureDone := make(chan struct{})
	go func() {
		defer close(captureDone)
		capture.Run(ctx)
	}()

	server := api.NewServer(slot, capture, relay.NewJPEGEncoder(cfg.JPEGQuality))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Str("stream_url", cfg.StreamURL).
		Int("port", cfg.ServerPort).
		Msgf("Relay running, viewer at http://localhost:%d/", cfg.ServerPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-serverErr:
		if err != nil {
			cancel()
			<-captureDone
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Stop the capture loop first so the upstream connection is released,
	// then drain the HTTP side.
	cancel()
	<-captureDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
