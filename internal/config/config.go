package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/BrianFigueroa001/livestream-website/internal/logger"
)

// Config represents the application configuration
type Config struct {
	// StreamURL is the upstream MJPEG endpoint the capture loop pulls from
	StreamURL string `json:"stream_url" yaml:"stream_url"`

	// ServerPort is the port the HTTP server listens on
	ServerPort int `json:"server_port" yaml:"server_port"`

	// FrameWidth is the fixed width frames are resized to before publishing.
	// Height follows from the source aspect ratio.
	FrameWidth int `json:"frame_width" yaml:"frame_width"`

	// JPEGQuality is the encoder quality for outgoing frames (1-100)
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality"`

	// FrameCount is the number of frames used to build a motion-detection
	// background model. Reserved: no active component consumes it.
	FrameCount int `json:"frame_count" yaml:"frame_count"`

	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "livestream")
	defaultConfigPath := filepath.Join(configDir, "config.yaml")

	actualConfigPath := defaultConfigPath
	if configFile != "" {
		actualConfigPath = configFile
	} else if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("stream_url", m.config.StreamURL).
		Int("port", m.config.ServerPort).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		ServerPort:  8000,
		FrameWidth:  400,
		JPEGQuality: 90,
		FrameCount:  3,
		LogLevel:    "info",
	}
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// GetConfigPath returns the path of the loaded config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// SetPort overrides the server port
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.ServerPort = port
}

// SetLogLevel overrides the log level
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}

// SetStreamURL overrides the upstream stream URL
func (m *Manager) SetStreamURL(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.StreamURL = url
}
