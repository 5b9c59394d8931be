package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "livestream",
		Short: "livestream - relay a remote MJPEG camera feed to the web",
		Long: `livestream pulls a continuous MJPEG feed from a remote camera,
keeps the most recent frame, and re-serves it as a live MJPEG stream to
any number of browsers at once.

Features:
  • Single background capture loop, any number of viewers
  • Fixed-width frame normalization to bound bandwidth
  • Viewer page with the live stream embedded
  • Snapshot and stats endpoints`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/livestream/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8000)")
	rootCmd.PersistentFlags().String("stream-url", "", "upstream MJPEG stream URL")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("stream_url", rootCmd.PersistentFlags().Lookup("stream-url"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	// The PORT environment variable overrides the configured port
	viper.BindEnv("server_port", "PORT")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
