// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "csicollect",
	Short: "csicollect - ESP32 CSI data collector",
	Long: `csicollect receives Channel State Information (CSI) measurement frames
from an ESP32 Wi-Fi sensing device over UDP and persists every valid
frame to an append-only CSV file.

Features:
  - Lossless ingestion: queued frames are always flushed on shutdown
  - Durable output: every row is flushed to the file as it is written
  - Live status: total packets, packets per second and queue depth at 1 Hz
  - Optional Prometheus metrics endpoint`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}
