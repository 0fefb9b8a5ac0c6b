package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/espsense/csicollect/internal/collector"
	"github.com/espsense/csicollect/internal/config"
	"github.com/espsense/csicollect/internal/log"
	"github.com/espsense/csicollect/internal/metrics"
	"github.com/espsense/csicollect/internal/queue"
	"github.com/espsense/csicollect/internal/receiver"
)

var (
	configPath   string
	listenPort   int
	outputDir    string
	drainTimeout time.Duration
	pidFile      string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start collecting CSI frames",
	Long: `
Start the CSI data collector. The collector binds a UDP socket, writes
every valid frame to a timestamped CSV file and prints a live status
line until interrupted.

Examples:
  csicollect start                          # defaults: port 9999, ./csi_data
  csicollect start -c config.yml            # use a config file
  csicollect start -p 8888 -o /data/csi     # override port and output dir
  csicollect start -t 1m                    # allow up to 1m for the drain
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd.OutOrStdout())
	},
}

func init() {
	startCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	startCmd.Flags().IntVarP(&listenPort, "port", "p", 0, "UDP port to listen on (overrides config)")
	startCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Output directory (overrides config)")
	startCmd.Flags().DurationVarP(&drainTimeout, "drain-timeout", "t", 30*time.Second, "Bound on the shutdown queue drain")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "/tmp/csicollect.pid", "PID file path")
	rootCmd.AddCommand(startCmd)
}

// loadStartConfig loads the configuration and applies any command line
// overrides on top of it.
func loadStartConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if listenPort != 0 {
		cfg.Listen.Port = listenPort
	}
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	return cfg, nil
}

func runStart(out io.Writer) error {
	cfg, err := loadStartConfig()
	if err != nil {
		return err
	}

	log.Init(cfg.Log)

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", cfg.Output.Dir, err)
	}
	outputPath := cfg.Output.Path(time.Now())

	printBanner(out, cfg, outputPath)

	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidFile)

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	col := collector.New(collector.Config{
		Listen: receiver.Config{
			Address:     cfg.Listen.Address,
			Port:        cfg.Listen.Port,
			ReadTimeout: cfg.Listen.ReadTimeout,
		},
		OutputPath:    outputPath,
		QueueCapacity: cfg.Queue.Capacity,
		QueuePolicy:   queue.Policy(cfg.Queue.Policy),
		DrainTimeout:  drainTimeout,
		StatusOut:     out,
	})

	return col.Run(ctx)
}

func printBanner(out io.Writer, cfg *config.Config, outputPath string) {
	fmt.Fprintln(out, "ESP32 CSI Data Collector")
	fmt.Fprintln(out, "========================================")
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  UDP Port:    %d\n", cfg.Listen.Port)
	fmt.Fprintf(out, "  Output File: %s\n", outputPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Setup Instructions:")
	fmt.Fprintln(out, "1. Connect your computer to the ESP32's WiFi AP (ESP32-AP)")
	fmt.Fprintln(out, "2. The ESP32 will discover this host and start sending data")
	fmt.Fprintln(out, "3. Press Ctrl+C to stop collection")
	fmt.Fprintln(out)
}
