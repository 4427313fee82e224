// Package main is the entry point for the stitchboard CLI.
//
// Stitchboard can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	stitchboard serve -c config.yaml      # Start the dashboard
//	stitchboard validate -c config.yaml   # Validate configuration
//	stitchboard fetch <url> --kind=metrics # Fetch one payload with retry
//	stitchboard version                   # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "stitchboard",
	Short: "A live metrics dashboard for a record stitcher",
	Long: `Stitchboard is a live metrics dashboard for a record-stitching service.

It polls the stitcher's metrics summary and data-source listing, retrying
while the summary is still being computed, and shows counters, distribution
bars and a data-source donut in a web UI with Server-Sent Events for live
updates.

Quick start:
  1. Create a config file (stitchboard.yaml)
  2. Run: stitchboard serve -c stitchboard.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  refresh_interval: 30s
  sources:
    - name: Metrics
      kind: metrics
      url: http://localhost:9000/api/stitches/latest/metrics
    - name: Data Sources
      kind: datasources
      url: http://localhost:9000/api/datasources`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already prints the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates a JSON logger on stderr for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this stitchboard binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "stitchboard %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
