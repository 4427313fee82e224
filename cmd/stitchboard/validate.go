package main

import (
	"fmt"

	"github.com/jpalmerr/stitchboard"
	"github.com/jpalmerr/stitchboard/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a Stitchboard configuration file without starting the server.

This command parses the YAML, expands environment variables, expands grids
and checks that the resulting sources form a valid board: unique names and
no two sources drawing into the same widget. It's useful for CI/CD pipelines
or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  stitchboard validate -c config.yaml
  stitchboard validate --config /etc/stitchboard/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sources, err := config.BuildSources(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	opts := append(config.BoardOptions(cfg), stitchboard.WithSources(sources...))
	if _, err := stitchboard.New(opts...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Sources)
	fromGrids := len(sources) - direct

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:             %d\n", cfg.Port)
	fmt.Fprintf(out, "  Refresh interval: %s\n", cfg.RefreshInterval.Duration())
	fmt.Fprintf(out, "  Sources:          %d direct + %d from grids = %d total\n",
		direct, fromGrids, len(sources))

	for _, src := range sources {
		fmt.Fprintf(out, "    - %s (%s, retry %dx every %s)\n",
			src.Name(), src.Kind(), src.RetryLimit(), src.Backoff())
	}

	return nil
}
