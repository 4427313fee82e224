package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/jpalmerr/stitchboard"
	"github.com/jpalmerr/stitchboard/widget"
	"github.com/spf13/cobra"
)

// newFetchCmd builds the fetch command. It is a constructor so tests get
// fresh flag state.
func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch one payload from the stitcher, retrying while it is not ready",
		Long: `Fetch a single stitcher payload and print its widgets as JSON.

A 404 means the stitcher is still computing the payload: the request is
retried after --backoff, at most --retry-limit times. Metrics payloads
retry 5 times by default, data-source payloads do not retry.

Example:
  stitchboard fetch http://localhost:9000/api/stitches/latest/metrics
  stitchboard fetch http://localhost:9000/api/datasources --kind datasources
  stitchboard fetch http://localhost:9000/api/stitches/latest/metrics --raw --retry-limit 10 --backoff 1s`,
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}

	cmd.Flags().String("kind", stitchboard.KindMetrics, "payload kind: metrics or datasources")
	cmd.Flags().Int("retry-limit", 0, "retries after a 404 (default depends on --kind)")
	cmd.Flags().Duration("backoff", 0, "delay before every retry (default 2s)")
	cmd.Flags().Duration("timeout", 0, "per-request timeout (default 10s)")
	cmd.Flags().String("widget-id", "", "donut container id, or prefix for metrics widget ids")
	cmd.Flags().StringToStringP("header", "H", nil, "request header as key=value (repeatable)")
	cmd.Flags().Bool("raw", false, "print the payload instead of widgets")
	cmd.Flags().BoolP("verbose", "v", false, "log every retry")

	return cmd
}

func init() {
	rootCmd.AddCommand(newFetchCmd())
}

func runFetch(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	level := slog.LevelWarn
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(newLogger(level))

	kind, _ := flags.GetString("kind")
	raw, _ := flags.GetBool("raw")

	opts, err := fetchOptions(cmd)
	if err != nil {
		return err
	}

	// NewSource validates the kind, the URL and every option in one place.
	src, err := stitchboard.NewSource("fetch", kind, args[0], opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var payload json.RawMessage
	p, err := stitchboard.Fetch(ctx, src.URL(),
		func(body json.RawMessage) { payload = body },
		nil,
		opts...,
	)
	if err != nil {
		return err
	}
	if err := p.Wait(); err != nil {
		if errors.Is(err, stitchboard.ErrRetriesExhausted) {
			return fmt.Errorf("%s is still not ready after %d retries: %w", src.URL(), src.RetryLimit(), err)
		}
		return err
	}

	if raw {
		return writeJSON(cmd, payload)
	}

	widgets, err := widget.Decode(src.Kind(), src.WidgetID(), payload)
	if err != nil {
		return fmt.Errorf("%w: %w", stitchboard.ErrInvalidPayload, err)
	}
	return writeJSON(cmd, widgets)
}

// fetchOptions turns the flags that were set into source options. Unset
// flags keep the defaults of the kind.
func fetchOptions(cmd *cobra.Command) ([]stitchboard.SourceOption, error) {
	flags := cmd.Flags()
	var opts []stitchboard.SourceOption

	kind, _ := flags.GetString("kind")
	if flags.Changed("retry-limit") {
		limit, _ := flags.GetInt("retry-limit")
		opts = append(opts, stitchboard.WithRetryLimit(limit))
	} else if kind == stitchboard.KindDataSources {
		// Fetch applies the metrics policy unless told otherwise
		opts = append(opts, stitchboard.WithRetryLimit(0))
	}
	if flags.Changed("backoff") {
		backoff, _ := flags.GetDuration("backoff")
		opts = append(opts, stitchboard.WithBackoff(backoff))
	}
	if flags.Changed("timeout") {
		timeout, _ := flags.GetDuration("timeout")
		opts = append(opts, stitchboard.WithTimeout(timeout))
	}
	if flags.Changed("widget-id") {
		id, _ := flags.GetString("widget-id")
		opts = append(opts, stitchboard.WithWidgetID(id))
	}

	headers, err := flags.GetStringToString("header")
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		opts = append(opts, stitchboard.WithHeaders(k, v))
	}

	return opts, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
