package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	demoAll     bool
	demoVerbose bool
	demoNoColor bool

	demoCmd = &cobra.Command{
		Use:   "demo [scenario]",
		Short: "Run flow scenarios",
		Long: `Run one flow scenario by name, or every scenario with --all.

Available scenarios:
  search    Debounced, distinct search with switchMap
  switch    Stale requests superseded by newer ones
  retry     Flaky step retried with exponential backoff
  poll      Job status polled until complete
  throttle  Burst of clicks throttled and leading-gated`,
		Args: cobra.MaximumNArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) != 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			var completions []string
			for _, sc := range allScenarios() {
				if strings.HasPrefix(sc.Name(), toComplete) {
					completions = append(completions, sc.Name())
				}
			}
			return completions, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), name)
		},
	}
)

func init() {
	demoCmd.Flags().BoolVar(&demoAll, "all", false, "Run all scenarios sequentially")
	demoCmd.Flags().BoolVarP(&demoVerbose, "verbose", "v", false, "Log flow internals at debug level")
	demoCmd.Flags().BoolVar(&demoNoColor, "no-color", false, "Disable colored output")
}

const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[37m"
)

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if demoVerbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05.000",
		NoColor:    demoNoColor,
	}).Level(level).With().Timestamp().Logger()
}

func runDemo(ctx context.Context, out io.Writer, name string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var scenarios []Scenario
	switch {
	case demoAll:
		scenarios = allScenarios()
	case name == "":
		return errors.New("scenario name required (see 'flowz list')")
	default:
		sc, ok := scenarioByName(name)
		if !ok {
			return fmt.Errorf("unknown scenario: %s", name)
		}
		scenarios = []Scenario{sc}
	}

	logger := newLogger()
	for _, sc := range scenarios {
		header(out, sc)
		start := time.Now()
		if err := sc.Run(ctx, out, logger.With().Str("scenario", sc.Name()).Logger()); err != nil {
			return fmt.Errorf("%s: %w", sc.Name(), err)
		}
		paint(out, colorGray, "finished in %s\n\n", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func header(out io.Writer, sc Scenario) {
	paint(out, colorCyan, "== %s ==\n", sc.Name())
	paint(out, colorGray, "%s\n\n", sc.Description())
}

func paint(out io.Writer, color, format string, args ...any) {
	if demoNoColor {
		fmt.Fprintf(out, format, args...)
		return
	}
	fmt.Fprint(out, color)
	fmt.Fprintf(out, format, args...)
	fmt.Fprint(out, colorReset)
}

func report(out io.Writer, label string, value any, ok bool, err error) {
	switch {
	case err != nil:
		fmt.Fprintf(out, "  %-10s error: %v\n", label, err)
	case !ok:
		fmt.Fprintf(out, "  %-10s (no value)\n", label)
	default:
		paint(out, colorGreen, "  %-10s %v\n", label, value)
	}
}
