package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "flowz",
		Short: "Async event flow demos",
		Long: `flowz is a CLI tool for exploring async event flows through
small runnable scenarios.

Each scenario wires a flow from debounce, switchMap, retry, poll and
throttle operators and narrates what happens to every event.`,
		Version: version,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available scenarios",
	Long:  "Display a list of all available flow scenarios with descriptions.",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "Available scenarios:")
		fmt.Fprintln(cmd.OutOrStdout())
		for _, sc := range allScenarios() {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %s\n", sc.Name(), sc.Description())
		}
	},
}
