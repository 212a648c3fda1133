// Package main provides the axon CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	pretty  = true
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "axon",
		Short: "Axon - task orchestration for autonomous coding agents",
		Long: `Axon routes free-text tasks to capable agents, decomposes them into
dependency-ordered plans, and executes each step behind a policy gate
and a resilience layer.

Use 'axon submit' to queue work, 'axon serve' to run the worker pool.`,
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "colorized terminal output")
	rootCmd.Version = version

	rootCmd.AddCommand(
		newSubmitCmd(),
		newStatusCmd(),
		newCancelCmd(),
		newAgentsCmd(),
		newQueueCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
