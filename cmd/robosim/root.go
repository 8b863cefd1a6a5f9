package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "robosim",
	Short: "Robot fleet simulation toolkit",
	Long:  "Robosim simulates a robot fleet and distributes its telemetry over MQTT, WebSocket, and GreptimeDB.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
}
