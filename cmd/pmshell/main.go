// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// pmshell brackets shell commands with the measurement engine: "pmshell
// start" begins an interval and persists the running state, a later
// "pmshell stop" in the same shell restores it, stops the interval and
// prints the report.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var gVersion = "9.9.9" // overwritten by ldflags in Makefile

const appName = "pmshell"

var rootCmd = &cobra.Command{
	Use:          appName,
	Short:        appName,
	Long:         fmt.Sprintf("%s measures the wall-clock time and counter activity of shell command sequences.", appName),
	Version:      gVersion,
	SilenceUsage: true,
	Example: fmt.Sprintf(`  Measure a command sequence:
  $ %s start
  $ make -j && ./simulate input.dat
  $ %s stop`, appName, appName),
}

func init() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
