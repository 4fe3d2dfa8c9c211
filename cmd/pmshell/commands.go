// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pmlib"
)

const (
	flagLabelName = "label"
	flagStateName = "state"
	flagOutName   = "output"
)

const defaultLabel = "Shell Interval"

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "start the shell timer and persist the running state",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "restore the persisted timer, stop it and print the report",
	RunE:  runStop,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "print where the persisted state lives",
	RunE:  runReport,
}

// timerFlags are shared by the start and stop commands.
func timerFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("timer", pflag.ContinueOnError)
	fs.String(flagLabelName, defaultLabel, "section label for the measured interval")
	fs.String(flagStateName, "", "state file path (default: derived from the job environment)")
	return fs
}

func init() {
	startCmd.Flags().AddFlagSet(timerFlags())
	stopCmd.Flags().AddFlagSet(timerFlags())
	stopCmd.Flags().StringP(flagOutName, "o", "", "write the report to a file instead of stdout (.xlsx for a workbook)")
}

func runStart(cmd *cobra.Command, args []string) error {
	label, _ := cmd.Flags().GetString(flagLabelName)
	statePath, _ := cmd.Flags().GetString(flagStateName)
	m, err := pmlib.Initialize(2)
	if err != nil {
		return fmt.Errorf("failed to initialize measurement: %v", err)
	}
	m.Start(label)
	if err := m.SaveState(statePath); err != nil {
		return fmt.Errorf("failed to persist timer state: %v", err)
	}
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	label, _ := cmd.Flags().GetString(flagLabelName)
	statePath, _ := cmd.Flags().GetString(flagStateName)
	outPath, _ := cmd.Flags().GetString(flagOutName)
	m, err := pmlib.Initialize(2)
	if err != nil {
		return fmt.Errorf("failed to initialize measurement: %v", err)
	}
	if err := m.LoadState(statePath); err != nil {
		return fmt.Errorf("failed to restore timer state (did you run '%s start'?): %v", appName, err)
	}
	m.Stop(label, 0, 1)
	if outPath != "" {
		if err := m.ReportFile(outPath); err != nil {
			return fmt.Errorf("failed to write report: %v", err)
		}
		return m.PostTrace()
	}
	if err := m.Report(os.Stdout); err != nil {
		return fmt.Errorf("failed to print report: %v", err)
	}
	return m.PostTrace()
}

func runReport(cmd *cobra.Command, args []string) error {
	fmt.Fprintf(os.Stdout, "state file: %s\n", pmlib.DefaultStatePath())
	return nil
}
