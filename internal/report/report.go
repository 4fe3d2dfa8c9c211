// Package report renders the final measurement report. Three levels
// exist: BASIC prints the per-section summary table, DETAIL adds
// per-rank breakdowns, FULL adds per-thread breakdowns and the HWPC and
// power legends. An xlsx rendering of the same data is available for
// offline analysis.
package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"pmlib/internal/config"
	"pmlib/internal/watch"
)

// Options carries the report-wide facts printed in the header.
type Options struct {
	Level        config.ReportLevel
	Hostname     string
	ParallelMode string
	NumProcs     int
	NumThreads   int
	Chooser      config.HwpcChooser
	Unit         string
	SlotNames    []string
	PowerParts   []string
	BackendName  string
	EnvDesc      string
	// Notes are appended under the header, one line each (for example
	// sections force-stopped at report time).
	Notes []string
	// Now stamps the report; zero means wall clock at render time.
	Now time.Time
}

// maxLabelLen bounds the label column; longer labels are truncated with
// a trailing '+'.
const maxLabelLen = 24

// Print renders the report for the given sections in the given order.
// rootTime is the Root section's elapsed time, the denominator of the
// percentage column. Only rank 0 prints; other ranks return directly.
func Print(w io.Writer, sections []*watch.Watch, order []int, rootTime float64, rank int, opts Options) error {
	if rank != 0 {
		return nil
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	printHeader(w, opts, rootTime)
	printSections(w, sections, order, rootTime, opts)
	printTailer(w, sections, opts)
	if opts.Level == config.ReportDetail || opts.Level == config.ReportFull {
		printRankDetail(w, sections, order, opts)
	}
	if opts.Level == config.ReportFull {
		printThreadDetail(w, sections, order, opts)
		printLegend(w, opts)
	}
	return nil
}

// outputWidth returns the terminal width when the stream is a terminal,
// 0 (unbounded) otherwise. The section table folds its label column to
// fit narrow terminals.
func outputWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width < 40 {
		return 0
	}
	return width
}

// labelWidth picks the label column width for the section table.
func labelWidth(w io.Writer, sections []*watch.Watch) int {
	width := 10
	for _, sec := range sections {
		if n := len(sec.Label + sectionMarkers(sec)); n > width {
			width = n
		}
	}
	if width > maxLabelLen {
		width = maxLabelLen
	}
	if tw := outputWidth(w); tw > 0 && tw < 100 {
		// narrow terminal: give the numbers room first
		width = 10
	}
	return width
}
