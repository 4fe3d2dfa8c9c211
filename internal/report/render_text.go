package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"pmlib/internal/util"
	"pmlib/internal/watch"
)

func printHeader(w io.Writer, opts Options, rootTime float64) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "# PMlib report ---------------------------------------------------------------- #\n")
	fmt.Fprintf(w, "\tHost            : %s\n", opts.Hostname)
	fmt.Fprintf(w, "\tDate            : %s\n", opts.Now.Format("2006/01/02 15:04:05"))
	fmt.Fprintf(w, "\tParallel mode   : %s (%d processes x %d threads)\n",
		opts.ParallelMode, opts.NumProcs, opts.NumThreads)
	fmt.Fprintf(w, "\tCounter backend : %s\n", opts.BackendName)
	fmt.Fprintf(w, "\tActive settings : %s\n", opts.EnvDesc)
	fmt.Fprintf(w, "\tTotal time      : %.6f [s]\n", rootTime)
	for _, note := range opts.Notes {
		fmt.Fprintf(w, "\tNote            : %s\n", note)
	}
	fmt.Fprintf(w, "\n")
}

// sectionRate returns the mean headline rate across processes, read
// from the gathered [P x S] matrix.
func sectionRate(sec *watch.Watch) float64 {
	s := len(sec.VSorted)
	if s == 0 || len(sec.SortedMatrix) < s {
		return 0
	}
	p := len(sec.SortedMatrix) / s
	var sum float64
	for i := 0; i < p; i++ {
		sum += sec.SortedMatrix[i*s+s-1]
	}
	return sum / float64(p)
}

func sectionMarkers(sec *watch.Watch) string {
	markers := ""
	if !sec.Exclusive {
		markers += "(*)"
	}
	if sec.InParallel {
		markers += "(+)"
	}
	return markers
}

func printSections(w io.Writer, sections []*watch.Watch, order []int, rootTime float64, opts Options) {
	lw := labelWidth(w, sections)
	fmt.Fprintf(w, "\t%-*s :   call       time[s]    time[%%]  t/call[s]   time_sd     %-10s  %s_sd     %s\n",
		lw, "Section", "operations", "ops", opts.Unit)
	fmt.Fprintf(w, "\t%s\n", strings.Repeat("-", lw+96))
	for _, idx := range order {
		sec := sections[idx]
		if sec.CountSum == 0 {
			continue
		}
		pct := 0.0
		if rootTime > 0 {
			pct = sec.TimeAv / rootTime * 100.0
		}
		perCall := 0.0
		if sec.CountAv > 0 {
			perCall = sec.TimeAv / float64(sec.CountAv)
		}
		label := util.TruncateLabel(sec.Label+sectionMarkers(sec), lw)
		fmt.Fprintf(w, "\t%-*s : %6d  %11.6f  %8.2f  %9.3e  %9.3e  %10.4e  %9.3e  %9.4e\n",
			lw, label, sec.CountAv, sec.TimeAv, pct, perCall, sec.TimeSd,
			sec.FlopAv, sec.FlopSd, sectionRate(sec))
		if sec.Kind == watch.Comm && sec.TimeComm > 0 {
			fmt.Fprintf(w, "\t%-*s   %6s  %11.6f  (max rank time)\n", lw, "", "", sec.TimeComm)
		}
	}
}

func printTailer(w io.Writer, sections []*watch.Watch, opts Options) {
	var sumTime, sumFlop float64
	var sumCalls int64
	for _, sec := range sections {
		if sec.SharedID == 0 || sec.CountSum == 0 {
			continue // the Root section is not a measured workload
		}
		if !sec.Exclusive {
			continue // inclusive sections would double count
		}
		sumTime += sec.TimeAv
		sumFlop += sec.FlopAv
		sumCalls += sec.CountSum
	}
	lw := labelWidth(w, sections)
	p := message.NewPrinter(language.English)
	fmt.Fprintf(w, "\t%s\n", strings.Repeat("-", lw+96))
	fmt.Fprintf(w, "\t%-*s : %s calls, %11.6f [s], %10.4e operations\n",
		lw, "Sections total", p.Sprintf("%d", sumCalls), sumTime, sumFlop)
	fmt.Fprintf(w, "\tSections marked (*) are inclusive; sections marked (+) ran inside parallel regions.\n\n")
}

func printRankDetail(w io.Writer, sections []*watch.Watch, order []int, opts Options) {
	fmt.Fprintf(w, "# Per-rank detail ------------------------------------------------------------- #\n")
	for _, idx := range order {
		sec := sections[idx]
		if sec.CountSum == 0 {
			continue
		}
		fmt.Fprintf(w, "\t[%s]%s\n", sec.Label, sectionMarkers(sec))
		fmt.Fprintf(w, "\t  rank       time[s]    operations\n")
		for r := range sec.TimeArray {
			fmt.Fprintf(w, "\t  %4d  %11.6f    %10.4e\n", r, sec.TimeArray[r], sec.FlopArray[r])
		}
	}
	fmt.Fprintf(w, "\n")
}

func printThreadDetail(w io.Writer, sections []*watch.Watch, order []int, opts Options) {
	fmt.Fprintf(w, "# Per-thread detail (rank 0) --------------------------------------------------- #\n")
	for _, idx := range order {
		sec := sections[idx]
		if sec.CountSum == 0 {
			continue
		}
		sec.SortThreadCounters()
		fmt.Fprintf(w, "\t[%s]%s\n", sec.Label, sectionMarkers(sec))
		if len(opts.SlotNames) > 0 {
			fmt.Fprintf(w, "\t  thread")
			for _, name := range opts.SlotNames {
				fmt.Fprintf(w, "  %12s", name)
			}
			fmt.Fprintf(w, "\n")
		}
		for t, row := range sec.ThVSorted {
			fmt.Fprintf(w, "\t  %6d", t)
			for s := 0; s < sec.NumSorted() && s < len(row); s++ {
				fmt.Fprintf(w, "  %12.4e", row[s])
			}
			fmt.Fprintf(w, "\n")
		}
	}
	fmt.Fprintf(w, "\n")
}

func printLegend(w io.Writer, opts Options) {
	fmt.Fprintf(w, "# Legend ----------------------------------------------------------------------- #\n")
	fmt.Fprintf(w, "\tHWPC_CHOOSER=%s\n", opts.Chooser)
	for _, name := range opts.SlotNames {
		fmt.Fprintf(w, "\t\t%s\n", name)
	}
	fmt.Fprintf(w, "\tThe last column is the headline rate in %s.\n", opts.Unit)
	if len(opts.PowerParts) > 0 {
		fmt.Fprintf(w, "\tPower is accumulated in Joule for the parts: %s\n", strings.Join(opts.PowerParts, ", "))
	}
	fmt.Fprintf(w, "\n")
}
