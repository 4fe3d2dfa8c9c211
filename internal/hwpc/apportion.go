package hwpc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// process-level aggregation of per-thread accumulations, including the
// prorated apportionment of counters shared across a core-memory group

import "log/slog"

const (
	// CMGCores is the core count of one core-memory group.
	CMGCores = 12
	// NodeCMGs is the number of core-memory groups per node.
	NodeCMGs = 4
)

// SumPerCore aggregates per-core events: every thread counted its own
// core, so the process value is the plain sum.
func SumPerCore(th [][]float64, numEvents int) []float64 {
	accumu := make([]float64, numEvents)
	for _, row := range th {
		for i := 0; i < numEvents && i < len(row); i++ {
			accumu[i] += row[i]
		}
	}
	return accumu
}

// ApportionCMG aggregates events counted once per core-memory group.
// Every thread on a CMG reads the same counter, so only one reading per
// CMG contributes, and a CMG shared between processes is prorated by the
// number of sharers. Packed thread affinity is assumed.
//
// With up to 4 processes per node each process owns an integer number of
// CMGs; the owning CMGs' leader rows are summed, and the one possibly
// shared CMG (3 processes, more than one CMG each) contributes a third.
// With 5 or more processes per node every process shares a single CMG
// with ceil(np/4) or floor(np/4) peers depending on its slot.
func ApportionCMG(th [][]float64, numEvents, numThreads, procsPerNode, rankOnNode int) []float64 {
	accumu := make([]float64, numEvents)
	if numThreads < 1 || len(th) == 0 {
		return accumu
	}
	if procsPerNode <= 4 {
		ncmg := (numThreads-1)/CMGCores + 1
		for i := 0; i < numEvents; i++ {
			for k := 0; k < ncmg; k++ {
				row := CMGCores * k
				if row < len(th) && i < len(th[row]) {
					accumu[i] += th[row][i]
				}
			}
		}
		if procsPerNode == 3 && numThreads > CMGCores {
			last := numThreads - 1
			if last < len(th) {
				for i := 0; i < numEvents; i++ {
					if i < len(th[last]) {
						accumu[i] += th[last][i] / 3.0
					}
				}
			}
		}
		return accumu
	}
	// 5 or more processes per node: this process shares one CMG
	npShare := (procsPerNode-1)/NodeCMGs + 1
	var ratio float64
	if (rankOnNode % NodeCMGs) <= ((procsPerNode - 1) % NodeCMGs) {
		ratio = 1.0 / float64(npShare)
	} else {
		ratio = 1.0 / float64(npShare-1)
	}
	for i := 0; i < numEvents; i++ {
		if i < len(th[0]) {
			accumu[i] = th[0][i] * ratio
		}
	}
	return accumu
}

// Aggregate selects the sharing policy for the preset and produces the
// process-level event accumulation. A missing topology hint with a
// shared event set warns on every call and assumes one process per node.
func (p *Preset) Aggregate(th [][]float64, numThreads, procsPerNode, rankOnNode int, hinted bool) []float64 {
	n := len(p.Events)
	if !p.SharedPerCMG {
		return SumPerCore(th, n)
	}
	if !hinted {
		slog.Warn("shared per-CMG counters without topology hints, assuming 1 process per node",
			slog.String("chooser", string(p.Chooser)))
		procsPerNode, rankOnNode = 1, 0
	}
	return ApportionCMG(th, n, numThreads, procsPerNode, rankOnNode)
}
