package watch

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// three-phase reduction of per-thread measurements into the master
// thread. Phase 1 and 3 run in a single-threaded context; phase 2 runs
// on each thread inside the parallel construct, bracketed by barriers,
// because a thread's private rows are only addressable there.

import "math"

// Scratch is the cross-thread channel of the merge. The Monitor owns
// one, sized for the widest section; phase 3 zeroes it after use.
type Scratch struct {
	ThAccumu  [][]float64
	ThVSorted [][]float64
}

// NewScratch allocates the merge scratch area.
func NewScratch(numThreads, eventWidth, sortedWidth int) *Scratch {
	return &Scratch{
		ThAccumu:  makeFloatRows(numThreads, eventWidth),
		ThVSorted: makeFloatRows(numThreads, max(sortedWidth, statSlots)),
	}
}

// Zero clears the scratch rows.
func (s *Scratch) Zero() {
	for t := range s.ThAccumu {
		for e := range s.ThAccumu[t] {
			s.ThAccumu[t][e] = 0
		}
		for i := range s.ThVSorted[t] {
			s.ThVSorted[t][i] = 0
		}
	}
}

// MergeMaster is phase 1: the master thread copies its rows into
// scratch. Skipped while any interval is still open or after a merge.
func (w *Watch) MergeMaster(s *Scratch) {
	if w.ThreadsMerged || w.Started() {
		return
	}
	for t := range w.ThAccumu {
		copy(s.ThAccumu[t][:w.numEvents], w.ThAccumu[t])
		copy(s.ThVSorted[t][:w.rowWidth], w.ThVSorted[t])
	}
}

// MergeParallel is phase 2: a non-master thread deposits its own rows.
// Sections never executed inside a parallel region skip this phase, the
// serial fan-out already placed their data on the master.
func (w *Watch) MergeParallel(s *Scratch, tid int) {
	if w.ThreadsMerged || w.Started() {
		return
	}
	if tid == 0 || !w.InParallel {
		return
	}
	copy(s.ThAccumu[tid][:w.numEvents], w.ThAccumu[tid])
	copy(s.ThVSorted[tid][:w.rowWidth], w.ThVSorted[tid])
}

// UpdateMerged is phase 3: the master thread copies scratch back,
// derives the process-level event accumulation under the per-event
// sharing policy, folds the scalar thread stats, and zeroes scratch.
func (w *Watch) UpdateMerged(s *Scratch) {
	if w.ThreadsMerged || w.Started() {
		return
	}
	for t := range w.ThAccumu {
		copy(w.ThAccumu[t], s.ThAccumu[t][:w.numEvents])
		copy(w.ThVSorted[t], s.ThVSorted[t][:w.rowWidth])
	}

	if w.numEvents > 0 {
		cfg := w.rt.Cfg
		w.Accumu = w.rt.Adapter.Preset.Aggregate(
			w.ThAccumu, w.rt.NumThreads, cfg.ProcsPerNode, cfg.RankOnNode, cfg.TopologyHinted)
	}

	var count, t, flop float64
	for tid := range w.ThVSorted {
		count += w.ThVSorted[tid][0]
		t += w.ThVSorted[tid][1]
		flop += w.ThVSorted[tid][2]
	}
	w.Count = int64(math.Round(count))
	w.Time = t
	w.Flop = flop

	w.ThreadsMerged = true
	s.Zero()
}
