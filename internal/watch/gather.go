package watch

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// cross-process aggregation: all-gather of the derived metric vectors
// and scalar stats, followed by the per-section statistics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// SortCounters derives the process-level metric vector from the merged
// event accumulation. In USER mode the vector is the user-declared
// volume and its rate. Also settles the Flop volume the statistics use.
func (w *Watch) SortCounters() {
	preset := w.rt.Adapter.Preset
	if preset.UserMode() {
		rate := 0.0
		if w.Time > 0 {
			rate = w.Flop / w.Time
		}
		w.VSorted = []float64{float64(w.Count), w.Time, w.Flop, rate}
		return
	}
	w.VSorted = preset.Sort(w.Accumu, w.Time, w.rt.NumThreads)
	w.Flop = preset.Volume(w.VSorted)
}

// SortThreadCounters recomputes each thread's derived vector for the
// per-thread report. Runs after the merge; it overwrites the scalar
// slots the merge consumed.
func (w *Watch) SortThreadCounters() {
	preset := w.rt.Adapter.Preset
	if preset.UserMode() {
		return
	}
	for t := range w.ThVSorted {
		sorted := preset.Sort(w.ThAccumu[t], w.thTime[t], 1)
		copy(w.ThVSorted[t], sorted)
	}
}

// Gatherer is the collective surface Gather needs, satisfied by
// comm.Comm.
type Gatherer interface {
	Rank() int
	Size() int
	Barrier() error
	AllgatherFloat64(send []float64) ([]float64, error)
	AllreduceSumInt64(v int64) (int64, error)
}

// Gather all-gathers the derived vector into a [P x S] matrix held on
// every process, the scalar stats into per-process arrays, and reduces
// the total call count. A collective failure is returned to the caller
// and is fatal for the process group.
func (w *Watch) Gather(c Gatherer) error {
	if err := c.Barrier(); err != nil {
		return fmt.Errorf("barrier failed for section %s: %v", w.Label, err)
	}
	if len(w.VSorted) > 0 {
		matrix, err := c.AllgatherFloat64(w.VSorted)
		if err != nil {
			return fmt.Errorf("HWPC allgather failed for section %s: %v", w.Label, err)
		}
		w.SortedMatrix = matrix
	}
	scalars, err := c.AllgatherFloat64([]float64{w.Time, w.Flop, float64(w.Count)})
	if err != nil {
		return fmt.Errorf("scalar allgather failed for section %s: %v", w.Label, err)
	}
	p := c.Size()
	w.TimeArray = make([]float64, p)
	w.FlopArray = make([]float64, p)
	w.CountArray = make([]float64, p)
	for i := 0; i < p; i++ {
		w.TimeArray[i] = scalars[3*i]
		w.FlopArray[i] = scalars[3*i+1]
		w.CountArray[i] = scalars[3*i+2]
	}
	sum, err := c.AllreduceSumInt64(w.Count)
	if err != nil {
		return fmt.Errorf("call count reduction failed for section %s: %v", w.Label, err)
	}
	w.CountSum = sum
	return nil
}

// StatsAverage computes the per-section process statistics: mean and
// sample standard deviation of time and volume, the rounded mean call
// count, and the straggler time for communication sections.
func (w *Watch) StatsAverage() {
	p := len(w.TimeArray)
	if p == 0 {
		return
	}
	w.TimeAv = stat.Mean(w.TimeArray, nil)
	w.FlopAv = stat.Mean(w.FlopArray, nil)
	if p > 1 {
		w.TimeSd = stat.StdDev(w.TimeArray, nil)
		w.FlopSd = stat.StdDev(w.FlopArray, nil)
	} else {
		w.TimeSd = 0
		w.FlopSd = 0
	}
	w.CountAv = int64(math.Round(float64(w.CountSum) / float64(p)))
	w.TimeComm = 0
	if w.Kind == Comm {
		for _, t := range w.TimeArray {
			if t > w.TimeComm {
				w.TimeComm = t
			}
		}
	}
}
