// Package watch implements the per-section measurement engine: the
// start/stop state machine with its serial and parallel execution
// contexts, the three-phase thread merge, the cross-process gather and
// the per-section statistics.
package watch

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"sync"

	"pmlib/internal/config"
	"pmlib/internal/hwpc"
	"pmlib/internal/power"
	"pmlib/internal/timer"
	"pmlib/internal/trace"
)

// Kind classifies a section's declared workload.
type Kind int

const (
	// Calc sections count arithmetic; user volumes report as Flops.
	Calc Kind = iota
	// Comm sections count data movement; user volumes report as B/s and
	// the cross-process straggler time is tracked.
	Comm
)

// Runtime bundles the process-wide state every Watch needs. It is
// created once at initialize and handed to each Watch by construction.
type Runtime struct {
	Cfg        *config.Config
	Adapter    *hwpc.Adapter
	Meter      *power.Meter
	Recorder   trace.Recorder
	Rank       int
	NumThreads int
}

// statSlots is the minimum per-thread vector width; slots 0..2 carry
// call count, accumulated time and operation volume after each stop.
const statSlots = 3

// Watch is one section's measurement record. Per-thread rows are only
// ever written by their owning thread; the process-level aggregates are
// written by the master thread during the merge.
type Watch struct {
	rt *Runtime

	Label      string
	SharedID   int
	Kind       Kind
	Exclusive  bool
	InParallel bool
	Healthy    bool

	ThreadsMerged bool

	flagMu sync.Mutex

	numEvents int
	numSorted int
	rowWidth  int

	started   []bool
	startTime []float64

	thCount []int64
	thTime  []float64
	thFlop  []float64

	ThValues  [][]int64
	ThAccumu  [][]float64
	ThVSorted [][]float64

	// process-level aggregates, valid after UpdateMerged
	Count  int64
	Time   float64
	Flop   float64
	Accumu []float64
	// derived metric vector, valid after SortCounters
	VSorted []float64

	uJoule  []float64
	WAccumu []float64
	WattMax []float64

	// cross-process data, valid after Gather and StatsAverage
	TimeArray    []float64
	FlopArray    []float64
	CountArray   []float64
	SortedMatrix []float64
	CountSum     int64
	CountAv      int64
	TimeAv       float64
	TimeSd       float64
	FlopAv       float64
	FlopSd       float64
	TimeComm     float64
}

// New creates the measurement record for one section.
func New(label string, sharedID int, rt *Runtime) *Watch {
	t := rt.NumThreads
	e := rt.Adapter.NumEvents()
	s := rt.Adapter.Preset.NumSorted()
	width := max(s, statSlots)
	w := &Watch{
		rt:        rt,
		Label:     label,
		SharedID:  sharedID,
		Kind:      Calc,
		Exclusive: true,
		Healthy:   true,
		numEvents: e,
		numSorted: s,
		rowWidth:  width,
		started:   make([]bool, t),
		startTime: make([]float64, t),
		thCount:   make([]int64, t),
		thTime:    make([]float64, t),
		thFlop:    make([]float64, t),
		ThValues:  makeInt64Rows(t, e),
		ThAccumu:  makeFloatRows(t, e),
		ThVSorted: makeFloatRows(t, width),
		Accumu:    make([]float64, e),
		VSorted:   make([]float64, s),
		uJoule:    make([]float64, rt.Meter.NumParts()),
		WAccumu:   make([]float64, rt.Meter.NumParts()),
		WattMax:   make([]float64, rt.Meter.NumParts()),
	}
	if rt.Recorder != nil {
		rt.Recorder.DefineSection(sharedID, label, true)
	}
	return w
}

func makeFloatRows(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func makeInt64Rows(rows, cols int) [][]int64 {
	m := make([][]int64, rows)
	for i := range m {
		m[i] = make([]int64, cols)
	}
	return m
}

// SetProperties declares the section kind and exclusivity.
func (w *Watch) SetProperties(kind Kind, exclusive bool) {
	w.Kind = kind
	w.Exclusive = exclusive
}

// MarkInParallel flags the section as observed inside a parallel
// region; the flag sticks true once set. Safe from any thread.
func (w *Watch) MarkInParallel() {
	w.flagMu.Lock()
	w.InParallel = true
	w.flagMu.Unlock()
}

// MarkInclusive clears the exclusive flag: another section's lifetime
// nested inside this one. Safe from any thread.
func (w *Watch) MarkInclusive() {
	w.flagMu.Lock()
	w.Exclusive = false
	w.flagMu.Unlock()
}

// Started reports whether any thread is inside a start/stop pair.
func (w *Watch) Started() bool {
	for _, s := range w.started {
		if s {
			return true
		}
	}
	return false
}

// StartedOn reports whether thread tid is inside a start/stop pair.
func (w *Watch) StartedOn(tid int) bool { return w.started[tid] }

// Start begins a measurement interval on thread tid. A serial-region
// start fans out to snapshot counters on every thread so the section
// captures whole-process deltas of uninstrumented inner parallel work.
// A duplicated start warns and restarts the interval.
func (w *Watch) Start(tid int, inParallel bool) {
	if w.started[tid] {
		slog.Warn("section already started, interval restarted",
			slog.String("section", w.Label), slog.Int("rank", w.rt.Rank), slog.Int("thread", tid))
	}
	w.started[tid] = true
	w.startTime[tid] = timer.Now()
	w.flagMu.Lock()
	w.ThreadsMerged = false
	w.flagMu.Unlock()
	if inParallel {
		w.MarkInParallel()
	}

	if w.numEvents > 0 {
		if inParallel {
			w.rt.Adapter.ReadThread(tid, w.ThValues[tid])
		} else {
			w.fanOutRead(w.ThValues)
		}
	}
	if !inParallel {
		w.rt.Meter.Read(w.uJoule)
	}
	if w.rt.Recorder != nil && (!inParallel || tid == 0) {
		w.rt.Recorder.Start(w.startTime[tid], w.SharedID)
	}
}

// Stop ends a measurement interval on thread tid. flopPerTask and
// iterationCount only matter in USER mode, where the declared volume is
// flopPerTask*iterationCount per call. A stop without a start warns,
// self-corrects to a zero-length interval and the run continues.
func (w *Watch) Stop(tid int, inParallel bool, flopPerTask float64, iterationCount uint) {
	now := timer.Now()
	if !w.started[tid] {
		slog.Warn("section stopped without start, corrected",
			slog.String("section", w.Label), slog.Int("rank", w.rt.Rank), slog.Int("thread", tid))
		w.startTime[tid] = now
	}
	delta := now - w.startTime[tid]
	w.started[tid] = false
	w.thTime[tid] += delta
	w.thCount[tid]++

	if w.numEvents > 0 {
		if inParallel {
			w.accumulateThread(tid)
		} else {
			snapshot := makeInt64Rows(w.rt.NumThreads, w.numEvents)
			w.fanOutRead(snapshot)
			for t := range snapshot {
				for e := range snapshot[t] {
					w.ThAccumu[t][e] += float64(snapshot[t][e] - w.ThValues[t][e])
				}
			}
		}
	}
	if w.rt.Adapter.Preset.UserMode() {
		w.thFlop[tid] += flopPerTask * float64(iterationCount)
	}
	if !inParallel {
		w.accumulatePower(now)
	}
	if w.rt.Recorder != nil && (!inParallel || tid == 0) {
		w.rt.Recorder.Stop(now, w.SharedID, w.traceValue(tid, flopPerTask, iterationCount, delta))
	}

	// slots 0..2 feed the scalar thread merge
	w.ThVSorted[tid][0] = float64(w.thCount[tid])
	w.ThVSorted[tid][1] = w.thTime[tid]
	w.ThVSorted[tid][2] = w.thFlop[tid]
}

// accumulateThread folds one thread's counter delta into its row.
func (w *Watch) accumulateThread(tid int) {
	snapshot := make([]int64, w.numEvents)
	w.rt.Adapter.ReadThread(tid, snapshot)
	for e := range snapshot {
		w.ThAccumu[tid][e] += float64(snapshot[e] - w.ThValues[tid][e])
	}
}

// fanOutRead snapshots counters on every thread concurrently. The join
// is the implicit barrier of the fan-out.
func (w *Watch) fanOutRead(rows [][]int64) {
	var wg sync.WaitGroup
	for t := 0; t < w.rt.NumThreads; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			w.rt.Adapter.ReadThread(t, rows[t])
		}(t)
	}
	wg.Wait()
}

func (w *Watch) accumulatePower(now float64) {
	if w.rt.Meter.NumParts() == 0 {
		return
	}
	v := make([]float64, len(w.uJoule))
	w.rt.Meter.Read(v)
	elapsed := now - w.startTime[0]
	for i := range v {
		joule := v[i] - w.uJoule[i]
		w.WAccumu[i] += joule
		if elapsed > 0 {
			watt := joule / elapsed
			if watt > w.WattMax[i] {
				w.WattMax[i] = watt
			}
		}
	}
}

// traceValue computes the rate recorded on a full-tracing stop.
func (w *Watch) traceValue(tid int, flopPerTask float64, iterationCount uint, delta float64) float64 {
	if w.rt.Cfg.Trace != config.TraceFull {
		return 0
	}
	if w.rt.Adapter.Preset.UserMode() {
		if delta > 0 {
			return flopPerTask * float64(iterationCount) / delta
		}
		return 0
	}
	sorted := w.rt.Adapter.Preset.Sort(w.ThAccumu[tid], w.thTime[tid], 1)
	if len(sorted) == 0 {
		return 0
	}
	return sorted[len(sorted)-1]
}

// Reset zeroes all accumulators; section properties are kept.
func (w *Watch) Reset() {
	t := w.rt.NumThreads
	for i := 0; i < t; i++ {
		w.started[i] = false
		w.startTime[i] = 0
		w.thCount[i] = 0
		w.thTime[i] = 0
		w.thFlop[i] = 0
		for e := range w.ThAccumu[i] {
			w.ThValues[i][e] = 0
			w.ThAccumu[i][e] = 0
		}
		for s := range w.ThVSorted[i] {
			w.ThVSorted[i][s] = 0
		}
	}
	for e := range w.Accumu {
		w.Accumu[e] = 0
	}
	for s := range w.VSorted {
		w.VSorted[s] = 0
	}
	for p := range w.WAccumu {
		w.WAccumu[p] = 0
		w.WattMax[p] = 0
	}
	w.Count = 0
	w.Time = 0
	w.Flop = 0
	w.ThreadsMerged = false
}

// ThreadStats returns one thread's call count, time and volume.
func (w *Watch) ThreadStats(tid int) (count int64, t, flop float64) {
	return w.thCount[tid], w.thTime[tid], w.thFlop[tid]
}

// NumEvents is the raw event width of the per-thread rows.
func (w *Watch) NumEvents() int { return w.numEvents }

// NumSorted is the derived vector width.
func (w *Watch) NumSorted() int { return w.numSorted }

// Runtime exposes the process-wide state the Watch was built with.
func (w *Watch) Runtime() *Runtime { return w.rt }

// RestoreSnapshot reinstalls a persisted start state: the interval is
// marked running from startTime with the given per-thread counter
// snapshots. Rows beyond the current thread count are dropped with a
// warning.
func (w *Watch) RestoreSnapshot(startTime float64, thValues [][]int64) {
	for t, row := range thValues {
		if t >= len(w.ThValues) {
			slog.Warn("persisted state has more threads than this process, extra rows dropped",
				slog.String("section", w.Label), slog.Int("threads", len(thValues)))
			break
		}
		for e := range row {
			if e < len(w.ThValues[t]) {
				w.ThValues[t][e] = row[e]
			}
		}
	}
	w.started[0] = true
	w.startTime[0] = startTime
	for t := 1; t < len(w.startTime); t++ {
		w.startTime[t] = startTime
	}
}

// StartSnapshot exposes the running interval's start time and raw
// counter snapshots for persistence.
func (w *Watch) StartSnapshot() (float64, [][]int64) {
	return w.startTime[0], w.ThValues
}
