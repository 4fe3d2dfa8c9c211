package pmlib

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"sync"
)

// Thread is one worker's measurement handle inside a parallel region.
// Start and Stop on a Thread record into that thread's private slots; no
// cross-thread fan-out happens.
type Thread struct {
	m   *Monitor
	tid int

	exclusiveConstruct bool
}

// ID returns the thread index within the region.
func (t *Thread) ID() int { return t.tid }

// ParallelRegion runs body on n concurrent workers, each holding its
// Thread handle, and joins them (fork-join). n is clamped to the
// configured thread count. Sections first touched inside the region are
// marked in-parallel.
func (m *Monitor) ParallelRegion(n int, body func(t *Thread)) {
	if !m.enabled {
		return
	}
	if n < 1 || n > m.cfg.NumThreads {
		n = m.cfg.NumThreads
	}
	m.mu.Lock()
	m.regionDepth++
	m.mu.Unlock()
	var wg sync.WaitGroup
	for tid := 0; tid < n; tid++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			body(&Thread{m: m, tid: tid})
		}(tid)
	}
	wg.Wait()
	m.mu.Lock()
	m.regionDepth--
	m.mu.Unlock()
}

// Start begins measuring a section on this thread.
func (t *Thread) Start(label string) {
	if !t.m.enabled {
		return
	}
	if label == "" {
		slog.Warn("blank section label, start ignored", slog.Int("thread", t.tid))
		return
	}
	sid := t.m.sectionID(t.tid, label)
	t.exclusiveConstruct = true
	t.m.watches[sid].Start(t.tid, true)
}

// Stop ends this thread's measurement of a section.
func (t *Thread) Stop(label string, flopPerTask float64, iterationCount uint) {
	if !t.m.enabled {
		return
	}
	if label == "" {
		slog.Warn("blank section label, stop ignored", slog.Int("thread", t.tid))
		return
	}
	sid := t.m.reg.FindShared(label)
	if sid < 0 {
		slog.Warn("unknown section label, stop ignored",
			slog.String("section", label), slog.Int("thread", t.tid))
		return
	}
	w := t.m.watches[sid]
	w.Stop(t.tid, true, flopPerTask, iterationCount)
	if !t.exclusiveConstruct {
		w.MarkInclusive()
	}
	t.exclusiveConstruct = false
}

// MergeThreads runs the three-phase thread merge for one shared section:
// the master copy-in, the per-thread deposit on every thread of a
// fan-out (the parallel construct), and the master fold with the
// per-event sharing policy. Safe to call repeatedly; a merged section is
// skipped until new measurements arrive.
func (m *Monitor) MergeThreads(sharedID int) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	if sharedID < 0 || sharedID >= len(m.watches) {
		m.mu.Unlock()
		slog.Warn("merge requested for unknown section", slog.Int("id", sharedID))
		return
	}
	w := m.watches[sharedID]
	scratch := m.scratch
	m.mu.Unlock()

	// phase 1: single-threaded master copy-in
	w.MergeMaster(scratch)
	// phase 2: every thread deposits its own rows; the join barriers make
	// the private writes visible to phase 3
	var wg sync.WaitGroup
	for tid := 1; tid < m.cfg.NumThreads; tid++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			w.MergeParallel(scratch, tid)
		}(tid)
	}
	wg.Wait()
	// phase 3: single-threaded master fold, scratch zeroed
	w.UpdateMerged(scratch)
}
