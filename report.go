package pmlib

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// the report driver: stop Root, complete the master registry, merge
// threads, gather across processes, order sections and render

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"pmlib/internal/report"
	"pmlib/internal/util"
	"pmlib/internal/watch"
)

// stopRoot force-stops any still-running section, notes it for the
// report, and stops the Root section. Idempotent.
func (m *Monitor) stopRoot() {
	m.mu.Lock()
	if !m.rootActive {
		m.mu.Unlock()
		return
	}
	m.rootActive = false
	watches := append([]*watch.Watch(nil), m.watches...)
	m.mu.Unlock()

	for _, w := range watches {
		if w.SharedID == 0 || !w.Started() {
			continue
		}
		slog.Warn("section still running at report, force-stopped",
			slog.String("section", w.Label))
		for tid := range m.cfg.NumThreads {
			if w.StartedOn(tid) {
				w.Stop(tid, w.InParallel, 0, 1)
			}
		}
		m.notes = append(m.notes,
			fmt.Sprintf("section [%s] was still running and was force-stopped", w.Label))
	}
	root := watches[0]
	if root.Started() {
		root.Stop(0, false, 0, 1)
	}
}

// completeMasterRegistry creates, on the master thread, any section that
// only other threads have registered, marked in-parallel.
func (m *Monitor) completeMasterRegistry() {
	for _, label := range m.reg.MissingInLocal(0) {
		m.mu.Lock()
		sid := m.reg.FindShared(label)
		w := m.watches[sid]
		m.mu.Unlock()
		w.MarkInParallel()
		m.reg.AddLocal(0, label)
		m.thrLocal[0] = append(m.thrLocal[0], sid)
	}
}

// gatherAll merges, derives and gathers every section, then computes the
// statistics. A collective failure aborts the process group.
func (m *Monitor) gatherAll() {
	m.mu.Lock()
	watches := append([]*watch.Watch(nil), m.watches...)
	m.mu.Unlock()
	for _, w := range watches {
		m.MergeThreads(w.SharedID)
		w.SortCounters()
	}
	for _, w := range watches {
		if err := w.Gather(m.comm); err != nil {
			m.comm.Abort(err.Error())
			return
		}
		w.StatsAverage()
	}
}

// sectionOrder returns section indexes sorted by descending mean time,
// stable on ties by registration order.
func (m *Monitor) sectionOrder() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	order := make([]int, len(m.watches))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		wa, wb := m.watches[order[a]], m.watches[order[b]]
		ta, tb := wa.TimeAv, wb.TimeAv
		if wa.CountSum == 0 {
			ta = 0
		}
		if wb.CountSum == 0 {
			tb = 0
		}
		return ta > tb
	})
	return order
}

func (m *Monitor) parallelMode() string {
	procs := m.comm.Size()
	threads := m.cfg.NumThreads
	switch {
	case procs > 1 && threads > 1:
		return "Hybrid parallel"
	case procs > 1:
		return "Process parallel"
	case threads > 1:
		return "Thread parallel"
	}
	return "Serial"
}

func (m *Monitor) reportOptions() report.Options {
	return report.Options{
		Level:        m.cfg.Report,
		Hostname:     util.Hostname(),
		ParallelMode: m.parallelMode(),
		NumProcs:     m.comm.Size(),
		NumThreads:   m.cfg.NumThreads,
		Chooser:      m.cfg.Hwpc,
		Unit:         m.userUnit(),
		SlotNames:    m.rt.Adapter.Preset.SlotNames(),
		PowerParts:   m.rt.Meter.Parts(),
		BackendName:  m.rt.Adapter.BackendName(),
		EnvDesc:      m.cfg.Describe(),
		Notes:        append([]string(nil), m.notes...),
	}
}

// userUnit resolves the headline unit; USER-mode communication sections
// report bytes per second.
func (m *Monitor) userUnit() string {
	preset := m.rt.Adapter.Preset
	if !preset.UserMode() {
		return preset.Unit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.watches {
		if w.Kind == Comm {
			return "B/s"
		}
	}
	return "Flops"
}

// Report drives the merge, gather and rendering phases and writes the
// report to w. Calling it again re-renders the same data; Root stays
// stopped and merged sections are not merged twice.
func (m *Monitor) Report(w io.Writer) error {
	if !m.enabled {
		return nil
	}
	m.stopRoot()
	m.completeMasterRegistry()
	m.gatherAll()
	order := m.sectionOrder()
	m.mu.Lock()
	watches := append([]*watch.Watch(nil), m.watches...)
	rootTime := watches[0].Time
	m.mu.Unlock()
	if m.prom != nil {
		m.prom.Update(watches, m.userUnit())
	}
	return report.Print(w, watches, order, rootTime, m.comm.Rank(), m.reportOptions())
}

// ReportFile writes the report to a file; a path ending in .xlsx
// produces the workbook rendering, anything else the text rendering.
func (m *Monitor) ReportFile(path string) error {
	if !m.enabled {
		return nil
	}
	if !strings.HasSuffix(path, ".xlsx") {
		f, err := createFile(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return m.Report(f)
	}
	m.stopRoot()
	m.completeMasterRegistry()
	m.gatherAll()
	order := m.sectionOrder()
	m.mu.Lock()
	watches := append([]*watch.Watch(nil), m.watches...)
	rootTime := watches[0].Time
	m.mu.Unlock()
	if m.comm.Rank() != 0 {
		return nil
	}
	return report.WriteExcel(path, watches, order, rootTime, m.reportOptions())
}

// PostTrace finalizes the tracing back-end; the trace index carries the
// chooser's counter group and unit.
func (m *Monitor) PostTrace() error {
	if !m.enabled || m.rt.Recorder == nil {
		return nil
	}
	group := "HWPC measured values"
	if m.rt.Adapter.Preset.UserMode() {
		group = "User Defined COMM/CALC values"
	}
	return m.rt.Recorder.Finalize(group, m.userUnit())
}
