// Package pmlib instruments applications with named measurement
// sections and reports per-section wall-clock time, user-declared or
// hardware-counted work volumes, and node power, aggregated across
// threads and processes.
//
// The application creates a Monitor with Initialize, brackets code with
// Start and Stop, optionally runs instrumented parallel regions through
// ParallelRegion, and finishes with Report.
package pmlib

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"sync"

	"pmlib/internal/comm"
	"pmlib/internal/config"
	"pmlib/internal/hwpc"
	"pmlib/internal/power"
	"pmlib/internal/registry"
	"pmlib/internal/telemetry"
	"pmlib/internal/trace"
	"pmlib/internal/watch"
)

// RootLabel names the implicit section spanning Initialize to Report.
const RootLabel = "Root Section"

// Kind re-exports the section classification.
type Kind = watch.Kind

const (
	// Calc marks computation sections.
	Calc = watch.Calc
	// Comm marks communication sections.
	Comm = watch.Comm
)

// Monitor is the per-process measurement engine. One Monitor exists per
// process; parallel regions obtain per-thread handles from it.
type Monitor struct {
	enabled bool
	cfg     *config.Config
	rt      *watch.Runtime
	comm    comm.Comm
	reg     *registry.Registry
	scratch *watch.Scratch
	prom    *telemetry.Server

	mu       sync.Mutex
	watches  []*watch.Watch
	thrLocal [][]int // per thread: local index -> shared ID

	exclusiveConstruct bool
	rootActive         bool
	regionDepth        int
	notes              []string
}

// Option adjusts Monitor construction.
type Option func(*options)

type options struct {
	comm         comm.Comm
	counter      hwpc.Backend
	powerBackend power.Backend
	cfg          *config.Config
}

// WithComm connects the Monitor to a process group substrate.
func WithComm(c comm.Comm) Option { return func(o *options) { o.comm = c } }

// WithCounterBackend overrides the hardware counter source.
func WithCounterBackend(b hwpc.Backend) Option { return func(o *options) { o.counter = b } }

// WithPowerBackend overrides the power telemetry collaborator.
func WithPowerBackend(b power.Backend) Option { return func(o *options) { o.powerBackend = b } }

// WithConfig bypasses the environment and uses the given configuration.
func WithConfig(cfg *config.Config) Option { return func(o *options) { o.cfg = cfg } }

// Initialize is the mandatory first call: it resolves the environment,
// configures the counter adapter, and starts the Root section.
// initialSections pre-sizes the section array.
func Initialize(initialSections int, opts ...Option) (*Monitor, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	cfg := o.cfg
	if cfg == nil {
		cfg = config.FromEnv()
	}
	m := &Monitor{cfg: cfg}
	if cfg.Bypass {
		return m, nil
	}
	m.enabled = true

	if o.counter == nil && cfg.CounterSource == "native" {
		o.counter = hwpc.NewPlatformBackend()
	}
	adapter, err := hwpc.NewAdapter(cfg.Hwpc, o.counter)
	if err != nil {
		return nil, fmt.Errorf("failed to configure counters: %v", err)
	}
	m.comm = o.comm
	if m.comm == nil {
		m.comm = comm.Self{}
	}
	powerBackend := o.powerBackend
	if powerBackend == nil && cfg.Power != config.PowerOff {
		powerBackend = power.NewStubBackend()
	}
	var recorder trace.Recorder
	if cfg.Trace != config.TraceOff {
		recorder = trace.NewFileRecorder(cfg.TraceFileName, m.comm.Rank(), m.comm.Size())
	}
	m.rt = &watch.Runtime{
		Cfg:        cfg,
		Adapter:    adapter,
		Meter:      power.NewMeter(cfg.Power, powerBackend),
		Recorder:   recorder,
		Rank:       m.comm.Rank(),
		NumThreads: cfg.NumThreads,
	}
	m.reg = registry.New(cfg.NumThreads)
	m.scratch = watch.NewScratch(cfg.NumThreads, adapter.NumEvents(), adapter.Preset.NumSorted())
	if initialSections < 1 {
		initialSections = 1
	}
	m.watches = make([]*watch.Watch, 0, initialSections+1)
	m.thrLocal = make([][]int, cfg.NumThreads)

	if cfg.MetricsAddr != "" {
		m.prom = telemetry.NewServer()
		m.prom.Start(cfg.MetricsAddr)
	}

	rootID := m.sectionID(0, RootLabel)
	m.watches[rootID].SetProperties(Calc, false)
	m.watches[rootID].Start(0, false)
	m.rootActive = true
	return m, nil
}

// sectionID resolves a label to its shared ID through the calling
// thread's fast path, creating the section on first use.
func (m *Monitor) sectionID(tid int, label string) int {
	if lid := m.reg.FindLocal(tid, label); lid >= 0 {
		return m.thrLocal[tid][lid]
	}
	m.mu.Lock()
	sid := m.reg.AddShared(label)
	if sid == len(m.watches) {
		m.watches = append(m.watches, watch.New(label, sid, m.rt))
	}
	if m.regionDepth > 0 {
		m.watches[sid].MarkInParallel()
	}
	m.mu.Unlock()
	m.reg.AddLocal(tid, label)
	m.thrLocal[tid] = append(m.thrLocal[tid], sid)
	return sid
}

// lookup returns the Watch for a label, or nil with a warning when the
// label was never registered.
func (m *Monitor) lookup(label, op string) *watch.Watch {
	m.mu.Lock()
	defer m.mu.Unlock()
	sid := m.reg.FindShared(label)
	if sid < 0 {
		slog.Warn("unknown section label, call ignored",
			slog.String("op", op), slog.String("section", label))
		return nil
	}
	return m.watches[sid]
}

// SetProperties pre-declares a section's kind and exclusivity.
func (m *Monitor) SetProperties(label string, kind Kind, exclusive bool) {
	if !m.enabled || label == "" {
		return
	}
	sid := m.sectionID(0, label)
	m.watches[sid].SetProperties(kind, exclusive)
}

// Start begins measuring a section from a serial region. The section is
// created on first use.
func (m *Monitor) Start(label string) {
	if !m.enabled {
		return
	}
	if label == "" {
		slog.Warn("blank section label, start ignored")
		return
	}
	sid := m.sectionID(0, label)
	m.mu.Lock()
	m.exclusiveConstruct = true
	m.mu.Unlock()
	m.watches[sid].Start(0, false)
}

// Stop ends a serial-region measurement. flopPerTask and iterationCount
// declare the section's work volume in USER mode and are ignored
// otherwise.
func (m *Monitor) Stop(label string, flopPerTask float64, iterationCount uint) {
	if !m.enabled {
		return
	}
	if label == "" {
		slog.Warn("blank section label, stop ignored")
		return
	}
	w := m.lookup(label, "stop")
	if w == nil {
		return
	}
	w.Stop(0, false, flopPerTask, iterationCount)
	m.mu.Lock()
	exclusive := m.exclusiveConstruct
	m.exclusiveConstruct = false
	m.mu.Unlock()
	if !exclusive {
		w.MarkInclusive()
	}
}

// Reset zeroes one section's accumulators. The Root section is never
// reset.
func (m *Monitor) Reset(label string) {
	if !m.enabled {
		return
	}
	w := m.lookup(label, "reset")
	if w == nil || w.SharedID == 0 {
		return
	}
	w.Reset()
}

// ResetAll zeroes every section except Root.
func (m *Monitor) ResetAll() {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	watches := append([]*watch.Watch(nil), m.watches...)
	m.mu.Unlock()
	for _, w := range watches {
		if w.SharedID == 0 {
			continue
		}
		w.Reset()
	}
}

// GetPowerKnob reads a node power control setting.
func (m *Monitor) GetPowerKnob(k power.Knob) (int, error) {
	if !m.enabled {
		return 0, fmt.Errorf("measurement is bypassed")
	}
	return m.rt.Meter.GetKnob(k)
}

// SetPowerKnob applies a node power control setting.
func (m *Monitor) SetPowerKnob(k power.Knob, v int) error {
	if !m.enabled {
		return fmt.Errorf("measurement is bypassed")
	}
	return m.rt.Meter.SetKnob(k, v)
}

// SectionCount returns the number of shared sections, Root included.
func (m *Monitor) SectionCount() int {
	if !m.enabled {
		return 0
	}
	return m.reg.Count()
}

// SharedID returns the stable section ID for a label, or -1.
func (m *Monitor) SharedID(label string) int {
	if !m.enabled {
		return -1
	}
	return m.reg.FindShared(label)
}

// SectionLabel returns the label registered under a shared section ID.
func (m *Monitor) SectionLabel(id int) (string, bool) {
	if !m.enabled {
		return "", false
	}
	return m.reg.Loop(id)
}

// Config exposes the resolved configuration.
func (m *Monitor) Config() *config.Config { return m.cfg }
