package hwpc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"sync"

	"pmlib/internal/config"
)

// Adapter owns the per-process counter configuration: one preset, one
// backend, one bound context per thread. Bind failures disable the
// counter feature for that thread; reads then yield zeros and the time
// and call statistics stay valid.
type Adapter struct {
	Preset  *Preset
	backend Backend

	mu       sync.Mutex
	bound    map[int]bool
	degraded map[int]bool
	warned   map[int]bool
}

// NewAdapter configures counting for one process.
func NewAdapter(chooser config.HwpcChooser, backend Backend) (*Adapter, error) {
	preset, err := NewPreset(chooser)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		backend = NewSoftBackend()
	}
	return &Adapter{
		Preset:   preset,
		backend:  backend,
		bound:    make(map[int]bool),
		degraded: make(map[int]bool),
		warned:   make(map[int]bool),
	}, nil
}

// NumEvents is the raw event count of the active chooser.
func (a *Adapter) NumEvents() int { return len(a.Preset.Events) }

// BackendName identifies the active counter source.
func (a *Adapter) BackendName() string { return a.backend.Name() }

// BindThread binds the event set to a thread's counter context. Safe to
// call repeatedly; a failed bind degrades that thread to zero values.
func (a *Adapter) BindThread(tid int) {
	if a.Preset.UserMode() || len(a.Preset.Events) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bound[tid] || a.degraded[tid] {
		return
	}
	if err := a.backend.AddEvents(tid, a.Preset.Events); err != nil {
		slog.Warn("counter bind failed, thread degraded to zero counter values",
			slog.Int("thread", tid), slog.String("backend", a.backend.Name()),
			slog.String("error", err.Error()))
		a.degraded[tid] = true
		return
	}
	a.bound[tid] = true
}

// ReadThread snapshots the thread's counters without clearing them.
// Degraded threads read as zeros; the first failure per thread warns.
func (a *Adapter) ReadThread(tid int, out []int64) {
	for i := range out {
		out[i] = 0
	}
	if a.Preset.UserMode() || len(a.Preset.Events) == 0 {
		return
	}
	a.BindThread(tid)
	a.mu.Lock()
	degraded := a.degraded[tid]
	a.mu.Unlock()
	if degraded {
		return
	}
	if err := a.backend.Read(tid, out); err != nil {
		a.mu.Lock()
		if !a.warned[tid] {
			a.warned[tid] = true
			slog.Warn("counter read failed, values reported as zero",
				slog.Int("thread", tid), slog.String("error", err.Error()))
		}
		a.mu.Unlock()
		for i := range out {
			out[i] = 0
		}
	}
}
