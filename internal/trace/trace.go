// Package trace emits per-section start/stop event streams for offline
// timeline analysis. The trace format back-end is an external
// collaborator; the in-tree recorder writes a plain-text event stream
// per rank plus an index written at finalization.
package trace

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Recorder receives measurement events. Implementations must tolerate
// events after a failed setup by turning into no-ops; tracing must never
// stop a measurement run.
type Recorder interface {
	// DefineSection announces a section before its first event.
	DefineSection(id int, label string, exclusive bool)
	// Start records a section start at monotone time t.
	Start(t float64, id int)
	// Stop records a section stop; value carries the headline rate when
	// full tracing is on, zero otherwise.
	Stop(t float64, id int, value float64)
	// Finalize flushes the stream and writes the index. Idempotent.
	Finalize(counterGroup, unit string) error
}

// FileRecorder writes one event file per rank and, on rank 0, an index
// file describing the trace at finalization.
type FileRecorder struct {
	base string
	rank int
	size int

	mu        sync.Mutex
	f         *os.File
	w         *bufio.Writer
	defined   map[int]bool
	finalized bool
	broken    bool
}

// NewFileRecorder opens the per-rank event stream. On failure a warning
// is logged and the recorder degrades to a no-op.
func NewFileRecorder(base string, rank, size int) *FileRecorder {
	r := &FileRecorder{base: base, rank: rank, size: size, defined: make(map[int]bool)}
	path := fmt.Sprintf("%s.%d.events", base, rank)
	f, err := os.Create(path)
	if err != nil {
		slog.Warn("trace file creation failed, tracing disabled",
			slog.String("path", path), slog.String("error", err.Error()))
		r.broken = true
		return r
	}
	r.f = f
	r.w = bufio.NewWriter(f)
	return r
}

func (r *FileRecorder) DefineSection(id int, label string, exclusive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken || r.finalized || r.defined[id] {
		return
	}
	r.defined[id] = true
	fmt.Fprintf(r.w, "def %d exclusive=%t %s\n", id, exclusive, label)
}

func (r *FileRecorder) Start(t float64, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken || r.finalized {
		return
	}
	fmt.Fprintf(r.w, "start %.9f %d\n", t, id)
}

func (r *FileRecorder) Stop(t float64, id int, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken || r.finalized {
		return
	}
	fmt.Fprintf(r.w, "stop %.9f %d %e\n", t, id, value)
}

func (r *FileRecorder) Finalize(counterGroup, unit string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken || r.finalized {
		return nil
	}
	r.finalized = true
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace stream: %v", err)
	}
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("failed to close trace stream: %v", err)
	}
	if r.rank != 0 {
		return nil
	}
	index := fmt.Sprintf("%s.index", r.base)
	content := fmt.Sprintf("ranks %d\ncounter %s\nunit %s\n", r.size, counterGroup, unit)
	if err := os.WriteFile(index, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write trace index: %v", err)
	}
	return nil
}
