package hwpc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"sync"

	"pmlib/internal/timer"
)

// Backend is the raw counter source. One counter context exists per
// thread; values are cumulative and monotone. Read never clears
// counters; Start and Stop exist for backends that need explicit control
// but must leave the counters running.
type Backend interface {
	Name() string
	AddEvents(tid int, events []Event) error
	Read(tid int, out []int64) error
	Start(tid int, out []int64) error
	Stop(tid int, out []int64) error
}

// SoftBackend synthesizes monotone counter values from the wall clock.
// It stands in when no PMU access is available so that the measurement
// pipeline stays exercised end to end.
type SoftBackend struct {
	mu     sync.Mutex
	events map[int][]Event
}

// NewSoftBackend returns an empty software counter source.
func NewSoftBackend() *SoftBackend {
	return &SoftBackend{events: make(map[int][]Event)}
}

func (b *SoftBackend) Name() string { return "soft" }

func (b *SoftBackend) AddEvents(tid int, events []Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[tid] = append([]Event(nil), events...)
	return nil
}

func (b *SoftBackend) Read(tid int, out []int64) error {
	b.mu.Lock()
	events, ok := b.events[tid]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("no counter context bound to thread %d", tid)
	}
	now := timer.Now()
	for i := range out {
		if i >= len(events) {
			out[i] = 0
			continue
		}
		// per-event synthetic rate keeps deltas positive and distinct
		rate := float64(events[i].ID+1) * 1.0e7
		out[i] = int64(now * rate)
	}
	return nil
}

func (b *SoftBackend) Start(tid int, out []int64) error { return b.Read(tid, out) }
func (b *SoftBackend) Stop(tid int, out []int64) error  { return b.Read(tid, out) }

// ManualBackend holds explicitly set counter values. It is the
// deterministic source used by tests.
type ManualBackend struct {
	mu     sync.Mutex
	events map[int][]Event
	values map[int][]int64
}

// NewManualBackend returns a manual counter source with all values zero.
func NewManualBackend() *ManualBackend {
	return &ManualBackend{
		events: make(map[int][]Event),
		values: make(map[int][]int64),
	}
}

func (b *ManualBackend) Name() string { return "manual" }

func (b *ManualBackend) AddEvents(tid int, events []Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[tid] = append([]Event(nil), events...)
	if _, ok := b.values[tid]; !ok {
		b.values[tid] = make([]int64, len(events))
	}
	return nil
}

// Set assigns the current value of one event counter on one thread.
func (b *ManualBackend) Set(tid, eventIdx int, value int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if vals, ok := b.values[tid]; ok && eventIdx < len(vals) {
		vals[eventIdx] = value
	}
}

// Advance adds delta to every event counter of one thread.
func (b *ManualBackend) Advance(tid int, delta int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.values[tid] {
		b.values[tid][i] += delta
	}
}

func (b *ManualBackend) Read(tid int, out []int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vals, ok := b.values[tid]
	if !ok {
		return fmt.Errorf("no counter context bound to thread %d", tid)
	}
	for i := range out {
		if i < len(vals) {
			out[i] = vals[i]
		} else {
			out[i] = 0
		}
	}
	return nil
}

func (b *ManualBackend) Start(tid int, out []int64) error { return b.Read(tid, out) }
func (b *ManualBackend) Stop(tid int, out []int64) error  { return b.Read(tid, out) }
