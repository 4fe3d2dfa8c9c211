//go:build linux

package hwpc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// perf_event_open counter source. Each thread context is a set of fds
// counting the calling task across all CPUs; events without a portable
// perf encoding fail the bind and degrade that chooser to zero values.

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	cacheL1DReadAccess = unix.PERF_COUNT_HW_CACHE_L1D |
		unix.PERF_COUNT_HW_CACHE_OP_READ<<8 |
		unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS<<16
	cacheL1DWriteAccess = unix.PERF_COUNT_HW_CACHE_L1D |
		unix.PERF_COUNT_HW_CACHE_OP_WRITE<<8 |
		unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS<<16
	cacheLLReadAccess = unix.PERF_COUNT_HW_CACHE_LL |
		unix.PERF_COUNT_HW_CACHE_OP_READ<<8 |
		unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS<<16
	cacheLLReadMiss = unix.PERF_COUNT_HW_CACHE_LL |
		unix.PERF_COUNT_HW_CACHE_OP_READ<<8 |
		unix.PERF_COUNT_HW_CACHE_RESULT_MISS<<16
)

// perfEncoding maps library events onto perf_event_attr type/config
// pairs. Events absent here have no portable encoding.
var perfEncoding = map[int]struct {
	typ    uint32
	config uint64
}{
	EvTotCyc:   {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES},
	EvTotIns:   {unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS},
	EvL3Hit:    {unix.PERF_TYPE_HW_CACHE, cacheLLReadAccess},
	EvL3Miss:   {unix.PERF_TYPE_HW_CACHE, cacheLLReadMiss},
	EvL1Hit:    {unix.PERF_TYPE_HW_CACHE, cacheL1DReadAccess},
	EvLoadIns:  {unix.PERF_TYPE_HW_CACHE, cacheL1DReadAccess},
	EvStoreIns: {unix.PERF_TYPE_HW_CACHE, cacheL1DWriteAccess},
	EvL2Hit:    {unix.PERF_TYPE_HW_CACHE, cacheLLReadAccess},
}

// PerfBackend reads Linux perf events for the calling task.
type PerfBackend struct {
	mu  sync.Mutex
	fds map[int][]int
}

// NewPerfBackend returns an unbound perf_event_open counter source.
func NewPerfBackend() *PerfBackend {
	return &PerfBackend{fds: make(map[int][]int)}
}

func (b *PerfBackend) Name() string { return "perf_event" }

func (b *PerfBackend) AddEvents(tid int, events []Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.fds[tid]; ok {
		return nil
	}
	fds := make([]int, 0, len(events))
	for _, ev := range events {
		enc, ok := perfEncoding[ev.ID]
		if !ok {
			closeAll(fds)
			return fmt.Errorf("event %s has no perf encoding", ev.Name)
		}
		attr := unix.PerfEventAttr{
			Type:   enc.typ,
			Size:   uint32(perfAttrSize),
			Config: enc.config,
		}
		fd, err := unix.PerfEventOpen(&attr, 0, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			closeAll(fds)
			return fmt.Errorf("perf_event_open failed for %s: %v", ev.Name, err)
		}
		fds = append(fds, fd)
	}
	b.fds[tid] = fds
	return nil
}

const perfAttrSize = unix.PERF_ATTR_SIZE_VER5

func closeAll(fds []int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}

func (b *PerfBackend) Read(tid int, out []int64) error {
	b.mu.Lock()
	fds, ok := b.fds[tid]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("no counter context bound to thread %d", tid)
	}
	var buf [8]byte
	for i := range out {
		if i >= len(fds) {
			out[i] = 0
			continue
		}
		n, err := unix.Read(fds[i], buf[:])
		if err != nil || n != 8 {
			return fmt.Errorf("failed to read counter %d on thread %d: %v", i, tid, err)
		}
		out[i] = int64(binary.LittleEndian.Uint64(buf[:]))
	}
	return nil
}

// Start and Stop read-through; the fds are opened counting and stay
// counting so that inclusive sections observe continuous values.
func (b *PerfBackend) Start(tid int, out []int64) error { return b.Read(tid, out) }
func (b *PerfBackend) Stop(tid int, out []int64) error  { return b.Read(tid, out) }

// Close releases all counter fds.
func (b *PerfBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for tid, fds := range b.fds {
		closeAll(fds)
		delete(b.fds, tid)
	}
}
