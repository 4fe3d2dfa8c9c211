package pmlib

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmlib/internal/comm"
	"pmlib/internal/config"
	"pmlib/internal/hwpc"
)

func testConfig(chooser config.HwpcChooser, threads int) *config.Config {
	return &config.Config{
		Hwpc:          chooser,
		Power:         config.PowerOff,
		Report:        config.ReportBasic,
		NumThreads:    threads,
		ProcsPerNode:  1,
		CounterSource: "soft",
	}
}

func TestSingleSectionSerial(t *testing.T) {
	m, err := Initialize(10, WithConfig(testConfig(config.HwpcUser, 1)))
	require.NoError(t, err)
	m.Start("A")
	time.Sleep(50 * time.Millisecond)
	m.Stop("A", 1e9, 1)

	var buf bytes.Buffer
	require.NoError(t, m.Report(&buf))

	w := m.watches[m.SharedID("A")]
	assert.Equal(t, int64(1), w.Count)
	assert.InDelta(t, 0.050, w.Time, 0.040)
	assert.Equal(t, 1e9, w.Flop)
	// headline rate is the user volume over elapsed time
	rate := w.VSorted[len(w.VSorted)-1]
	assert.InDelta(t, 1e9/w.Time, rate, 1e-3)
	assert.Contains(t, buf.String(), "A")
}

func TestNestedSectionsExclusiveFlags(t *testing.T) {
	m, err := Initialize(4, WithConfig(testConfig(config.HwpcUser, 1)))
	require.NoError(t, err)
	m.Start("outer")
	m.Start("inner")
	m.Stop("inner", 0, 1)
	m.Stop("outer", 0, 1)
	require.NoError(t, m.Report(io.Discard))

	outer := m.watches[m.SharedID("outer")]
	inner := m.watches[m.SharedID("inner")]
	assert.False(t, outer.Exclusive)
	assert.True(t, inner.Exclusive)
}

func TestParallelFanOutRead(t *testing.T) {
	const threads = 4
	backend := hwpc.NewManualBackend()
	m, err := Initialize(4,
		WithConfig(testConfig(config.HwpcCycle, threads)),
		WithCounterBackend(backend))
	require.NoError(t, err)
	for tid := range threads {
		m.rt.Adapter.BindThread(tid)
	}

	m.Start("P")
	m.ParallelRegion(threads, func(th *Thread) {
		backend.Advance(th.ID(), 1e8)
	})
	m.Stop("P", 0, 1)
	require.NoError(t, m.Report(io.Discard))

	w := m.watches[m.SharedID("P")]
	// serial-region bracket captured every thread's counter delta
	assert.InDelta(t, 4e8, w.Accumu[0], 1e-6)
	assert.False(t, w.InParallel)
}

func TestSectionCreatedInParallelRegion(t *testing.T) {
	const threads = 4
	m, err := Initialize(4, WithConfig(testConfig(config.HwpcUser, threads)))
	require.NoError(t, err)

	m.ParallelRegion(threads, func(th *Thread) {
		th.Start("Q")
		th.Stop("Q", 10, 1)
	})
	id := m.SharedID("Q")
	require.GreaterOrEqual(t, id, 0)
	m.MergeThreads(id)
	require.NoError(t, m.Report(io.Discard))

	w := m.watches[id]
	assert.True(t, w.InParallel)
	assert.Equal(t, int64(threads), w.Count)
	assert.Equal(t, float64(threads)*10, w.Flop)
}

func TestMisPairRecoveryAtReport(t *testing.T) {
	m, err := Initialize(4, WithConfig(testConfig(config.HwpcUser, 1)))
	require.NoError(t, err)
	m.Start("X")
	var buf bytes.Buffer
	require.NoError(t, m.Report(&buf))

	w := m.watches[m.SharedID("X")]
	assert.False(t, w.Started())
	assert.False(t, m.rootActive)
	assert.Contains(t, buf.String(), "force-stopped")
}

func TestReportIdempotent(t *testing.T) {
	m, err := Initialize(4, WithConfig(testConfig(config.HwpcUser, 1)))
	require.NoError(t, err)
	m.Start("A")
	m.Stop("A", 5e6, 2)
	require.NoError(t, m.Report(io.Discard))

	w := m.watches[m.SharedID("A")]
	count, elapsed, flop := w.Count, w.Time, w.Flop
	rootTime := m.watches[0].Time

	require.NoError(t, m.Report(io.Discard))
	assert.Equal(t, count, w.Count)
	assert.Equal(t, elapsed, w.Time)
	assert.Equal(t, flop, w.Flop)
	assert.Equal(t, rootTime, m.watches[0].Time)
}

func TestRegistryCompleteAfterReport(t *testing.T) {
	m, err := Initialize(4, WithConfig(testConfig(config.HwpcUser, 2)))
	require.NoError(t, err)
	m.ParallelRegion(2, func(th *Thread) {
		if th.ID() == 1 {
			th.Start("only-on-thread-1")
			th.Stop("only-on-thread-1", 0, 1)
		}
	})
	require.NoError(t, m.Report(io.Discard))
	assert.Equal(t, m.reg.Count(), m.reg.LocalCount(0))
	assert.True(t, m.watches[m.SharedID("only-on-thread-1")].InParallel)
}

func TestTwoProcessGather(t *testing.T) {
	members := comm.NewGroup(2)
	monitors := make([]*Monitor, 2)
	var wg sync.WaitGroup
	for rank := range 2 {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			m, err := Initialize(4,
				WithConfig(testConfig(config.HwpcUser, 1)),
				WithComm(members[rank]))
			require.NoError(t, err)
			m.SetProperties("R", Comm, true)
			m.Start("R")
			time.Sleep(time.Duration(5*(rank+1)) * time.Millisecond)
			m.Stop("R", 0, 1)
			require.NoError(t, m.Report(io.Discard))
			monitors[rank] = m
		}(rank)
	}
	wg.Wait()

	w := monitors[0].watches[monitors[0].SharedID("R")]
	require.Len(t, w.TimeArray, 2)
	assert.NotEqual(t, w.TimeArray[0], w.TimeArray[1])
	assert.Equal(t, max(w.TimeArray[0], w.TimeArray[1]), w.TimeComm)
	assert.Equal(t, int64(2), w.CountSum)
}

func TestBypassMakesAllCallsNoOps(t *testing.T) {
	cfg := testConfig(config.HwpcUser, 1)
	cfg.Bypass = true
	m, err := Initialize(4, WithConfig(cfg))
	require.NoError(t, err)
	m.Start("A")
	m.Stop("A", 1, 1)
	m.Reset("A")
	m.ResetAll()
	m.MergeThreads(0)
	assert.Zero(t, m.SectionCount())
	assert.NoError(t, m.Report(io.Discard))
	assert.NoError(t, m.PostTrace())
	_, err = m.GetPowerKnob(0)
	assert.Error(t, err)
}

func TestResetNeverTouchesRoot(t *testing.T) {
	m, err := Initialize(4, WithConfig(testConfig(config.HwpcUser, 1)))
	require.NoError(t, err)
	m.Start("A")
	m.Stop("A", 1, 1)
	m.Reset(RootLabel)
	m.ResetAll()
	a := m.watches[m.SharedID("A")]
	count, _, _ := a.ThreadStats(0)
	assert.Zero(t, count)
	assert.True(t, m.watches[0].Started())
}

func TestUnknownLabelStopWarnsAndContinues(t *testing.T) {
	m, err := Initialize(4, WithConfig(testConfig(config.HwpcUser, 1)))
	require.NoError(t, err)
	m.Stop("never-started", 0, 1)
	assert.Equal(t, 1, m.SectionCount()) // only Root
}

func TestSaveLoadStateAcrossMonitors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoff")
	m1, err := Initialize(4, WithConfig(testConfig(config.HwpcUser, 1)))
	require.NoError(t, err)
	m1.Start("S")
	require.NoError(t, m1.SaveState(path))
	startTime, _ := m1.watches[m1.SharedID("S")].StartSnapshot()

	m2, err := Initialize(4, WithConfig(testConfig(config.HwpcUser, 1)))
	require.NoError(t, err)
	require.NoError(t, m2.LoadState(path))
	w := m2.watches[m2.SharedID("S")]
	assert.True(t, w.Started())
	restored, _ := w.StartSnapshot()
	assert.InDelta(t, startTime, restored, 1e-6)

	time.Sleep(5 * time.Millisecond)
	m2.Stop("S", 0, 1)
	count, elapsed, _ := w.ThreadStats(0)
	assert.Equal(t, int64(1), count)
	assert.Greater(t, elapsed, 0.004)
}

func TestPowerKnobsThroughMonitor(t *testing.T) {
	cfg := testConfig(config.HwpcUser, 1)
	cfg.Power = config.PowerNode
	m, err := Initialize(4, WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, m.SetPowerKnob(0, 2000))
	v, err := m.GetPowerKnob(0)
	require.NoError(t, err)
	assert.Equal(t, 2000, v)
}
