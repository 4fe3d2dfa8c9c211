package watch

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmlib/internal/comm"
	"pmlib/internal/config"
)

func TestGatherSingleProcess(t *testing.T) {
	rt, _ := testRuntime(t, config.HwpcUser, 1)
	w := New("A", 0, rt)
	w.Start(0, false)
	w.Stop(0, false, 3e8, 1)
	s := NewScratch(1, w.NumEvents(), w.NumSorted())
	mergeThreePhases(w, s, 1)
	w.SortCounters()
	require.NoError(t, w.Gather(comm.Self{}))
	w.StatsAverage()
	assert.Len(t, w.TimeArray, 1)
	assert.Equal(t, w.Time, w.TimeAv)
	assert.Zero(t, w.TimeSd)
	assert.Equal(t, int64(1), w.CountAv)
	assert.Equal(t, int64(1), w.CountSum)
	assert.Len(t, w.SortedMatrix, w.NumSorted())
}

func TestTwoProcessGatherStats(t *testing.T) {
	members := comm.NewGroup(2)
	watches := make([]*Watch, 2)
	var wg sync.WaitGroup
	for rank := range 2 {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			rt, _ := testRuntime(t, config.HwpcUser, 1)
			rt.Rank = rank
			w := New("R", 0, rt)
			w.SetProperties(Comm, true)
			w.Start(0, false)
			time.Sleep(time.Duration(5*(rank+1)) * time.Millisecond)
			w.Stop(0, false, 0, 1)
			s := NewScratch(1, w.NumEvents(), w.NumSorted())
			mergeThreePhases(w, s, 1)
			w.SortCounters()
			require.NoError(t, w.Gather(members[rank]))
			w.StatsAverage()
			watches[rank] = w
		}(rank)
	}
	wg.Wait()

	for rank := range 2 {
		w := watches[rank]
		require.Len(t, w.TimeArray, 2)
		assert.NotEqual(t, w.TimeArray[0], w.TimeArray[1])
		mean := (w.TimeArray[0] + w.TimeArray[1]) / 2
		assert.InDelta(t, mean, w.TimeAv, 1e-12)
		d0 := w.TimeArray[0] - mean
		d1 := w.TimeArray[1] - mean
		sd := math.Sqrt(d0*d0 + d1*d1) // sample stddev, n-1 = 1
		assert.InDelta(t, sd, w.TimeSd, 1e-12)
		straggler := math.Max(w.TimeArray[0], w.TimeArray[1])
		assert.Equal(t, straggler, w.TimeComm)
		assert.Equal(t, int64(2), w.CountSum)
		assert.Equal(t, int64(1), w.CountAv)
	}
}

func TestStragglerOnlyForCommSections(t *testing.T) {
	rt, _ := testRuntime(t, config.HwpcUser, 1)
	w := New("A", 0, rt)
	w.SetProperties(Calc, true)
	w.Start(0, false)
	w.Stop(0, false, 0, 1)
	s := NewScratch(1, w.NumEvents(), w.NumSorted())
	mergeThreePhases(w, s, 1)
	w.SortCounters()
	require.NoError(t, w.Gather(comm.Self{}))
	w.StatsAverage()
	assert.Zero(t, w.TimeComm)
}

func TestSortThreadCountersOverwritesScalarSlots(t *testing.T) {
	rt, backend := testRuntime(t, config.HwpcCycle, 1)
	w := New("A", 0, rt)
	rt.Adapter.BindThread(0)
	w.Start(0, false)
	backend.Set(0, 0, 100)
	backend.Set(0, 1, 300)
	w.Stop(0, false, 0, 1)
	s := NewScratch(1, w.NumEvents(), w.NumSorted())
	mergeThreePhases(w, s, 1)
	w.SortThreadCounters()
	assert.InDelta(t, 100, w.ThVSorted[0][0], 1e-9) // TOT_CYC, not call count
	assert.InDelta(t, 3.0, w.ThVSorted[0][3], 1e-9) // [Ins/cyc]
}
