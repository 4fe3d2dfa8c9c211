package hwpc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmlib/internal/config"
)

func thRows(numThreads, numEvents int, fill func(t, e int) float64) [][]float64 {
	th := make([][]float64, numThreads)
	for t := range th {
		th[t] = make([]float64, numEvents)
		for e := range th[t] {
			th[t][e] = fill(t, e)
		}
	}
	return th
}

func TestSumPerCore(t *testing.T) {
	th := thRows(4, 2, func(tid, e int) float64 { return float64(tid + e) })
	accumu := SumPerCore(th, 2)
	assert.InDelta(t, 0+1+2+3, accumu[0], 1e-12)
	assert.InDelta(t, 1+2+3+4, accumu[1], 1e-12)
}

func TestApportionSingleProcessOneCMG(t *testing.T) {
	// 8 threads fit in one CMG: only the leader row counts
	th := thRows(8, 1, func(tid, e int) float64 { return 100 })
	accumu := ApportionCMG(th, 1, 8, 1, 0)
	assert.InDelta(t, 100, accumu[0], 1e-12)
}

func TestApportionSingleProcessThreeCMGs(t *testing.T) {
	// 30 threads span CMGs 0..2: rows 0, 12 and 24 contribute
	th := thRows(30, 1, func(tid, e int) float64 { return float64(tid) })
	accumu := ApportionCMG(th, 1, 30, 1, 0)
	assert.InDelta(t, 0+12+24, accumu[0], 1e-12)
}

func TestApportionThreeProcessesSharedCMG(t *testing.T) {
	// 3 processes, 16 threads each: one CMG is shared three ways
	th := thRows(16, 1, func(tid, e int) float64 { return 60 })
	accumu := ApportionCMG(th, 1, 16, 3, 0)
	// own CMGs 0 and 1 plus a third of the shared reading
	assert.InDelta(t, 60+60+20, accumu[0], 1e-12)
}

func TestApportionManyProcessesCrowdedSlot(t *testing.T) {
	// 6 processes on 4 CMGs: ceil(6/4)=2 sharers on crowded slots
	th := thRows(2, 1, func(tid, e int) float64 { return 100 })
	accumu := ApportionCMG(th, 1, 2, 6, 0)
	assert.InDelta(t, 50, accumu[0], 1e-12) // rank 0 shares with one peer
}

func TestApportionManyProcessesLessCrowdedSlot(t *testing.T) {
	// 6 processes: ranks whose slot exceeds (np-1)%4 own their CMG alone
	th := thRows(2, 1, func(tid, e int) float64 { return 100 })
	accumu := ApportionCMG(th, 1, 2, 6, 2)
	assert.InDelta(t, 100, accumu[0], 1e-12)
}

func TestAggregatePerCoreChooser(t *testing.T) {
	p, err := NewPreset(config.HwpcFlops)
	require.NoError(t, err)
	th := thRows(2, len(p.Events), func(tid, e int) float64 { return 10 })
	accumu := p.Aggregate(th, 2, 1, 0, true)
	for _, v := range accumu {
		assert.InDelta(t, 20, v, 1e-12)
	}
}

func TestAggregateSharedChooserUnhinted(t *testing.T) {
	p, err := NewPreset(config.HwpcBandwidth)
	require.NoError(t, err)
	th := thRows(4, len(p.Events), func(tid, e int) float64 { return 5 })
	accumu := p.Aggregate(th, 4, 7, 3, false)
	// falls back to 1 process/node: one CMG, leader row only
	for _, v := range accumu {
		assert.InDelta(t, 5, v, 1e-12)
	}
}
