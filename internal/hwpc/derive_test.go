package hwpc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmlib/internal/config"
)

func TestEventsForDedup(t *testing.T) {
	events := EventsFor(config.HwpcCache)
	seen := map[int]bool{}
	for _, ev := range events {
		assert.False(t, seen[ev.ID], "duplicate event %s", ev.Name)
		seen[ev.ID] = true
	}
	assert.Len(t, events, 5)
}

func TestPresetHeadlineIsLastSlot(t *testing.T) {
	for _, chooser := range []config.HwpcChooser{
		config.HwpcFlops, config.HwpcBandwidth, config.HwpcVector,
		config.HwpcCache, config.HwpcCycle, config.HwpcLoadStore,
	} {
		p, err := NewPreset(chooser)
		require.NoError(t, err, string(chooser))
		require.NotEmpty(t, p.Slots, string(chooser))
		assert.NotEmpty(t, p.Unit, string(chooser))
		names := p.SlotNames()
		assert.Equal(t, len(p.Slots), len(names))
		// the headline slot carries the preset's unit
		assert.Contains(t, names[len(names)-1], p.Unit, string(chooser))
	}
}

func TestUserPreset(t *testing.T) {
	p, err := NewPreset(config.HwpcUser)
	require.NoError(t, err)
	assert.True(t, p.UserMode())
	assert.Empty(t, p.Events)
	assert.Equal(t, userSlots, p.NumSorted())
	assert.Nil(t, p.Sort([]float64{}, 1.0, 1))
}

func TestSortFlops(t *testing.T) {
	p, err := NewPreset(config.HwpcFlops)
	require.NoError(t, err)
	// FP_OPS=1e9, SP_OPS=2e8, DP_OPS=3e8 over 2 seconds
	sorted := p.Sort([]float64{1e9, 2e8, 3e8}, 2.0, 4)
	require.Len(t, sorted, len(p.Slots))
	assert.InDelta(t, 5e8, sorted[0], 1)  // HP_OPS
	assert.InDelta(t, 2e8, sorted[1], 1)  // SP_OPS
	assert.InDelta(t, 3e8, sorted[2], 1)  // DP_OPS
	assert.InDelta(t, 1e9, sorted[3], 1)  // Total_FP
	assert.InDelta(t, 5e8, sorted[5], 1)  // [Flops] = 1e9 / 2s
	if CorePeakFlops() > 0 {
		assert.Greater(t, sorted[4], 0.0)
		assert.LessOrEqual(t, sorted[4], 100.0)
	}
}

func TestSortBandwidth(t *testing.T) {
	p, err := NewPreset(config.HwpcBandwidth)
	require.NoError(t, err)
	// L2_HIT=100, L3_HIT=50, L3_MISS=25 over 1 second
	sorted := p.Sort([]float64{100, 50, 25}, 1.0, 1)
	require.Len(t, sorted, 5)
	assert.InDelta(t, 6400, sorted[0], 0.01)
	assert.InDelta(t, 3200, sorted[1], 0.01)
	assert.InDelta(t, 1600, sorted[2], 0.01)
	assert.InDelta(t, 11200, sorted[3], 0.01) // [Bytes]
	assert.InDelta(t, 11200, sorted[4], 0.01) // [B/s]
}

func TestSortVectorFraction(t *testing.T) {
	p, err := NewPreset(config.HwpcVector)
	require.NoError(t, err)
	sorted := p.Sort([]float64{250, 750}, 0.5, 1)
	assert.InDelta(t, 1000, sorted[2], 0.01) // Total_FP
	assert.InDelta(t, 75.0, sorted[3], 0.01) // [%Vec]
	assert.InDelta(t, 2000, sorted[4], 0.01) // [Flops]
}

func TestSortCacheHitRatio(t *testing.T) {
	p, err := NewPreset(config.HwpcCache)
	require.NoError(t, err)
	// LD=600 SR=400, L1=500 L2=300 L3=100 -> 90% hits
	sorted := p.Sort([]float64{600, 400, 500, 300, 100}, 1.0, 1)
	assert.InDelta(t, 90.0, sorted[5], 0.01)
}

func TestSortCycle(t *testing.T) {
	p, err := NewPreset(config.HwpcCycle)
	require.NoError(t, err)
	sorted := p.Sort([]float64{4e9, 8e9}, 1.0, 4)
	assert.InDelta(t, 1e9, sorted[2], 1)   // Cyc/thread
	assert.InDelta(t, 2.0, sorted[3], 1e-9) // [Ins/cyc]
}

func TestSortLoadStore(t *testing.T) {
	p, err := NewPreset(config.HwpcLoadStore)
	require.NoError(t, err)
	sorted := p.Sort([]float64{700, 300, 500}, 2.0, 1)
	assert.InDelta(t, 1000, sorted[3], 0.01) // Total_LDST
	assert.InDelta(t, 50.0, sorted[4], 0.01) // [%Vec]
	assert.InDelta(t, 500, sorted[5], 0.01)  // [LdSt/s]
}

func TestSortZeroTimeAndZeroCounts(t *testing.T) {
	p, err := NewPreset(config.HwpcCache)
	require.NoError(t, err)
	sorted := p.Sort([]float64{0, 0, 0, 0, 0}, 0.0, 1)
	for i, v := range sorted {
		assert.Zero(t, v, "slot %d", i)
	}
}
