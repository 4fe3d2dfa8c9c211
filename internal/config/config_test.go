package config

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("HWPC_CHOOSER", "")
	t.Setenv("POWER_CHOOSER", "")
	t.Setenv("PMLIB_REPORT", "")
	t.Setenv("OTF_TRACING", "")
	t.Setenv("BYPASS_PMLIB", "")
	cfg := FromEnv()
	assert.Equal(t, HwpcFlops, cfg.Hwpc)
	assert.Equal(t, PowerOff, cfg.Power)
	assert.Equal(t, ReportBasic, cfg.Report)
	assert.Equal(t, TraceOff, cfg.Trace)
	assert.False(t, cfg.Bypass)
	assert.GreaterOrEqual(t, cfg.NumThreads, 1)
}

func TestChooserParsing(t *testing.T) {
	t.Setenv("HWPC_CHOOSER", "bandwidth")
	t.Setenv("POWER_CHOOSER", "NUMA")
	t.Setenv("PMLIB_REPORT", "FULL")
	t.Setenv("OTF_TRACING", "ON")
	cfg := FromEnv()
	assert.Equal(t, HwpcBandwidth, cfg.Hwpc)
	assert.Equal(t, PowerNuma, cfg.Power)
	assert.Equal(t, ReportFull, cfg.Report)
	assert.Equal(t, TraceOn, cfg.Trace)
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("HWPC_CHOOSER", "GIGAWATTS")
	t.Setenv("POWER_CHOOSER", "MAX")
	t.Setenv("PMLIB_REPORT", "VERBOSE")
	t.Setenv("OTF_TRACING", "MAYBE")
	cfg := FromEnv()
	assert.Equal(t, HwpcFlops, cfg.Hwpc)
	assert.Equal(t, PowerOff, cfg.Power)
	assert.Equal(t, ReportBasic, cfg.Report)
	assert.Equal(t, TraceOff, cfg.Trace)
}

func TestBypass(t *testing.T) {
	t.Setenv("BYPASS_PMLIB", "1")
	cfg := FromEnv()
	assert.True(t, cfg.Bypass)
}

func TestThreadCountFromEnv(t *testing.T) {
	t.Setenv("OMP_NUM_THREADS", "7")
	cfg := FromEnv()
	assert.Equal(t, 7, cfg.NumThreads)
}

func TestTopologyHints(t *testing.T) {
	t.Setenv("PJM_PROC_BY_NODE", "4")
	t.Setenv("PLE_RANK_ON_NODE", "2")
	cfg := FromEnv()
	assert.True(t, cfg.TopologyHinted)
	assert.Equal(t, 4, cfg.ProcsPerNode)
	assert.Equal(t, 2, cfg.RankOnNode)
}

func TestTopologyOutOfRange(t *testing.T) {
	t.Setenv("PJM_PROC_BY_NODE", "99")
	t.Setenv("PLE_RANK_ON_NODE", "-3")
	cfg := FromEnv()
	assert.Equal(t, 1, cfg.ProcsPerNode)
	assert.Equal(t, 0, cfg.RankOnNode)
}

func TestConfigFileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pmlib.yaml")
	content := "hwpc_chooser: CACHE\nreport: DETAIL\nnum_threads: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("HWPC_CHOOSER", "FLOPS")
	t.Setenv("PMLIB_CONFIG", path)
	cfg := FromEnv()
	assert.Equal(t, HwpcCache, cfg.Hwpc)
	assert.Equal(t, ReportDetail, cfg.Report)
	assert.Equal(t, 3, cfg.NumThreads)
}

func TestConfigFileMissingIgnored(t *testing.T) {
	t.Setenv("PMLIB_CONFIG", "/nonexistent/pmlib.yaml")
	cfg := FromEnv()
	assert.Equal(t, HwpcFlops, cfg.Hwpc)
}
