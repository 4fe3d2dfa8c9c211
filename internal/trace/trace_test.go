package trace

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRecorderRoundTrip(t *testing.T) {
	base := filepath.Join(t.TempDir(), "run")
	r := NewFileRecorder(base, 0, 2)
	r.DefineSection(1, "kernel", true)
	r.DefineSection(1, "kernel", true) // duplicate define is dropped
	r.Start(0.5, 1)
	r.Stop(1.5, 1, 2.0e9)
	require.NoError(t, r.Finalize("HWPC measured values", "Flops"))

	events, err := os.ReadFile(base + ".0.events")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(events)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "def 1 exclusive=true kernel")
	assert.True(t, strings.HasPrefix(lines[1], "start 0.5"))
	assert.True(t, strings.HasPrefix(lines[2], "stop 1.5"))

	index, err := os.ReadFile(base + ".index")
	require.NoError(t, err)
	assert.Contains(t, string(index), "ranks 2")
	assert.Contains(t, string(index), "unit Flops")
}

func TestNonZeroRankWritesNoIndex(t *testing.T) {
	base := filepath.Join(t.TempDir(), "run")
	r := NewFileRecorder(base, 1, 2)
	r.Start(0.1, 0)
	require.NoError(t, r.Finalize("g", "u"))
	_, err := os.Stat(base + ".index")
	assert.True(t, os.IsNotExist(err))
}

func TestFinalizeIdempotent(t *testing.T) {
	base := filepath.Join(t.TempDir(), "run")
	r := NewFileRecorder(base, 0, 1)
	require.NoError(t, r.Finalize("g", "u"))
	require.NoError(t, r.Finalize("g", "u"))
	r.Start(1.0, 0) // after finalize: dropped, no panic
}

func TestBrokenRecorderIsNoOp(t *testing.T) {
	r := NewFileRecorder("/nonexistent-dir/run", 0, 1)
	r.DefineSection(0, "x", false)
	r.Start(0, 0)
	r.Stop(1, 0, 0)
	assert.NoError(t, r.Finalize("g", "u"))
}
