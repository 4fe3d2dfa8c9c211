//go:build linux

package hwpc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// NewPlatformBackend returns the native counter source for this
// platform: perf_event_open on Linux.
func NewPlatformBackend() Backend { return NewPerfBackend() }
