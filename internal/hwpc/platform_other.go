//go:build !linux

package hwpc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// NewPlatformBackend returns the native counter source for this
// platform. Without a kernel counter interface the software source
// stands in.
func NewPlatformBackend() Backend { return NewSoftBackend() }
