// Package power adapts node power telemetry and control. The telemetry
// back-end is an external collaborator; this package specifies its
// interface, selects the measured part list per chooser level, and
// accumulates per-section energy.
package power

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"

	"pmlib/internal/config"
)

// Knob identifies a node power control.
type Knob int

const (
	KnobCPUFreq Knob = iota
	KnobMemoryThrottle
	KnobIssue
	KnobPipe
	KnobEco
)

var knobNames = map[Knob]string{
	KnobCPUFreq:        "CPU_FREQ",
	KnobMemoryThrottle: "MEMORY_THROTTLE",
	KnobIssue:          "ISSUE",
	KnobPipe:           "PIPE",
	KnobEco:            "ECO",
}

// knobValues lists the accepted settings per knob.
var knobValues = map[Knob][]int{
	KnobCPUFreq:        {2000, 2200},
	KnobMemoryThrottle: {0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	KnobIssue:          {2, 4},
	KnobPipe:           {1, 2},
	KnobEco:            {0, 1, 2},
}

func (k Knob) String() string {
	if name, ok := knobNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KNOB(%d)", int(k))
}

// Backend is the power telemetry and control collaborator.
type Backend interface {
	// ReadEnergy snapshots cumulative joules, one value per part.
	ReadEnergy(parts []string, out []float64) error
	GetKnob(k Knob) (int, error)
	SetKnob(k Knob, v int) error
}

// partsFor maps chooser levels onto the measured part lists.
var partsFor = map[config.PowerChooser][]string{
	config.PowerOff:  nil,
	config.PowerNode: {"total"},
	config.PowerNuma: {"cmg0", "cmg1", "cmg2", "cmg3"},
	config.PowerParts: {
		"total", "cpu", "memory",
		"cmg0", "cmg1", "cmg2", "cmg3",
		"l2cache", "interconnect", "uncore",
	},
}

// PartsFor returns the part names measured at a chooser level.
func PartsFor(level config.PowerChooser) []string {
	return append([]string(nil), partsFor[level]...)
}

// Meter is the per-process power measurement context. A nil Meter is a
// valid no-op, used when POWER_CHOOSER=OFF.
type Meter struct {
	backend  Backend
	parts    []string
	disabled bool
}

// NewMeter builds the meter for a chooser level. A backend failure at
// creation disables power measurement and the run continues.
func NewMeter(level config.PowerChooser, backend Backend) *Meter {
	if level == config.PowerOff || backend == nil {
		return nil
	}
	m := &Meter{backend: backend, parts: PartsFor(level)}
	probe := make([]float64, len(m.parts))
	if err := backend.ReadEnergy(m.parts, probe); err != nil {
		slog.Warn("power telemetry unavailable, power measurement disabled",
			slog.String("error", err.Error()))
		m.disabled = true
	}
	return m
}

// NumParts returns the measured part count, 0 for a nil or disabled meter.
func (m *Meter) NumParts() int {
	if m == nil || m.disabled {
		return 0
	}
	return len(m.parts)
}

// Parts returns the measured part names.
func (m *Meter) Parts() []string {
	if m == nil || m.disabled {
		return nil
	}
	return append([]string(nil), m.parts...)
}

// Read snapshots cumulative joules into out. Failures zero-fill; power
// degradation never stops the measurement.
func (m *Meter) Read(out []float64) {
	for i := range out {
		out[i] = 0
	}
	if m == nil || m.disabled {
		return
	}
	if err := m.backend.ReadEnergy(m.parts, out); err != nil {
		slog.Warn("power read failed, energy reported as zero", slog.String("error", err.Error()))
		for i := range out {
			out[i] = 0
		}
	}
}

// GetKnob reads a power control setting through the backend.
func (m *Meter) GetKnob(k Knob) (int, error) {
	if m == nil || m.disabled {
		return 0, fmt.Errorf("power control is not active")
	}
	if _, ok := knobValues[k]; !ok {
		return 0, fmt.Errorf("unknown power knob: %d", int(k))
	}
	return m.backend.GetKnob(k)
}

// SetKnob validates and applies a power control setting.
func (m *Meter) SetKnob(k Knob, v int) error {
	if m == nil || m.disabled {
		return fmt.Errorf("power control is not active")
	}
	allowed, ok := knobValues[k]
	if !ok {
		return fmt.Errorf("unknown power knob: %d", int(k))
	}
	valid := false
	for _, a := range allowed {
		if a == v {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("value %d is not accepted for %s (accepted: %v)", v, k, allowed)
	}
	return m.backend.SetKnob(k, v)
}

// StubBackend is an in-memory power collaborator: zero energy, knob
// table with defaults. It keeps the power path exercised on machines
// without a power API.
type StubBackend struct {
	knobs map[Knob]int
}

// NewStubBackend returns a stub with default knob settings.
func NewStubBackend() *StubBackend {
	return &StubBackend{knobs: map[Knob]int{
		KnobCPUFreq:        2200,
		KnobMemoryThrottle: 0,
		KnobIssue:          4,
		KnobPipe:           2,
		KnobEco:            0,
	}}
}

func (b *StubBackend) ReadEnergy(parts []string, out []float64) error {
	for i := range out {
		out[i] = 0
	}
	return nil
}

func (b *StubBackend) GetKnob(k Knob) (int, error) {
	v, ok := b.knobs[k]
	if !ok {
		return 0, fmt.Errorf("unknown power knob: %d", int(k))
	}
	return v, nil
}

func (b *StubBackend) SetKnob(k Knob, v int) error {
	b.knobs[k] = v
	return nil
}
