package hwpc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// chooser presets: each sorted-vector slot is an expression over the raw
// event names plus the reserved variables time, rate, threads and
// core_peak. Expressions are parsed once at preset construction.

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/casbin/govaluate"

	"pmlib/internal/config"
	"pmlib/internal/timer"
)

// flopsPerCycle is the per-core FP width assumed for the peak-ratio slot
// (two 512-bit FMA pipes of doubles).
const flopsPerCycle = 32.0

// SlotDef defines one slot of the derived metric vector.
type SlotDef struct {
	Name       string
	Expression string
	evaluable  *govaluate.EvaluableExpression
}

// Preset binds a chooser to its raw event set and derivation rules. The
// last slot is always the headline rate carrying Unit.
type Preset struct {
	Chooser config.HwpcChooser
	Events  []Event
	Slots   []SlotDef
	Unit    string
	// SharedPerCMG marks event sets counted once per core-memory group
	// rather than per core; their process aggregation is prorated.
	SharedPerCMG bool

	volumeSlots []int
}

// UserMode reports whether the preset measures nothing and relies on
// user-declared volumes.
func (p *Preset) UserMode() bool { return p.Chooser == config.HwpcUser }

// NumSorted is the derived vector length.
func (p *Preset) NumSorted() int {
	if p.UserMode() {
		return userSlots
	}
	return len(p.Slots)
}

// userSlots is the USER-mode vector layout: calls, time, operations and
// the headline rate.
const userSlots = 4

var presetSlots = map[config.HwpcChooser]struct {
	slots  []SlotDef
	unit   string
	shared bool
	volume []int
}{
	config.HwpcFlops: {
		slots: []SlotDef{
			{Name: "HP_OPS", Expression: "FP_OPS - SP_OPS - DP_OPS"},
			{Name: "SP_OPS", Expression: "SP_OPS"},
			{Name: "DP_OPS", Expression: "DP_OPS"},
			{Name: "Total_FP", Expression: "FP_OPS"},
			{Name: "[%Peak]", Expression: "core_peak > 0 ? (FP_OPS * rate) / (core_peak * threads) * 100.0 : 0.0"},
			{Name: "[Flops]", Expression: "FP_OPS * rate"},
		},
		unit:   "Flops",
		volume: []int{3},
	},
	config.HwpcBandwidth: {
		slots: []SlotDef{
			{Name: "L2$ [B/s]", Expression: "L2_HIT * 64.0 * rate"},
			{Name: "L3$ [B/s]", Expression: "L3_HIT * 64.0 * rate"},
			{Name: "Mem [B/s]", Expression: "L3_MISS * 64.0 * rate"},
			{Name: "[Bytes]", Expression: "(L2_HIT + L3_HIT + L3_MISS) * 64.0"},
			{Name: "[B/s]", Expression: "(L2_HIT + L3_HIT + L3_MISS) * 64.0 * rate"},
		},
		unit:   "B/s",
		shared: true,
		volume: []int{3},
	},
	config.HwpcVector: {
		slots: []SlotDef{
			{Name: "FP_SCALAR", Expression: "FP_SCALAR"},
			{Name: "FP_VECTOR", Expression: "FP_VECTOR"},
			{Name: "Total_FP", Expression: "FP_SCALAR + FP_VECTOR"},
			{Name: "[%Vec]", Expression: "(FP_SCALAR + FP_VECTOR) > 0 ? FP_VECTOR / (FP_SCALAR + FP_VECTOR) * 100.0 : 0.0"},
			{Name: "[Flops]", Expression: "(FP_SCALAR + FP_VECTOR) * rate"},
		},
		unit:   "Flops",
		volume: []int{2},
	},
	config.HwpcCache: {
		slots: []SlotDef{
			{Name: "LD_INS", Expression: "LD_INS"},
			{Name: "SR_INS", Expression: "SR_INS"},
			{Name: "L1_HIT", Expression: "L1_HIT"},
			{Name: "L2_HIT", Expression: "L2_HIT"},
			{Name: "L3_HIT", Expression: "L3_HIT"},
			{Name: "[L$ hit%]", Expression: "(LD_INS + SR_INS) > 0 ? (L1_HIT + L2_HIT + L3_HIT) / (LD_INS + SR_INS) * 100.0 : 0.0"},
		},
		unit:   "%",
		volume: []int{2, 3, 4},
	},
	config.HwpcCycle: {
		slots: []SlotDef{
			{Name: "TOT_CYC", Expression: "TOT_CYC"},
			{Name: "TOT_INS", Expression: "TOT_INS"},
			{Name: "Cyc/thread", Expression: "threads > 0 ? TOT_CYC / threads : 0.0"},
			{Name: "[Ins/cyc]", Expression: "TOT_CYC > 0 ? TOT_INS / TOT_CYC : 0.0"},
		},
		unit:   "Ins/cyc",
		volume: []int{1},
	},
	config.HwpcLoadStore: {
		slots: []SlotDef{
			{Name: "LD_INS", Expression: "LD_INS"},
			{Name: "SR_INS", Expression: "SR_INS"},
			{Name: "SIMD_LDST", Expression: "SIMD_LDST"},
			{Name: "Total_LDST", Expression: "LD_INS + SR_INS"},
			{Name: "[%Vec]", Expression: "(LD_INS + SR_INS) > 0 ? SIMD_LDST / (LD_INS + SR_INS) * 100.0 : 0.0"},
			{Name: "[LdSt/s]", Expression: "(LD_INS + SR_INS) * rate"},
		},
		unit:   "LdSt/s",
		volume: []int{3},
	},
	config.HwpcUser: {unit: "Flops"},
}

// NewPreset builds the preset for a chooser with expressions parsed once.
func NewPreset(chooser config.HwpcChooser) (*Preset, error) {
	def, ok := presetSlots[chooser]
	if !ok {
		return nil, fmt.Errorf("unknown chooser: %s", chooser)
	}
	p := &Preset{
		Chooser:      chooser,
		Events:       EventsFor(chooser),
		Unit:         def.unit,
		SharedPerCMG: def.shared,
		volumeSlots:  def.volume,
	}
	for _, s := range def.slots {
		ev, err := govaluate.NewEvaluableExpression(s.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to parse slot expression %q: %v", s.Expression, err)
		}
		s.evaluable = ev
		p.Slots = append(p.Slots, s)
	}
	return p, nil
}

// Sort computes the derived metric vector from accumulated event values.
// elapsed is the section's accumulated time; threads the thread count the
// values cover. A slot whose evaluation fails logs a warning and yields
// zero, the measurement continues.
func (p *Preset) Sort(accumu []float64, elapsed float64, threads int) []float64 {
	if p.UserMode() {
		return nil
	}
	rate := 0.0
	if elapsed > 0 {
		rate = 1.0 / elapsed
	}
	params := map[string]any{
		"time":      elapsed,
		"rate":      rate,
		"threads":   float64(threads),
		"core_peak": CorePeakFlops(),
	}
	for i, ev := range p.Events {
		v := 0.0
		if i < len(accumu) {
			v = accumu[i]
		}
		params[ev.Name] = v
	}
	sorted := make([]float64, len(p.Slots))
	for i, slot := range p.Slots {
		result, err := slot.evaluable.Evaluate(params)
		if err != nil {
			slog.Warn("slot evaluation failed, reporting zero",
				slog.String("slot", slot.Name), slog.String("error", err.Error()))
			continue
		}
		if f, ok := result.(float64); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
			sorted[i] = f
		}
	}
	return sorted
}

// SlotNames returns the derived vector slot names, USER mode included.
func (p *Preset) SlotNames() []string {
	if p.UserMode() {
		return []string{"calls", "time[s]", "operations", "[rate]"}
	}
	names := make([]string, len(p.Slots))
	for i, s := range p.Slots {
		names[i] = s.Name
	}
	return names
}

// Volume extracts the counted work volume (operations, bytes or hits)
// from a derived vector; it feeds the cross-process flop statistics.
func (p *Preset) Volume(sorted []float64) float64 {
	var v float64
	for _, idx := range p.volumeSlots {
		if idx < len(sorted) {
			v += sorted[idx]
		}
	}
	return v
}

// CorePeakFlops is the single-core peak FP rate used by the peak-ratio
// slot. Zero when the clock frequency is unknown.
func CorePeakFlops() float64 {
	return timer.FrequencyHz() * flopsPerCycle
}
