package hwpc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// raw counter event identities and the per-chooser event sets

import (
	mapset "github.com/deckarep/golang-set/v2"

	"pmlib/internal/config"
)

// Event identifies one raw hardware counter event. The ID is the
// library's stable identity; backends map it onto their own encoding.
type Event struct {
	ID   int
	Name string
}

// Raw event identities. The numbering is stable so that persisted
// snapshots remain comparable across runs.
const (
	EvFpOps = iota
	EvSpOps
	EvDpOps
	EvLoadIns
	EvStoreIns
	EvSimdLdSt
	EvL1Hit
	EvL2Hit
	EvL3Hit
	EvL3Miss
	EvFpScalar
	EvFpVector
	EvTotCyc
	EvTotIns
)

var eventNames = map[int]string{
	EvFpOps:    "FP_OPS",
	EvSpOps:    "SP_OPS",
	EvDpOps:    "DP_OPS",
	EvLoadIns:  "LD_INS",
	EvStoreIns: "SR_INS",
	EvSimdLdSt: "SIMD_LDST",
	EvL1Hit:    "L1_HIT",
	EvL2Hit:    "L2_HIT",
	EvL3Hit:    "L3_HIT",
	EvL3Miss:   "L3_MISS",
	EvFpScalar: "FP_SCALAR",
	EvFpVector: "FP_VECTOR",
	EvTotCyc:   "TOT_CYC",
	EvTotIns:   "TOT_INS",
}

// chooserEvents maps each chooser onto the raw events it programs.
var chooserEvents = map[config.HwpcChooser][]int{
	config.HwpcFlops:     {EvFpOps, EvSpOps, EvDpOps},
	config.HwpcBandwidth: {EvL2Hit, EvL3Hit, EvL3Miss},
	config.HwpcVector:    {EvFpScalar, EvFpVector},
	config.HwpcCache:     {EvLoadIns, EvStoreIns, EvL1Hit, EvL2Hit, EvL3Hit},
	config.HwpcCycle:     {EvTotCyc, EvTotIns},
	config.HwpcLoadStore: {EvLoadIns, EvStoreIns, EvSimdLdSt},
	config.HwpcUser:      {},
}

// EventsFor assembles the deduplicated, order-preserving event list for a
// chooser.
func EventsFor(chooser config.HwpcChooser) []Event {
	ids := chooserEvents[chooser]
	seen := mapset.NewSet[int]()
	events := make([]Event, 0, len(ids))
	for _, id := range ids {
		if !seen.Add(id) {
			continue
		}
		events = append(events, Event{ID: id, Name: eventNames[id]})
	}
	return events
}

// EventName returns the symbolic name of a raw event id.
func EventName(id int) string {
	if name, ok := eventNames[id]; ok {
		return name
	}
	return "UNKNOWN"
}
