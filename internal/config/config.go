// Package config resolves the process-wide measurement configuration from
// environment variables and an optional YAML override file.
package config

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"pmlib/internal/util"
)

// HwpcChooser selects the hardware counter event preset.
type HwpcChooser string

const (
	HwpcFlops     HwpcChooser = "FLOPS"
	HwpcBandwidth HwpcChooser = "BANDWIDTH"
	HwpcVector    HwpcChooser = "VECTOR"
	HwpcCache     HwpcChooser = "CACHE"
	HwpcCycle     HwpcChooser = "CYCLE"
	HwpcLoadStore HwpcChooser = "LOADSTORE"
	HwpcUser      HwpcChooser = "USER"
)

// PowerChooser selects the power telemetry scope.
type PowerChooser string

const (
	PowerOff   PowerChooser = "OFF"
	PowerNode  PowerChooser = "NODE"
	PowerNuma  PowerChooser = "NUMA"
	PowerParts PowerChooser = "PARTS"
)

// ReportLevel selects how much detail the final report carries.
type ReportLevel string

const (
	ReportBasic  ReportLevel = "BASIC"
	ReportDetail ReportLevel = "DETAIL"
	ReportFull   ReportLevel = "FULL"
)

// TraceLevel selects event trace emission.
type TraceLevel int

const (
	TraceOff  TraceLevel = 0
	TraceOn   TraceLevel = 1
	TraceFull TraceLevel = 2
)

// Config is the process-wide measurement configuration. It is resolved
// exactly once at initialize and handed to every component by
// construction.
type Config struct {
	Bypass        bool
	Hwpc          HwpcChooser
	Power         PowerChooser
	Report        ReportLevel
	Trace         TraceLevel
	TraceFileName string
	MetricsAddr   string
	// CounterSource selects the raw counter backend: "soft" (synthetic,
	// always available) or "native" (the platform PMU interface).
	CounterSource string

	NumThreads int

	// node topology hints, used for prorating shared per-CMG counters
	ProcsPerNode   int
	RankOnNode     int
	TopologyHinted bool
}

// fileConfig is the YAML override schema. Only keys present in the file
// override the environment.
type fileConfig struct {
	HwpcChooser   *string `yaml:"hwpc_chooser"`
	PowerChooser  *string `yaml:"power_chooser"`
	Report        *string `yaml:"report"`
	OtfTracing    *string `yaml:"otf_tracing"`
	OtfFilename   *string `yaml:"otf_filename"`
	MetricsAddr   *string `yaml:"metrics_addr"`
	NumThreads    *int    `yaml:"num_threads"`
	ProcsPerNode  *int    `yaml:"procs_per_node"`
	RankOnNode    *int    `yaml:"rank_on_node"`
}

// FromEnv builds the configuration from the recognized environment
// variables. Unrecognized values log a warning and fall back to the
// documented default, they never fail.
func FromEnv() *Config {
	cfg := &Config{
		Hwpc:          HwpcFlops,
		Power:         PowerOff,
		Report:        ReportBasic,
		Trace:         TraceOff,
		TraceFileName: "pmlib_trace",
		ProcsPerNode:  1,
		RankOnNode:    0,
	}

	cfg.Bypass = os.Getenv("BYPASS_PMLIB") != ""

	if v := os.Getenv("HWPC_CHOOSER"); v != "" {
		cfg.Hwpc = parseHwpc(v)
	}
	if v := os.Getenv("POWER_CHOOSER"); v != "" {
		cfg.Power = parsePower(v)
	}
	if v := os.Getenv("PMLIB_REPORT"); v != "" {
		cfg.Report = parseReport(v)
	}
	if v := os.Getenv("OTF_TRACING"); v != "" {
		cfg.Trace = parseTrace(v)
	}
	if v := os.Getenv("OTF_FILENAME"); v != "" {
		cfg.TraceFileName = v
	}
	cfg.MetricsAddr = os.Getenv("PMLIB_METRICS_ADDR")
	cfg.CounterSource = "soft"
	if v := os.Getenv("PMLIB_COUNTER"); v != "" {
		switch strings.ToLower(v) {
		case "soft", "native":
			cfg.CounterSource = strings.ToLower(v)
		default:
			slog.Warn("unrecognized PMLIB_COUNTER, falling back to soft", slog.String("value", v))
		}
	}

	cfg.NumThreads = threadCount()
	cfg.readTopology()

	if path := os.Getenv("PMLIB_CONFIG"); path != "" {
		if err := cfg.applyFile(util.ExpandUser(path)); err != nil {
			slog.Warn("config file ignored", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	return cfg
}

// threadCount honors OMP_NUM_THREADS the way the threading runtime would,
// otherwise uses the scheduler's parallelism.
func threadCount() int {
	if v := os.Getenv("OMP_NUM_THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			slog.Warn("invalid OMP_NUM_THREADS, using runtime parallelism", slog.String("value", v))
		} else {
			return n
		}
	}
	return runtime.GOMAXPROCS(0)
}

// readTopology parses the processes-per-node and rank-on-node hints.
// Packed thread affinity is assumed; when the hints are absent the
// process is treated as owning the whole node.
func (c *Config) readTopology() {
	v1, ok1 := os.LookupEnv("PJM_PROC_BY_NODE")
	v2, ok2 := os.LookupEnv("PLE_RANK_ON_NODE")
	if !ok1 && !ok2 {
		return
	}
	c.TopologyHinted = true
	if ok1 {
		n, err := strconv.Atoi(v1)
		if err != nil || n < 1 || n > 48 {
			slog.Warn("PJM_PROC_BY_NODE out of range, assuming 1 process per node", slog.String("value", v1))
		} else {
			c.ProcsPerNode = n
		}
	}
	if ok2 {
		n, err := strconv.Atoi(v2)
		if err != nil || n < 0 || n > 47 {
			slog.Warn("PLE_RANK_ON_NODE out of range, assuming rank 0 on node", slog.String("value", v2))
		} else {
			c.RankOnNode = n
		}
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %v", err)
	}
	var fc fileConfig
	if err := yaml.UnmarshalStrict(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %v", err)
	}
	if fc.HwpcChooser != nil {
		c.Hwpc = parseHwpc(*fc.HwpcChooser)
	}
	if fc.PowerChooser != nil {
		c.Power = parsePower(*fc.PowerChooser)
	}
	if fc.Report != nil {
		c.Report = parseReport(*fc.Report)
	}
	if fc.OtfTracing != nil {
		c.Trace = parseTrace(*fc.OtfTracing)
	}
	if fc.OtfFilename != nil {
		c.TraceFileName = *fc.OtfFilename
	}
	if fc.MetricsAddr != nil {
		c.MetricsAddr = *fc.MetricsAddr
	}
	if fc.NumThreads != nil && *fc.NumThreads >= 1 {
		c.NumThreads = *fc.NumThreads
	}
	if fc.ProcsPerNode != nil && *fc.ProcsPerNode >= 1 {
		c.ProcsPerNode = *fc.ProcsPerNode
		c.TopologyHinted = true
	}
	if fc.RankOnNode != nil && *fc.RankOnNode >= 0 {
		c.RankOnNode = *fc.RankOnNode
		c.TopologyHinted = true
	}
	return nil
}

func parseHwpc(v string) HwpcChooser {
	switch HwpcChooser(strings.ToUpper(v)) {
	case HwpcFlops, HwpcBandwidth, HwpcVector, HwpcCache, HwpcCycle, HwpcLoadStore, HwpcUser:
		return HwpcChooser(strings.ToUpper(v))
	}
	slog.Warn("unrecognized HWPC_CHOOSER, falling back to FLOPS", slog.String("value", v))
	return HwpcFlops
}

func parsePower(v string) PowerChooser {
	switch PowerChooser(strings.ToUpper(v)) {
	case PowerOff, PowerNode, PowerNuma, PowerParts:
		return PowerChooser(strings.ToUpper(v))
	}
	slog.Warn("unrecognized POWER_CHOOSER, falling back to OFF", slog.String("value", v))
	return PowerOff
}

func parseReport(v string) ReportLevel {
	switch ReportLevel(strings.ToUpper(v)) {
	case ReportBasic, ReportDetail, ReportFull:
		return ReportLevel(strings.ToUpper(v))
	}
	slog.Warn("unrecognized PMLIB_REPORT, falling back to BASIC", slog.String("value", v))
	return ReportBasic
}

func parseTrace(v string) TraceLevel {
	switch strings.ToUpper(v) {
	case "OFF":
		return TraceOff
	case "ON":
		return TraceOn
	case "FULL":
		return TraceFull
	}
	slog.Warn("unrecognized OTF_TRACING, falling back to OFF", slog.String("value", v))
	return TraceOff
}

// Describe renders the effective configuration the way the report header
// shows it.
func (c *Config) Describe() string {
	return fmt.Sprintf("HWPC_CHOOSER=%s, POWER_CHOOSER=%s, PMLIB_REPORT=%s, OTF_TRACING=%d",
		c.Hwpc, c.Power, c.Report, c.Trace)
}
