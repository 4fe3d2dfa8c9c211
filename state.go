package pmlib

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// shell-mode persistence: a "start timer" process saves its running
// sections, a later "stop timer" process restores them and finishes the
// measurement

import (
	"log/slog"
	"os"
	"path/filepath"

	"pmlib/internal/record"
	"pmlib/internal/util"
	"pmlib/internal/watch"
)

func createFile(path string) (*os.File, error) {
	return os.Create(util.ExpandUser(path))
}

// DefaultStatePath derives the handoff file location from the job
// environment and the parent process ID.
func DefaultStatePath() string {
	return filepath.Join(record.StorageDir(), record.StorageFile())
}

// SaveState persists every running section's start state to path. An
// empty path uses the derived default location (directory created mode
// 0700).
func (m *Monitor) SaveState(path string) error {
	if !m.enabled {
		return nil
	}
	st := &record.State{HwpcChooser: string(m.cfg.Hwpc)}
	m.mu.Lock()
	watches := append([]*watch.Watch(nil), m.watches...)
	m.mu.Unlock()
	for _, w := range watches {
		if !w.Started() {
			continue
		}
		startTime, thValues := w.StartSnapshot()
		sec := record.SectionState{
			Label:      w.Label,
			StartTime:  startTime,
			NumThreads: m.cfg.NumThreads,
			NumEvents:  w.NumEvents(),
		}
		sec.ThValues = make([][]int64, len(thValues))
		for t := range thValues {
			sec.ThValues[t] = append([]int64(nil), thValues[t]...)
		}
		st.Sections = append(st.Sections, sec)
	}
	if path == "" {
		saved, err := record.SaveDefault(st)
		if err != nil {
			return err
		}
		slog.Info("measurement state saved", slog.String("path", saved))
		return nil
	}
	return record.Save(util.ExpandUser(path), st)
}

// LoadState restores persisted sections into this Monitor: each saved
// section is created (or found) and marked running from its saved start
// time with its saved counter snapshots. Derived values are not read
// back; they are re-derived at the next stop. An empty path uses the
// default location, which is removed after a successful load.
func (m *Monitor) LoadState(path string) error {
	if !m.enabled {
		return nil
	}
	var st *record.State
	var err error
	if path == "" {
		st, err = record.LoadDefault()
	} else {
		st, err = record.Load(util.ExpandUser(path))
	}
	if err != nil {
		return err
	}
	if st.HwpcChooser != string(m.cfg.Hwpc) {
		slog.Warn("persisted state used a different chooser, counter deltas may be meaningless",
			slog.String("saved", st.HwpcChooser), slog.String("active", string(m.cfg.Hwpc)))
	}
	for _, sec := range st.Sections {
		// Root included: its restored start time makes the final report
		// span the whole start-to-stop shell interval
		sid := m.sectionID(0, sec.Label)
		m.watches[sid].RestoreSnapshot(sec.StartTime, sec.ThValues)
	}
	return nil
}
