// Package record persists the running measurement state between two
// shell invocations: the "start timer" process saves every running
// section's label, start time and raw counter snapshots, and a later
// "stop timer" process restores them. Derived metric vectors are never
// stored; the loading process re-derives them from the raw snapshots.
package record

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SectionState is one persisted section: the start state of a running
// interval.
type SectionState struct {
	Label      string
	StartTime  float64
	NumThreads int
	NumEvents  int
	ThValues   [][]int64
}

// State is the full persisted process state.
type State struct {
	HwpcChooser string
	Sections    []SectionState
}

// StorageDir returns the handoff directory under the user's home
// (or /tmp/<user> when HOME is unset).
func StorageDir() string {
	base := os.Getenv("HOME")
	if base == "" {
		base = filepath.Join("/tmp", os.Getenv("USER"))
	}
	return filepath.Join(base, ".shellpm", "measured_data")
}

// StorageFile derives the handoff file name from the job-name and
// job-ID environment and the parent process ID, so that the paired
// start/stop shell commands of one job land on the same file.
func StorageFile() string {
	name := os.Getenv("PJM_JOBNAME")
	if name == "" {
		name = "shellpm"
	}
	jobID := os.Getenv("PJM_JOBID")
	if jobID == "" {
		jobID = "record"
	}
	return fmt.Sprintf("%s.%s.%d", name, jobID, os.Getppid())
}

// Save writes the state to path, creating parent directories mode 0700.
func Save(path string, st *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "failed to create storage directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create record file")
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ShellPM HWPC_CHOOSER=%s\n", st.HwpcChooser)
	for _, sec := range st.Sections {
		fmt.Fprintf(w, "section %s start_time= %.15e\n", sec.Label, sec.StartTime)
		fmt.Fprintf(w, "num_threads= %d, num_events= %d\n", sec.NumThreads, sec.NumEvents)
		fmt.Fprintf(w, "th_values[num_threads][num_events]:\n")
		for t := 0; t < sec.NumThreads; t++ {
			for e := 0; e < sec.NumEvents; e++ {
				var v int64
				if t < len(sec.ThValues) && e < len(sec.ThValues[t]) {
					v = sec.ThValues[t][e]
				}
				fmt.Fprintf(w, "%d\n", v)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "failed to write record file")
	}
	return nil
}

// SaveDefault saves to the derived storage path and returns it.
func SaveDefault(st *State) (string, error) {
	path := filepath.Join(StorageDir(), StorageFile())
	if err := Save(path, st); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads the state back from path.
func Load(path string) (*State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open record file")
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)

	if !scanner.Scan() {
		return nil, errors.New("record file is empty")
	}
	header := scanner.Text()
	const headerPrefix = "ShellPM HWPC_CHOOSER="
	if !strings.HasPrefix(header, headerPrefix) {
		return nil, errors.Errorf("unexpected record header: %q", header)
	}
	st := &State{HwpcChooser: strings.TrimPrefix(header, headerPrefix)}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		sec, err := parseSection(line, scanner)
		if err != nil {
			return nil, err
		}
		st.Sections = append(st.Sections, *sec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read record file")
	}
	return st, nil
}

func parseSection(first string, scanner *bufio.Scanner) (*SectionState, error) {
	const marker = " start_time= "
	if !strings.HasPrefix(first, "section ") {
		return nil, errors.Errorf("unexpected section line: %q", first)
	}
	idx := strings.LastIndex(first, marker)
	if idx < 0 {
		return nil, errors.Errorf("section line missing start time: %q", first)
	}
	sec := &SectionState{Label: strings.TrimPrefix(first[:idx], "section ")}
	startTime, err := strconv.ParseFloat(strings.TrimSpace(first[idx+len(marker):]), 64)
	if err != nil {
		return nil, errors.Wrapf(err, "bad start time in %q", first)
	}
	sec.StartTime = startTime

	if !scanner.Scan() {
		return nil, errors.New("record file truncated before dimensions")
	}
	if _, err := fmt.Sscanf(scanner.Text(), "num_threads= %d, num_events= %d", &sec.NumThreads, &sec.NumEvents); err != nil {
		return nil, errors.Wrapf(err, "bad dimension line %q", scanner.Text())
	}
	if sec.NumThreads < 0 || sec.NumEvents < 0 {
		return nil, errors.Errorf("negative dimensions in %q", scanner.Text())
	}
	if !scanner.Scan() {
		return nil, errors.New("record file truncated before snapshot values")
	}

	sec.ThValues = make([][]int64, sec.NumThreads)
	for t := 0; t < sec.NumThreads; t++ {
		sec.ThValues[t] = make([]int64, sec.NumEvents)
		for e := 0; e < sec.NumEvents; e++ {
			if !scanner.Scan() {
				return nil, errors.Errorf("record file truncated in section %s", sec.Label)
			}
			v, err := strconv.ParseInt(strings.TrimSpace(scanner.Text()), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "bad counter value in section %s", sec.Label)
			}
			sec.ThValues[t][e] = v
		}
	}
	return sec, nil
}

// LoadDefault loads from the derived storage path, then removes the
// handoff file and its directory. A failed cleanup only warns; the
// loaded state is already safe.
func LoadDefault() (*State, error) {
	path := filepath.Join(StorageDir(), StorageFile())
	st, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil {
		slog.Warn("failed to remove record file", slog.String("path", path), slog.String("error", err.Error()))
		return st, nil
	}
	if err := os.Remove(StorageDir()); err != nil {
		slog.Warn("failed to remove storage directory", slog.String("path", StorageDir()), slog.String("error", err.Error()))
	}
	return st, nil
}
