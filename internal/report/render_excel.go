package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"pmlib/internal/watch"
)

// WriteExcel renders the section summary to an xlsx workbook: one
// Summary sheet mirroring the text table, plus a Ranks sheet with the
// per-rank breakdown.
func WriteExcel(path string, sections []*watch.Watch, order []int, rootTime float64, opts Options) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %v", err)
	}
	headers := []any{"Section", "Calls", "Time [s]", "Time [%]", "Time/call [s]",
		"Time sd", "Operations", "Operations sd", "Rate [" + opts.Unit + "]"}
	if err := f.SetSheetRow(summary, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write summary header: %v", err)
	}
	row := 2
	for _, idx := range order {
		sec := sections[idx]
		if sec.CountSum == 0 {
			continue
		}
		pct := 0.0
		if rootTime > 0 {
			pct = sec.TimeAv / rootTime * 100.0
		}
		perCall := 0.0
		if sec.CountAv > 0 {
			perCall = sec.TimeAv / float64(sec.CountAv)
		}
		values := []any{sec.Label + sectionMarkers(sec), sec.CountAv, sec.TimeAv, pct,
			perCall, sec.TimeSd, sec.FlopAv, sec.FlopSd, sectionRate(sec)}
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(summary, cell, &values); err != nil {
			return fmt.Errorf("failed to write summary row: %v", err)
		}
		row++
	}

	const ranks = "Ranks"
	if _, err := f.NewSheet(ranks); err != nil {
		return fmt.Errorf("failed to create ranks sheet: %v", err)
	}
	rankHeaders := []any{"Section", "Rank", "Time [s]", "Operations"}
	if err := f.SetSheetRow(ranks, "A1", &rankHeaders); err != nil {
		return fmt.Errorf("failed to write ranks header: %v", err)
	}
	row = 2
	for _, idx := range order {
		sec := sections[idx]
		if sec.CountSum == 0 {
			continue
		}
		for r := range sec.TimeArray {
			values := []any{sec.Label, r, sec.TimeArray[r], sec.FlopArray[r]}
			cell := fmt.Sprintf("A%d", row)
			if err := f.SetSheetRow(ranks, cell, &values); err != nil {
				return fmt.Errorf("failed to write rank row: %v", err)
			}
			row++
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %v", err)
	}
	return nil
}
