package services

import (
	"fmt"
	"regexp"
	"time"

	"github.com/xuri/excelize/v2"
)

// Send outcomes are recovered from the engine's message log lines.
var (
	sentLinePattern   = regexp.MustCompile(`^Message sent to (.+)\.$`)
	failedLinePattern = regexp.MustCompile(`^Message to (.+) failed\.$`)
)

// BuildReport renders one run as an XLSX workbook: a summary sheet, the full
// log, and per-person send outcomes. Returns the file bytes and a filename.
func (s *RunService) BuildReport(ownerUID, runID string) ([]byte, string, error) {
	run, err := s.Get(ownerUID, runID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, "", fmt.Errorf("failed to build report: %w", err)
	}

	finished := ""
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	summary := [][2]any{
		{"Run ID", run.ID},
		{"Automation", run.AutomationID},
		{"Status", run.Status},
		{"Started at", run.StartedAt.UTC().Format(time.RFC3339)},
		{"Finished at", finished},
		{"Audience size", run.AudienceSize},
		{"Passes", run.Iterations},
		{"Log lines", len(run.Log)},
	}
	for i, row := range summary {
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}
	f.SetColWidth(summarySheet, "A", "A", 16)
	f.SetColWidth(summarySheet, "B", "B", 40)

	const logSheet = "Log"
	if _, err := f.NewSheet(logSheet); err != nil {
		return nil, "", fmt.Errorf("failed to build report: %w", err)
	}
	f.SetCellValue(logSheet, "A1", "At")
	f.SetCellValue(logSheet, "B1", "Line")
	for i, entry := range run.Log {
		f.SetCellValue(logSheet, fmt.Sprintf("A%d", i+2), entry.At.UTC().Format(time.RFC3339))
		f.SetCellValue(logSheet, fmt.Sprintf("B%d", i+2), entry.Text)
	}
	f.SetColWidth(logSheet, "A", "A", 22)
	f.SetColWidth(logSheet, "B", "B", 80)

	const sendSheet = "Sends"
	if _, err := f.NewSheet(sendSheet); err != nil {
		return nil, "", fmt.Errorf("failed to build report: %w", err)
	}
	f.SetCellValue(sendSheet, "A1", "Person")
	f.SetCellValue(sendSheet, "B1", "Outcome")
	f.SetCellValue(sendSheet, "C1", "At")
	row := 2
	for _, entry := range run.Log {
		name, outcome := "", ""
		if m := sentLinePattern.FindStringSubmatch(entry.Text); m != nil {
			name, outcome = m[1], "sent"
		} else if m := failedLinePattern.FindStringSubmatch(entry.Text); m != nil {
			name, outcome = m[1], "failed"
		}
		if name == "" {
			continue
		}
		f.SetCellValue(sendSheet, fmt.Sprintf("A%d", row), name)
		f.SetCellValue(sendSheet, fmt.Sprintf("B%d", row), outcome)
		f.SetCellValue(sendSheet, fmt.Sprintf("C%d", row), entry.At.UTC().Format(time.RFC3339))
		row++
	}
	f.SetColWidth(sendSheet, "A", "A", 28)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to build report: %w", err)
	}
	return buf.Bytes(), fmt.Sprintf("run-%s.xlsx", run.ID), nil
}
