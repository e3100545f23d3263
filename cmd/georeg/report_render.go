package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"georeg/internal/journal"
	"georeg/internal/register"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

var titleCaser = cases.Title(language.English)

// renderSummary formats the end-of-run summary the register command
// prints.
func renderSummary(s *register.Summary) string {
	rows := [][]string{
		{"Run", strconv.FormatInt(s.RunID, 10)},
		{"Output", s.OutputPath},
		{"Server", fmt.Sprintf("%s @ %s", s.Server.Branch, s.Server.Revision)},
		{"Stream", strconv.FormatInt(s.StreamID, 10)},
		{"Frames", strconv.Itoa(s.FrameCount)},
		{"Committed", strconv.Itoa(s.Committed)},
		{"Succeeded", strconv.Itoa(s.Succeeded)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Mean FOM", fmt.Sprintf("%.3f", s.MeanFOM)},
		{"Mean displacement", fmt.Sprintf("%.1f m", s.MeanDisplacement)},
		{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
}

// renderRun formats a journaled run for the report command.
func renderRun(run *journal.Run, stats journal.RunStats, frames []journal.FrameRecord, colorize bool) string {
	var b strings.Builder

	status := titleCaser.String(string(run.Status))
	if colorize {
		switch run.Status {
		case journal.RunCompleted:
			status = ansiGreen + status + ansiReset
		case journal.RunFailed:
			status = ansiRed + status + ansiReset
		}
	}

	fmt.Fprintf(&b, "Run %d (%s) %s\n", run.ID, run.UUID, status)
	fmt.Fprintf(&b, "  Input:  %s\n", run.InputPath)
	fmt.Fprintf(&b, "  Output: %s\n", run.OutputPath)
	fmt.Fprintf(&b, "  Server: %s (%s @ %s), stream %d\n", run.ServerURL, run.ServerBranch, run.ServerRevision, run.StreamID)
	fmt.Fprintf(&b, "  Started: %s\n", run.StartedAt.Local().Format(time.RFC3339))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "  Elapsed: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "  Error: %s\n", run.Error)
	}
	b.WriteString("\n")

	rows := [][]string{
		{"Frames", strconv.Itoa(run.FrameCount)},
		{"Committed", strconv.Itoa(run.Committed)},
		{"Succeeded", strconv.Itoa(stats.Succeeded)},
		{"Failed", strconv.Itoa(stats.Failed)},
		{"Mean FOM", fmt.Sprintf("%.3f", stats.MeanFOM)},
		{"Mean displacement", fmt.Sprintf("%.1f m", stats.MeanDisplacement)},
	}
	b.WriteString(renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	var failed [][]string
	for _, frame := range frames {
		if frame.Status != journal.FrameFailed {
			continue
		}
		failed = append(failed, []string{
			strconv.FormatInt(frame.FrameID, 10),
			strconv.Itoa(frame.Attempts),
			frame.Error,
		})
	}
	if len(failed) > 0 {
		b.WriteString("\n\nFailed frames\n")
		b.WriteString(renderTable([]string{"Frame", "Attempts", "Error"}, failed,
			[]columnAlignment{alignRight, alignRight, alignLeft}))
	}
	return b.String()
}
