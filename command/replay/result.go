package replay

import (
	"bytes"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/replay"
)

type ReplayResult struct {
	*replay.Report
}

func (r *ReplayResult) GetOutput() string {
	return r.Summary()
}

type SeriesResult struct {
	*replay.SeriesResult
}

func (r *SeriesResult) GetOutput() string {
	var buffer bytes.Buffer

	buffer.WriteString("\n[REPLAY SERIES]\n")
	buffer.WriteString(helper.FormatKV([]string{
		fmt.Sprintf("Run|%s", r.RunID),
		fmt.Sprintf("Total|%d", r.Total),
		fmt.Sprintf("Succeeded|%d", r.Succeeded),
		fmt.Sprintf("Failed|%d", r.Failed),
		fmt.Sprintf("Duration|%s", r.Duration),
	}))
	buffer.WriteString("\n")

	rows := make([]string, 0, len(r.Entries))

	for _, e := range r.Entries {
		status := e.Error

		if e.Report != nil {
			status = e.Report.Outcome
			if !e.Report.Success {
				status = "FAILED " + status
			}
		}

		rows = append(rows, fmt.Sprintf("%s|%s", e.Digest, status))
	}

	buffer.WriteString(helper.FormatKV(rows))

	return buffer.String()
}
