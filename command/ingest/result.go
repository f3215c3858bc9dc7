package ingest

import (
	"bytes"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/ingest"
)

type IngestResult struct {
	*ingest.Result
}

func (r *IngestResult) GetOutput() string {
	var buffer bytes.Buffer

	buffer.WriteString("\n[INGEST]\n")
	buffer.WriteString(helper.FormatKV([]string{
		fmt.Sprintf("Run|%s", r.RunID),
		fmt.Sprintf("Range|%d..%d", r.From, r.To),
		fmt.Sprintf("Resumed|%t", r.Resumed),
		fmt.Sprintf("Checkpoints|%d", r.Checkpoints),
		fmt.Sprintf("Transactions|%d", r.Transactions),
		fmt.Sprintf("Objects|%d", r.Objects),
		fmt.Sprintf("Packages|%d", r.Packages),
		fmt.Sprintf("Failed|%v", r.Failed),
		fmt.Sprintf("Duration|%s", r.Duration),
	}))

	return buffer.String()
}
