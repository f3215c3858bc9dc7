package importstate

import (
	"bytes"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/ingest"
)

type ImportResult struct {
	*ingest.ImportResult
}

func (r *ImportResult) GetOutput() string {
	var buffer bytes.Buffer

	buffer.WriteString("\n[IMPORT]\n")
	buffer.WriteString(helper.FormatKV([]string{
		fmt.Sprintf("Cache|%s", r.Root),
		fmt.Sprintf("States|%d", r.States),
		fmt.Sprintf("Transactions|%d", r.Transactions),
		fmt.Sprintf("Objects|%d", r.Objects),
		fmt.Sprintf("Packages|%d", r.Packages),
	}))

	return buffer.String()
}
