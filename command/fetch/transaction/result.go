package transaction

import (
	"bytes"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

type TransactionResult struct {
	*types.FetchedTransaction
}

func (r *TransactionResult) GetOutput() string {
	var buffer bytes.Buffer

	checkpoint := "unknown"
	if r.Checkpoint != nil {
		checkpoint = fmt.Sprintf("%d", *r.Checkpoint)
	}

	buffer.WriteString("\n[TRANSACTION]\n")
	buffer.WriteString(helper.FormatKV([]string{
		fmt.Sprintf("Digest|%s", r.Digest),
		fmt.Sprintf("Sender|%s", r.Sender),
		fmt.Sprintf("Checkpoint|%s", checkpoint),
		fmt.Sprintf("Timestamp (ms)|%d", r.TimestampMs),
		fmt.Sprintf("Gas Price|%d", r.Gas.Price),
		fmt.Sprintf("Gas Budget|%d", r.Gas.Budget),
		fmt.Sprintf("Inputs|%d", len(r.PTB.Inputs)),
	}))

	commands := make([]string, 0, len(r.PTB.Commands))
	for i, c := range r.PTB.Commands {
		commands = append(commands, fmt.Sprintf("%d: %s", i, c.Kind()))
	}

	buffer.WriteString("\n[COMMANDS]\n")
	buffer.WriteString(helper.FormatList(commands))
	buffer.WriteString("\n")

	if e := r.Effects; e != nil {
		buffer.WriteString("\n[EFFECTS]\n")
		buffer.WriteString(helper.FormatKV([]string{
			fmt.Sprintf("Success|%t", e.Success),
			fmt.Sprintf("Gas Total|%d", e.Gas.Total),
			fmt.Sprintf("Changed Objects|%d", len(e.ChangedObjects)),
		}))
	}

	return buffer.String()
}
