package command

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

type jsonOutput struct {
	commonOutputFormatter

	stdout io.Writer
}

func newJSONOutput() *jsonOutput {
	return &jsonOutput{stdout: os.Stdout}
}

// WriteOutput prints the result, or {"error": ...} when there is none
func (jo *jsonOutput) WriteOutput() {
	if jo.commandOutput == nil && jo.errorOutput != nil {
		_, _ = fmt.Fprintln(jo.stdout, jo.getErrorOutput())

		return
	}

	if jo.commandOutput != nil {
		_, _ = fmt.Fprintln(jo.stdout, jo.getCommandOutput())
	}
}

func (jo *jsonOutput) getErrorOutput() string {
	return marshalJSONToString(struct {
		Err string `json:"error"`
	}{
		Err: jo.errorOutput.Error(),
	})
}

func (jo *jsonOutput) getCommandOutput() string {
	return marshalJSONToString(jo.commandOutput)
}

func marshalJSONToString(input interface{}) string {
	bytes, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return err.Error()
	}

	return string(bytes)
}
