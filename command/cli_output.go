package command

import (
	"fmt"
	"io"
	"os"
)

type cliOutput struct {
	commonOutputFormatter

	stdout io.Writer
	stderr io.Writer
}

func newCLIOutput() *cliOutput {
	return &cliOutput{stdout: os.Stdout, stderr: os.Stderr}
}

func (cli *cliOutput) WriteOutput() {
	if cli.errorOutput != nil {
		_, _ = fmt.Fprintln(cli.stderr, cli.getErrorOutput())
	}

	if cli.commandOutput != nil {
		_, _ = fmt.Fprint(cli.stdout, cli.getCommandOutput())
	}
}

func (cli *cliOutput) getErrorOutput() string {
	return cli.errorOutput.Error()
}

func (cli *cliOutput) getCommandOutput() string {
	return cli.commandOutput.GetOutput()
}
