package ptb

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/archive"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/session"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/ptb"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

const specFlag = "spec"

var (
	params = &ptbParams{}
)

type ptbParams struct {
	specPath string
}

func (p *ptbParams) getRequiredFlags() []string {
	return []string{
		specFlag,
	}
}

// Spec is a programmable transaction file. Sender and budget are
// optional and default to the session.
type Spec struct {
	Sender    *types.Address `json:"sender,omitempty"`
	GasBudget uint64         `json:"gas_budget,omitempty"`

	types.ProgrammableTransaction
}

// ReadSpec reads and validates a transaction file, compressed or not
func ReadSpec(logger hclog.Logger, path string) (*Spec, error) {
	spec := &Spec{}

	if err := archive.ReadJSON(logger, path, spec); err != nil {
		return nil, err
	}

	for i, c := range spec.Commands {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
	}

	return spec, nil
}

func GetCommand() *cobra.Command {
	ptbCmd := &cobra.Command{
		Use:          "ptb",
		Short:        "Executes a programmable transaction described in a JSON file",
		RunE:         runCommand,
		SilenceUsage: true,
	}

	setFlags(ptbCmd)
	session.RegisterTxFlags(ptbCmd)
	helper.SetRequiredFlags(ptbCmd, params.getRequiredFlags())

	return ptbCmd
}

func setFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(
		&params.specPath,
		specFlag,
		"",
		"the transaction file: {sender?, gas_budget?, inputs, commands}",
	)
}

func runCommand(cmd *cobra.Command, _ []string) error {
	spec, err := ReadSpec(nil, params.specPath)
	if err != nil {
		return err
	}

	return session.Execute(cmd, func(env *sandbox.Env) (*ptb.Result, error) {
		if spec.Sender != nil {
			env.SetSender(*spec.Sender)
		}

		if spec.GasBudget > 0 {
			env.SetGasBudget(spec.GasBudget)
		}

		return env.Execute(&spec.ProgrammableTransaction)
	})
}
