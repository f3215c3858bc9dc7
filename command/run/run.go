package run

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/session"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/ptb"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/spf13/cobra"
)

func GetCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:          "run <package>::<module>::<function>",
		Short:        "Calls a Move function in the session",
		Args:         cobra.ExactArgs(1),
		PreRunE:      runPreRun,
		RunE:         runCommand,
		SilenceUsage: true,
	}

	setFlags(runCmd)
	session.RegisterTxFlags(runCmd)

	return runCmd
}

func setFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(
		&params.args,
		argsFlag,
		nil,
		"the call arguments: numbers (5, 5u8), true/false, object ids, @address or strings",
	)

	cmd.Flags().StringSliceVar(
		&params.typeArgsRaw,
		typeArgsFlag,
		nil,
		"the type arguments of the call",
	)
}

func runPreRun(_ *cobra.Command, args []string) error {
	return params.validateFlags(args[0])
}

// BuildCall builds a single MoveCall transaction over the parsed args
func BuildCall(
	target types.MoveCall,
	typeArgs []types.TypeTag,
	args []string,
	lookup ObjectLookup,
) (*types.ProgrammableTransaction, error) {
	tx := &types.ProgrammableTransaction{}
	call := target
	call.TypeArguments = typeArgs
	call.Arguments = []types.Argument{}

	for i, raw := range args {
		in, err := ParseCallArg(raw, lookup)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}

		tx.Inputs = append(tx.Inputs, in)
		call.Arguments = append(call.Arguments, types.Input(uint16(i)))
	}

	tx.Commands = []types.Command{{MoveCall: &call}}

	return tx, nil
}

func runCommand(cmd *cobra.Command, _ []string) error {
	return session.Execute(cmd, func(env *sandbox.Env) (*ptb.Result, error) {
		lookup := func(id types.ObjectID) (*types.VersionedObject, bool) {
			obj, err := env.Object(id)

			return obj, err == nil
		}

		tx, err := BuildCall(*params.target, params.typeArgs, params.args, lookup)
		if err != nil {
			return nil, err
		}

		return env.Execute(tx)
	})
}
