// Package session runs commands against the environment persisted in the
// sandbox home. Every run loads the session, executes, and saves it back.
package session

import (
	"errors"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/ptb"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/spf13/cobra"
)

const (
	senderFlag    = "sender"
	gasBudgetFlag = "gas-budget"
)

var ErrExecutionFailed = errors.New("transaction failed")

var (
	sender    string
	gasBudget uint64
)

// RegisterTxFlags adds the sender and budget settings of a transaction
func RegisterTxFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(
		&sender,
		senderFlag,
		"",
		"the sender address (default the session sender)",
	)

	cmd.Flags().Uint64Var(
		&gasBudget,
		gasBudgetFlag,
		0,
		"the gas budget (default the session budget)",
	)
}

// applyTxFlags moves the session identity to the flags that were set
func applyTxFlags(cmd *cobra.Command, env *sandbox.Env) error {
	if cmd.Flags().Changed(senderFlag) {
		addr, err := types.ParseAddress(sender)
		if err != nil {
			return err
		}

		env.SetSender(addr)
	}

	if cmd.Flags().Changed(gasBudgetFlag) {
		env.SetGasBudget(gasBudget)
	}

	return nil
}

// Execute runs exec on the session environment and persists the
// environment afterwards. A transaction that fails still persists its gas
// charge and is reported with ErrExecutionFailed.
func Execute(cmd *cobra.Command, exec func(env *sandbox.Env) (*ptb.Result, error)) error {
	outputter := command.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	rt, err := helper.NewRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	env, err := rt.LoadSession()
	if err != nil {
		return err
	}

	if err := applyTxFlags(cmd, env); err != nil {
		return err
	}

	res, err := exec(env)
	if err != nil {
		return err
	}

	if err := rt.SaveSession(env); err != nil {
		return err
	}

	result := NewExecutionResult(res)
	outputter.SetCommandResult(result)

	if !res.Effects.Success {
		return ErrExecutionFailed
	}

	return nil
}

// View loads the session environment read-only and hands it to view
func View(cmd *cobra.Command, view func(env *sandbox.Env) (command.CommandResult, error)) error {
	outputter := command.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	rt, err := helper.NewRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	env, err := rt.LoadSession()
	if err != nil {
		return err
	}

	result, err := view(env)
	if err != nil {
		return err
	}

	outputter.SetCommandResult(result)

	return nil
}
