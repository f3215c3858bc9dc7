package transaction

import (
	"context"
	"errors"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/spf13/cobra"
)

var errNoTransactionSource = errors.New("no transaction source configured")

func GetCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "transaction <digest>",
		Short:        "Fetches a transaction and its recorded effects",
		Args:         cobra.ExactArgs(1),
		RunE:         runCommand,
		SilenceUsage: true,
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	digest, err := types.ParseDigest(args[0])
	if err != nil {
		return err
	}

	outputter := command.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	rt, err := helper.NewRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	sources, err := rt.SourcesFor(cmd)
	if err != nil {
		return err
	}

	if sources.Transactions == nil {
		return errNoTransactionSource
	}

	tx, err := sources.Transactions.FetchTransaction(context.Background(), digest)
	if err != nil {
		return err
	}

	outputter.SetCommandResult(&TransactionResult{FetchedTransaction: tx})

	return nil
}
