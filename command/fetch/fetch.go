package fetch

import (
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/fetch/pkg"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/fetch/transaction"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/spf13/cobra"
)

func GetCommand() *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Top level command for fetching chain data into the local cache",
	}

	helper.RegisterSourceFlags(fetchCmd)
	registerSubcommands(fetchCmd)

	return fetchCmd
}

func registerSubcommands(baseCmd *cobra.Command) {
	baseCmd.AddCommand(
		pkg.GetCommand(),
		transaction.GetCommand(),
	)
}
