package view

import (
	"github.com/spf13/cobra"
)

func GetCommand() *cobra.Command {
	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Top level command for inspecting the session environment",
	}

	registerSubcommands(viewCmd)

	return viewCmd
}

func registerSubcommands(baseCmd *cobra.Command) {
	baseCmd.AddCommand(
		modulesCommand(),
		objectsCommand(),
		stateCommand(),
	)
}
