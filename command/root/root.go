package root

import (
	"fmt"
	"os"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/doctor"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/fetch"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/importstate"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/ingest"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/ptb"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/publish"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/replay"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/run"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/version"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/view"
	"github.com/spf13/cobra"
)

type RootCommand struct {
	baseCmd *cobra.Command
}

func NewRootCommand() *RootCommand {
	rootCommand := &RootCommand{
		baseCmd: &cobra.Command{
			Use:   "sui-sandbox",
			Short: "Sui Sandbox replays historical Sui transactions and runs Move code offline",
		},
	}

	helper.RegisterJSONOutputFlag(rootCommand.baseCmd)
	helper.RegisterGlobalFlags(rootCommand.baseCmd)
	helper.RegisterPprofFlag(rootCommand.baseCmd)

	rootCommand.registerSubCommands()

	return rootCommand
}

func (rc *RootCommand) registerSubCommands() {
	rc.baseCmd.AddCommand(
		version.GetCommand(),
		replay.GetCommand(),
		ingest.GetCommand(),
		importstate.GetCommand(),
		fetch.GetCommand(),
		publish.GetCommand(),
		run.GetCommand(),
		ptb.GetCommand(),
		view.GetCommand(),
		doctor.GetCommand(),
	)
}

func (rc *RootCommand) Execute() {
	if err := rc.baseCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		os.Exit(1)
	}
}
