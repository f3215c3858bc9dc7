package pkg

import (
	"context"
	"errors"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/spf13/cobra"
)

var errNoPackageSource = errors.New("no package source configured")

func GetCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "package <id>",
		Short:        "Fetches a package by storage id",
		Args:         cobra.ExactArgs(1),
		RunE:         runCommand,
		SilenceUsage: true,
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	id, err := types.ParseAddress(args[0])
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

	if sources.Packages == nil {
		return errNoPackageSource
	}

	pkg, err := sources.Packages.FetchPackage(context.Background(), id)
	if err != nil {
		return err
	}

	outputter.SetCommandResult(&PackageResult{PackageData: pkg})

	return nil
}
