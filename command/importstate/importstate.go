package importstate

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/archive"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/cache"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/common"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/ingest"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

func GetCommand() *cobra.Command {
	importCmd := &cobra.Command{
		Use:          "import",
		Short:        "Writes replay state documents into a local cache",
		Args:         cobra.NoArgs,
		RunE:         runCommand,
		SilenceUsage: true,
	}

	setFlags(importCmd)
	helper.SetRequiredFlags(importCmd, params.getRequiredFlags())

	return importCmd
}

func setFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(
		&params.statePath,
		stateFlag,
		"",
		"the replay state document (json, optionally zstd compressed)",
	)

	cmd.Flags().StringVar(
		&params.objectsPath,
		objectsFlag,
		"",
		"a json array of extra object versions",
	)

	cmd.Flags().StringVar(
		&params.packagesPath,
		packagesFlag,
		"",
		"a json array of extra packages",
	)

	cmd.Flags().StringVar(
		&params.output,
		outputFlag,
		"",
		"the cache directory to write (default the sandbox home)",
	)
}

func runCommand(cmd *cobra.Command, _ []string) error {
	outputter := command.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	rt, err := helper.NewRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	states, objects, packages, err := readInputs(rt.Logger, params)
	if err != nil {
		return err
	}

	root := rt.Config.HomeDir()
	if params.output != "" {
		root = common.ExpandHome(params.output)
	}

	if err := common.CreateDirSafe(root, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", root, err)
	}

	store, err := cache.Open(rt.Logger, root, cache.NilMetrics())
	if err != nil {
		return err
	}
	defer store.Close()

	res, importErr := ingest.Import(rt.Logger, store, states, objects, packages)
	if res != nil {
		outputter.SetCommandResult(&ImportResult{ImportResult: res})
	}

	return importErr
}

func readInputs(logger hclog.Logger, p *importParams) (
	[]*types.ReplayState,
	[]*types.VersionedObject,
	[]*types.PackageData,
	error,
) {
	states, err := archive.ReadReplayStates(logger, p.statePath)
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		objects  []*types.VersionedObject
		packages []*types.PackageData
	)

	if p.objectsPath != "" {
		if err := archive.ReadJSON(logger, p.objectsPath, &objects); err != nil {
			return nil, nil, nil, fmt.Errorf("read objects: %w", err)
		}
	}

	if p.packagesPath != "" {
		if err := archive.ReadJSON(logger, p.packagesPath, &packages); err != nil {
			return nil, nil, nil, fmt.Errorf("read packages: %w", err)
		}
	}

	return states, objects, packages, nil
}
