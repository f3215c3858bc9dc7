package ingest

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/config"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/ingest"
	"github.com/spf13/cobra"
)

func GetCommand() *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:          "ingest",
		Short:        "Copies a range of checkpoints into the local cache",
		PreRunE:      runPreRun,
		RunE:         runCommand,
		SilenceUsage: true,
	}

	setFlags(ingestCmd)
	helper.SetRequiredFlags(ingestCmd, params.getRequiredFlags())

	return ingestCmd
}

func setFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(
		&params.from,
		fromFlag,
		0,
		"the first checkpoint to ingest",
	)

	cmd.Flags().Uint64Var(
		&params.to,
		toFlag,
		0,
		"the last checkpoint to ingest",
	)

	cmd.Flags().StringVar(
		&params.source,
		command.SourceFlag,
		config.SourceWalrus,
		"the adapter family serving checkpoints",
	)

	cmd.Flags().IntVar(
		&params.workers,
		command.WorkersFlag,
		0,
		"the number of checkpoints ingested in parallel (default from config)",
	)
}

func runPreRun(_ *cobra.Command, _ []string) error {
	return params.validateFlags()
}

func runCommand(cmd *cobra.Command, _ []string) error {
	outputter := command.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	rt, err := helper.NewRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	store, err := rt.Store()
	if err != nil {
		return err
	}

	sources, err := helper.Sources(rt.Logger, rt.Config, store, params.source, false)
	if err != nil {
		return err
	}

	if sources.Checkpoints == nil {
		return errNoCheckpoints
	}

	workers := params.workers
	if workers <= 0 {
		workers = rt.Config.Workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := ingest.New(rt.Logger, sources.Checkpoints, store, workers).Run(ctx, params.from, params.to)
	if res != nil {
		outputter.SetCommandResult(&IngestResult{Result: res})
	}

	if runErr != nil {
		return fmt.Errorf("ingest %d..%d: %w", params.from, params.to, runErr)
	}

	return nil
}
