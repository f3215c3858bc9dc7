package replay

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/config"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/replay"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source/statefile"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/spf13/cobra"
)

func GetCommand() *cobra.Command {
	replayCmd := &cobra.Command{
		Use:          "replay [digest]",
		Short:        "Replays a historical transaction and compares its effects with the chain",
		Args:         cobra.MaximumNArgs(1),
		PreRunE:      runPreRun,
		RunE:         runCommand,
		SilenceUsage: true,
	}

	setFlags(replayCmd)

	return replayCmd
}

func setFlags(cmd *cobra.Command) {
	defaults := config.DefaultConfig()

	cmd.Flags().StringVar(
		&params.stateJSON,
		stateJSONFlag,
		"",
		"replay from a portable replay-state file instead of the network adapters",
	)

	cmd.Flags().StringVar(
		&params.source,
		command.SourceFlag,
		"",
		fmt.Sprintf("the adapter family: %s, %s or %s (default from config)",
			config.SourceWalrus, config.SourceGRPC, config.SourceHybrid),
	)

	cmd.Flags().BoolVar(
		&params.allowFallback,
		command.AllowFallbackFlag,
		false,
		"ask the other adapter family for whatever the chosen one cannot serve",
	)

	cmd.Flags().BoolVar(
		&params.dynamicFieldPrefetch,
		dynamicFieldPrefetchFlag,
		defaults.Replay.DynamicFieldPrefetch,
		"enumerate dynamic field children when a replay misses them",
	)

	cmd.Flags().BoolVar(
		&params.predictivePrefetch,
		predictivePrefetchFlag,
		defaults.Replay.PredictivePrefetch,
		"analyze bytecode to predict dynamic field accesses on the last attempt",
	)

	cmd.Flags().BoolVar(
		&params.versionPatch,
		versionPatchFlag,
		defaults.Replay.VersionPatch,
		"rewrite version-locked objects when a replay aborts on a version check",
	)

	cmd.Flags().IntVar(
		&params.prefetchDepth,
		prefetchDepthFlag,
		defaults.Replay.PrefetchDepth,
		"the levels of children enumerated by the eager prefetch",
	)

	cmd.Flags().IntVar(
		&params.prefetchLimit,
		prefetchLimitFlag,
		defaults.Replay.PrefetchLimit,
		"the most children loaded per parent",
	)

	cmd.Flags().IntVar(
		&params.maxAttempts,
		maxAttemptsFlag,
		replay.MaxAttempts,
		"the most attempts of one replay",
	)

	cmd.Flags().StringVar(
		&params.series,
		seriesFlag,
		"",
		"replay every digest listed in the file, one per line",
	)

	cmd.Flags().IntVar(
		&params.workers,
		command.WorkersFlag,
		replay.DefaultSeriesWorkers,
		"the number of series replays run in parallel",
	)
}

func runPreRun(_ *cobra.Command, args []string) error {
	return params.validateFlags(args)
}

// engineConfig overlays the flags set on the command line
func engineConfig(cmd *cobra.Command, rt *helper.Runtime) replay.Config {
	cfg := rt.ReplayConfig()
	flags := cmd.Flags()

	if flags.Changed(dynamicFieldPrefetchFlag) {
		cfg.DynamicFieldPrefetch = params.dynamicFieldPrefetch
	}

	if flags.Changed(predictivePrefetchFlag) {
		cfg.PredictivePrefetch = params.predictivePrefetch
	}

	if flags.Changed(versionPatchFlag) {
		cfg.VersionPatch = params.versionPatch
	}

	if flags.Changed(prefetchDepthFlag) {
		cfg.PrefetchDepth = params.prefetchDepth
	}

	if flags.Changed(prefetchLimitFlag) {
		cfg.PrefetchLimit = params.prefetchLimit
	}

	cfg.MaxAttempts = params.maxAttempts

	return cfg
}

// sources picks the state file or the adapter family, falling back from
// the first to the second when allowed
func sources(rt *helper.Runtime) (source.Bundle, *statefile.Source, error) {
	store, err := rt.Store()
	if err != nil {
		return source.Bundle{}, nil, err
	}

	family := rt.Config.Source
	if params.source != "" {
		family = params.source
	}

	if params.stateJSON == "" {
		b, err := helper.Sources(rt.Logger, rt.Config, store, family, params.allowFallback)

		return b, nil, err
	}

	states, err := statefile.Load(rt.Logger, params.stateJSON)
	if err != nil {
		return source.Bundle{}, nil, err
	}

	b := source.BundleOf(states)

	if params.allowFallback {
		network, err := helper.Sources(rt.Logger, rt.Config, store, family, false)
		if err != nil {
			return source.Bundle{}, nil, err
		}

		b = source.BundleOf(source.NewFallback(rt.Logger, b, network))
	}

	return b, states, nil
}

func runCommand(cmd *cobra.Command, _ []string) error {
	outputter := command.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	rt, err := helper.NewRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bundle, states, err := sources(rt)
	if err != nil {
		return err
	}

	store, err := rt.Store()
	if err != nil {
		return err
	}

	opts := append(rt.ReplayOptions(), replay.WithVersionIndex(store))
	engine := replay.NewEngine(rt.Logger, bundle, engineConfig(cmd, rt), opts...)

	if params.series != "" {
		return runSeries(ctx, engine, outputter)
	}

	var outcome *replay.Outcome

	if states != nil {
		st, err := stateFor(states)
		if err != nil {
			return err
		}

		outcome, err = engine.ReplayState(ctx, st)
		if err != nil {
			return err
		}
	} else {
		if outcome, err = engine.Replay(ctx, *params.digest); err != nil {
			return err
		}
	}

	report := replay.NewReport(outcome)
	outputter.SetCommandResult(&ReplayResult{Report: report})

	if !report.Success {
		return errReplayFailed
	}

	return nil
}

// stateFor returns the state named by the digest argument, or the only
// state of the file when no digest was given
func stateFor(states *statefile.Source) (*types.ReplayState, error) {
	if params.digest != nil {
		st, ok := states.State(*params.digest)
		if !ok {
			return nil, fmt.Errorf("%s holds no state for %s", params.stateJSON, params.digest)
		}

		return st, nil
	}

	all := states.States()
	if len(all) != 1 {
		return nil, fmt.Errorf("%s holds %d states, name the digest to replay", params.stateJSON, len(all))
	}

	return all[0], nil
}

func runSeries(ctx context.Context, engine *replay.Engine, outputter command.OutputFormatter) error {
	digests, err := replay.ReadSeries(params.series)
	if err != nil {
		return err
	}

	res := engine.RunSeries(ctx, digests, params.workers)
	outputter.SetCommandResult(&SeriesResult{SeriesResult: res})

	if res.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errReplayFailed, res.Failed, res.Total)
	}

	return nil
}
