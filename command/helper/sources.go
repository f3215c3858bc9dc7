package helper

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/cache"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/config"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/common"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source/checkpoint"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

// walrusSource serves the checkpoint archive. Only a local mirror of the
// blobs is readable; a bare URL yields an unavailable adapter.
func walrusSource(logger hclog.Logger, cfg *config.Config, store *cache.Store) (source.Bundle, error) {
	dir := cfg.Walrus.CheckpointDir
	if dir == "" {
		return source.BundleOf(&source.Unavailable{Name: config.SourceWalrus, Endpoint: cfg.Walrus.URL}), nil
	}

	blobs, err := checkpoint.NewDir(common.ExpandHome(dir))
	if err != nil {
		return source.Bundle{}, fmt.Errorf("walrus checkpoints: %w", err)
	}

	b := source.BundleOf(checkpoint.NewIndex(logger, blobs, store))
	b.Checkpoints = blobs

	return b, nil
}

func grpcSource(cfg *config.Config) source.Bundle {
	return source.BundleOf(&source.Unavailable{Name: config.SourceGRPC, Endpoint: cfg.GRPC.URL})
}

func family(logger hclog.Logger, cfg *config.Config, store *cache.Store, name string) (source.Bundle, error) {
	switch name {
	case config.SourceWalrus:
		return walrusSource(logger, cfg, store)
	case config.SourceGRPC:
		return grpcSource(cfg), nil
	case config.SourceHybrid:
		walrus, err := walrusSource(logger, cfg, store)
		if err != nil {
			logger.Warn("walrus source disabled", "err", err)

			walrus = source.BundleOf(&source.Unavailable{Name: config.SourceWalrus, Endpoint: cfg.Walrus.URL})
		}

		return source.BundleOf(source.NewFallback(logger, walrus, grpcSource(cfg))), nil
	default:
		return source.Bundle{}, fmt.Errorf("unknown source %q", name)
	}
}

// alternate is the family asked when fallback is allowed
func alternate(name string) string {
	if name == config.SourceGRPC {
		return config.SourceWalrus
	}

	return config.SourceGRPC
}

// Sources assembles the adapters of the named family behind retries and
// the versioned cache. With allowFallback the other family answers what
// the first cannot.
func Sources(
	logger hclog.Logger,
	cfg *config.Config,
	store *cache.Store,
	name string,
	allowFallback bool,
) (source.Bundle, error) {
	upstream, err := family(logger, cfg, store, name)
	if err != nil {
		return source.Bundle{}, err
	}

	if allowFallback && name != config.SourceHybrid {
		secondary, err := family(logger, cfg, store, alternate(name))
		if err != nil {
			logger.Warn("fallback source disabled", "source", alternate(name), "err", err)
		} else {
			upstream = source.BundleOf(source.NewFallback(logger, upstream, secondary))
		}
	}

	retrying := source.WithRetry(logger, upstream, source.DefaultRetryConfig())

	checkpoints := upstream.Checkpoints
	if checkpoints != nil {
		checkpoints = retrying
	}

	b := source.BundleOf(source.NewCached(logger, store, source.BundleOf(retrying)))
	b.Checkpoints = checkpoints

	return b, nil
}

// RegisterSourceFlags registers the adapter selection for all child commands
func RegisterSourceFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String(
		command.SourceFlag,
		"",
		fmt.Sprintf("the adapter family: %s, %s or %s (default from config)",
			config.SourceWalrus, config.SourceGRPC, config.SourceHybrid),
	)

	cmd.PersistentFlags().Bool(
		command.AllowFallbackFlag,
		false,
		"ask the other adapter family for whatever the chosen one cannot serve",
	)
}

// SourcesFor assembles the adapters selected by the flags of cmd over the
// runtime cache
func (r *Runtime) SourcesFor(cmd *cobra.Command) (source.Bundle, error) {
	store, err := r.Store()
	if err != nil {
		return source.Bundle{}, err
	}

	name := r.Config.Source
	if flag := cmd.Flag(command.SourceFlag); flag != nil && flag.Value.String() != "" {
		name = flag.Value.String()
	}

	allowFallback := false
	if flag := cmd.Flag(command.AllowFallbackFlag); flag != nil {
		allowFallback = flag.Value.String() == "true"
	}

	return Sources(r.Logger, r.Config, store, name, allowFallback)
}
