package helper

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/cache"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/config"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/common"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/metrics"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/telemetry"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/replay"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

const metricsNamespace = "sui_sandbox"

// Runtime carries the config, logger and telemetry of one command
// invocation. Close releases everything it opened.
type Runtime struct {
	Logger hclog.Logger
	Config *config.Config

	metricsServer  *metrics.Server
	tracerProvider telemetry.TracerProvider
	store          *cache.Store
}

// LoadConfig builds the effective config of cmd: defaults, the --config
// file, the environment, then the --home and --log-level flags
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	var path string

	if flag := cmd.Flag(command.ConfigFlag); flag != nil {
		path = flag.Value.String()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flag := cmd.Flag(command.HomeFlag); flag != nil && flag.Changed {
		cfg.Home = flag.Value.String()
	}

	if flag := cmd.Flag(command.LogLevelFlag); flag != nil && flag.Changed {
		cfg.LogLevel = flag.Value.String()
	}

	if flag := cmd.Flag(command.PrometheusFlag); flag != nil && flag.Changed {
		cfg.Telemetry.PrometheusAddr = flag.Value.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewLogger creates the root logger writing to stderr
func NewLogger(level string) (hclog.Logger, error) {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   command.DefaultService,
		Level:  lvl,
		Output: os.Stderr,
	}), nil
}

// NewRuntime loads the config of cmd and starts the servers it asks for
func NewRuntime(cmd *cobra.Command) (*Runtime, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		Logger:         logger,
		Config:         cfg,
		tracerProvider: telemetry.NewNilTracerProvider(context.Background()),
	}

	command.InitializePprofServer(cmd, logger)

	if addr := cfg.Telemetry.PrometheusAddr; addr != "" {
		r.metricsServer = metrics.NewServer(logger, addr)
		r.metricsServer.Start()
	}

	if cfg.Telemetry.Trace && cfg.Telemetry.JaegerURL != "" {
		provider, err := telemetry.NewTracerProvider(context.Background(), cfg.Telemetry.JaegerURL, command.DefaultService)
		if err != nil {
			logger.Warn("tracing disabled", "url", cfg.Telemetry.JaegerURL, "err", err)
		} else {
			r.tracerProvider = provider
		}
	}

	return r, nil
}

// MetricsEnabled reports whether a prometheus endpoint is served
func (r *Runtime) MetricsEnabled() bool {
	return r.metricsServer != nil
}

func (r *Runtime) Tracer(namespace string) telemetry.Tracer {
	return r.tracerProvider.NewTracer(namespace)
}

// Home is the expanded cache root, created when missing
func (r *Runtime) Home() (string, error) {
	home := r.Config.HomeDir()

	if err := common.CreateDirSafe(home, 0o755); err != nil {
		return "", fmt.Errorf("create home %s: %w", home, err)
	}

	return home, nil
}

// Store opens the versioned cache under the home directory once
func (r *Runtime) Store() (*cache.Store, error) {
	if r.store != nil {
		return r.store, nil
	}

	home, err := r.Home()
	if err != nil {
		return nil, err
	}

	m := cache.NilMetrics()
	if r.MetricsEnabled() {
		m = cache.GetPrometheusMetrics(metricsNamespace)
	}

	store, err := cache.Open(r.Logger, home, m)
	if err != nil {
		return nil, err
	}

	r.store = store

	return store, nil
}

// ReplayOptions wires the engine to the runtime metrics and tracer
func (r *Runtime) ReplayOptions() []replay.Option {
	opts := []replay.Option{replay.WithTracer(r.Tracer("replay"))}

	if r.MetricsEnabled() {
		opts = append(opts, replay.WithMetrics(replay.GetPrometheusMetrics(metricsNamespace)))
	}

	return opts
}

// ReplayConfig maps the replay block of the config onto the engine config
func (r *Runtime) ReplayConfig() replay.Config {
	cfg := replay.DefaultConfig()
	cfg.DynamicFieldPrefetch = r.Config.Replay.DynamicFieldPrefetch
	cfg.PredictivePrefetch = r.Config.Replay.PredictivePrefetch
	cfg.VersionPatch = r.Config.Replay.VersionPatch

	if r.Config.Replay.PrefetchDepth > 0 {
		cfg.PrefetchDepth = r.Config.Replay.PrefetchDepth
	}

	if r.Config.Replay.PrefetchLimit > 0 {
		cfg.PrefetchLimit = r.Config.Replay.PrefetchLimit
	}

	return cfg
}

// LoadSession restores the environment persisted in the home directory
func (r *Runtime) LoadSession() (*sandbox.Env, error) {
	home, err := r.Home()
	if err != nil {
		return nil, err
	}

	return sandbox.LoadSession(r.Logger, home, sandbox.DefaultConfig())
}

// SaveSession persists env in the home directory, keeping the
// compression of an existing session file
func (r *Runtime) SaveSession(env *sandbox.Env) error {
	home, err := r.Home()
	if err != nil {
		return err
	}

	path, ok := sandbox.FindSession(home)
	if !ok {
		path = sandbox.SessionPath(home, false)
	}

	return sandbox.SaveSession(r.Logger, path, env)
}

func (r *Runtime) Close() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.Logger.Error("close cache", "err", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.tracerProvider.Shutdown(ctx); err != nil {
		r.Logger.Error("shutdown tracer", "err", err)
	}

	if r.metricsServer != nil {
		if err := r.metricsServer.Close(); err != nil {
			r.Logger.Error("close prometheus server", "err", err)
		}
	}
}
