// Package config holds the sandbox configuration. Defaults are overlaid by
// an optional .hcl or .json file, then by SUI_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/common"
	"github.com/hashicorp/hcl"
)

const (
	SourceWalrus = "walrus"
	SourceGRPC   = "grpc"
	SourceHybrid = "hybrid"
)

const (
	DefaultHome     = "~/.sui-sandbox"
	DefaultLogLevel = "INFO"
	DefaultSource   = SourceHybrid
	DefaultWorkers  = 4
)

const (
	EnvHome               = "SUI_SANDBOX_HOME"
	EnvWalrusURL          = "SUI_WALRUS_URL"
	EnvWalrusCheckpoints  = "SUI_WALRUS_CHECKPOINT_DIR"
	EnvGRPCEndpoint       = "SUI_GRPC_ENDPOINT"
	EnvGRPCAPIKey         = "SUI_GRPC_API_KEY"
	EnvGraphQLEndpoint    = "SUI_GRAPHQL_ENDPOINT"
	EnvGraphQLAPIKey      = "SUI_GRAPHQL_API_KEY"
	EnvPredictivePrefetch = "SUI_SANDBOX_PREDICTIVE_PREFETCH"
	EnvTrace              = "SUI_SANDBOX_TRACE"
	EnvVersionPatch       = "SUI_SANDBOX_VERSION_PATCH"
	EnvJaegerURL          = "SUI_SANDBOX_JAEGER_URL"
)

// Config is the sandbox configuration
type Config struct {
	Home     string    `json:"home" hcl:"home"`
	LogLevel string    `json:"log_level" hcl:"log_level"`
	Source   string    `json:"source" hcl:"source"`
	Walrus   *Walrus   `json:"walrus" hcl:"walrus"`
	GRPC     *Endpoint `json:"grpc" hcl:"grpc"`
	GraphQL  *Endpoint `json:"graphql" hcl:"graphql"`
	Replay   *Replay   `json:"replay" hcl:"replay"`
	Workers  int       `json:"workers" hcl:"workers"`

	Telemetry *Telemetry `json:"telemetry" hcl:"telemetry"`
}

// Walrus locates the checkpoint archive
type Walrus struct {
	URL string `json:"url" hcl:"url"`
	// CheckpointDir is a local mirror of the archive blobs
	CheckpointDir string `json:"checkpoint_dir" hcl:"checkpoint_dir"`
}

type Endpoint struct {
	URL    string `json:"url" hcl:"url"`
	APIKey string `json:"api_key" hcl:"api_key"`
}

type Replay struct {
	DynamicFieldPrefetch bool `json:"dynamic_field_prefetch" hcl:"dynamic_field_prefetch"`
	PredictivePrefetch   bool `json:"predictive_prefetch" hcl:"predictive_prefetch"`
	VersionPatch         bool `json:"version_patch" hcl:"version_patch"`
	PrefetchDepth        int  `json:"prefetch_depth" hcl:"prefetch_depth"`
	PrefetchLimit        int  `json:"prefetch_limit" hcl:"prefetch_limit"`
}

type Telemetry struct {
	PrometheusAddr string `json:"prometheus_addr" hcl:"prometheus_addr"`
	Trace          bool   `json:"trace" hcl:"trace"`
	JaegerURL      string `json:"jaeger_url" hcl:"jaeger_url"`
}

// DefaultConfig returns the default sandbox config
func DefaultConfig() *Config {
	return &Config{
		Home:     DefaultHome,
		LogLevel: DefaultLogLevel,
		Source:   DefaultSource,
		Walrus:   &Walrus{},
		GRPC:     &Endpoint{},
		GraphQL:  &Endpoint{},
		Replay: &Replay{
			DynamicFieldPrefetch: true,
			PredictivePrefetch:   false,
			VersionPatch:         false,
			PrefetchDepth:        2,
			PrefetchLimit:        200,
		},
		Workers:   DefaultWorkers,
		Telemetry: &Telemetry{},
	}
}

// ReadConfigFile reads the config file from the specified path, builds a
// Config object and returns it. Fields not set in the file keep their
// default values.
func ReadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var unmarshalFunc func([]byte, interface{}) error

	switch {
	case strings.HasSuffix(path, ".hcl"):
		unmarshalFunc = hcl.Unmarshal
	case strings.HasSuffix(path, ".json"):
		unmarshalFunc = json.Unmarshal
	default:
		return nil, fmt.Errorf("suffix of %s is neither hcl nor json", path)
	}

	config := DefaultConfig()

	if err := unmarshalFunc(data, config); err != nil {
		return nil, err
	}

	config.fillBlocks()

	return config, nil
}

// fillBlocks replaces blocks a config file set to null
func (c *Config) fillBlocks() {
	def := DefaultConfig()

	if c.Walrus == nil {
		c.Walrus = def.Walrus
	}

	if c.GRPC == nil {
		c.GRPC = def.GRPC
	}

	if c.GraphQL == nil {
		c.GraphQL = def.GraphQL
	}

	if c.Replay == nil {
		c.Replay = def.Replay
	}

	if c.Telemetry == nil {
		c.Telemetry = def.Telemetry
	}
}

// Load builds the effective config: defaults, then the file at path when
// it is set, then the environment
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		var err error

		if cfg, err = ReadConfigFile(path); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overlays the SUI_* variables found by lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	c.fillBlocks()

	strs := map[string]*string{
		EnvHome:              &c.Home,
		EnvWalrusURL:         &c.Walrus.URL,
		EnvWalrusCheckpoints: &c.Walrus.CheckpointDir,
		EnvGRPCEndpoint:      &c.GRPC.URL,
		EnvGRPCAPIKey:        &c.GRPC.APIKey,
		EnvGraphQLEndpoint:   &c.GraphQL.URL,
		EnvGraphQLAPIKey:     &c.GraphQL.APIKey,
		EnvJaegerURL:         &c.Telemetry.JaegerURL,
	}

	for name, field := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*field = v
		}
	}

	bools := map[string]*bool{
		EnvPredictivePrefetch: &c.Replay.PredictivePrefetch,
		EnvTrace:              &c.Telemetry.Trace,
		EnvVersionPatch:       &c.Replay.VersionPatch,
	}

	for name, field := range bools {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}

		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		*field = b
	}

	return nil
}

// HomeDir is the expanded cache root
func (c *Config) HomeDir() string {
	return common.ExpandHome(c.Home)
}

// Validate checks the fields that have a closed set of values
func (c *Config) Validate() error {
	switch c.Source {
	case SourceWalrus, SourceGRPC, SourceHybrid:
	default:
		return fmt.Errorf("unknown source %q, want %s, %s or %s", c.Source, SourceWalrus, SourceGRPC, SourceHybrid)
	}

	if c.Home == "" {
		return fmt.Errorf("home directory not defined")
	}

	if c.Workers <= 0 {
		return fmt.Errorf("invalid worker count %d", c.Workers)
	}

	return nil
}
