package doctor

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/cache"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/config"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/common"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source/checkpoint"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

const dialTimeout = 3 * time.Second

var errUnhealthy = errors.New("environment has failing checks")

const (
	statusOK   = "ok"
	statusSkip = "skip"
	statusFail = "fail"
)

func GetCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "doctor",
		Short:        "Validates the local environment and the adapter endpoints",
		RunE:         runCommand,
		SilenceUsage: true,
	}
}

func runCommand(cmd *cobra.Command, _ []string) error {
	outputter := command.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	rt, err := helper.NewRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := runChecks(rt.Logger, rt.Config, net.DialTimeout)
	outputter.SetCommandResult(res)

	return err
}

type dialFunc func(network, address string, timeout time.Duration) (net.Conn, error)

// runChecks runs every check and aggregates the failures
func runChecks(logger hclog.Logger, cfg *config.Config, dial dialFunc) (*DoctorResult, error) {
	var (
		res  = &DoctorResult{}
		errs *multierror.Error
	)

	record := func(name, detail string, err error) {
		c := Check{Name: name, Status: statusOK, Detail: detail}

		if err != nil {
			c.Status = statusFail
			c.Detail = err.Error()
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
		}

		res.Checks = append(res.Checks, c)
	}

	skip := func(name, detail string) {
		res.Checks = append(res.Checks, Check{Name: name, Status: statusSkip, Detail: detail})
	}

	home := cfg.HomeDir()
	record("cache root writable", home, checkWritable(home))

	entries, err := checkIndex(logger, home)
	record("cache index opens", fmt.Sprintf("%d object versions indexed", entries), err)

	if dir := cfg.Walrus.CheckpointDir; dir != "" {
		n, err := checkCheckpoints(common.ExpandHome(dir))
		record("walrus checkpoints", fmt.Sprintf("%d blobs in %s", n, dir), err)
	} else {
		skip("walrus checkpoints", config.EnvWalrusCheckpoints+" not set")
	}

	endpoints := []struct {
		name string
		raw  string
	}{
		{config.SourceWalrus, cfg.Walrus.URL},
		{config.SourceGRPC, cfg.GRPC.URL},
		{"graphql", cfg.GraphQL.URL},
		{"jaeger", cfg.Telemetry.JaegerURL},
	}

	for _, e := range endpoints {
		name := e.name + " endpoint"

		if e.raw == "" {
			skip(name, "not configured")

			continue
		}

		addr, err := endpointAddress(e.raw)
		if err == nil {
			err = checkDial(dial, addr)
		}

		record(name, addr, err)
	}

	modules, err := checkFramework()
	record("framework loads", fmt.Sprintf("%d modules", modules), err)

	if path, ok := sandbox.FindSession(home); ok {
		_, err := sandbox.LoadSession(logger, home, sandbox.DefaultConfig())
		record("session restores", path, err)
	} else {
		skip("session restores", "no session")
	}

	if err := errs.ErrorOrNil(); err != nil {
		return res, fmt.Errorf("%w: %v", errUnhealthy, err)
	}

	return res, nil
}

func checkWritable(home string) error {
	if err := common.CreateDirSafe(home, 0o755); err != nil {
		return err
	}

	probe := filepath.Join(home, ".doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return err
	}

	return os.Remove(probe)
}

// checkIndex opens the store, which opens its leveldb version index
func checkIndex(logger hclog.Logger, home string) (int, error) {
	store, err := cache.Open(logger, home, nil)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	n := 0
	err = store.Objects(func(types.ObjectVersion) bool {
		n++

		return true
	})

	return n, err
}

func checkCheckpoints(dir string) (int, error) {
	blobs, err := checkpoint.NewDir(dir)
	if err != nil {
		return 0, err
	}

	seqs, err := blobs.Sequences()

	return len(seqs), err
}

func checkFramework() (int, error) {
	res, err := resolver.New(nil).WithFramework()
	if err != nil {
		return 0, err
	}

	return len(res.Modules()), nil
}

// endpointAddress turns an endpoint URL or host:port into a dialable
// host:port
func endpointAddress(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if _, _, splitErr := net.SplitHostPort(raw); splitErr == nil {
			return raw, nil
		}

		return "", fmt.Errorf("cannot parse endpoint %q", raw)
	}

	if u.Port() != "" {
		return u.Host, nil
	}

	port := 80
	if u.Scheme == "https" || u.Scheme == "grpcs" {
		port = 443
	}

	return net.JoinHostPort(u.Hostname(), strconv.Itoa(port)), nil
}

func checkDial(dial dialFunc, addr string) error {
	conn, err := dial("tcp", addr, dialTimeout)
	if err != nil {
		return err
	}

	return conn.Close()
}
