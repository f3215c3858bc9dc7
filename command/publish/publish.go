package publish

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/session"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/common"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/ptb"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/spf13/cobra"
)

const (
	depsFlag = "deps"

	moduleExt       = ".mv"
	bytecodeModules = "bytecode_modules"
)

var errNoModules = errors.New("no compiled modules found")

var (
	params = &publishParams{}
)

type publishParams struct {
	depsRaw []string
	deps    []types.Address
}

func (p *publishParams) validateFlags() error {
	p.deps = p.deps[:0]

	for _, raw := range p.depsRaw {
		addr, err := types.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("dependency %q: %w", raw, err)
		}

		p.deps = append(p.deps, addr)
	}

	return nil
}

func GetCommand() *cobra.Command {
	publishCmd := &cobra.Command{
		Use:          "publish <dir>",
		Short:        "Publishes the compiled modules of a directory into the session",
		Args:         cobra.ExactArgs(1),
		PreRunE:      runPreRun,
		RunE:         runCommand,
		SilenceUsage: true,
	}

	setFlags(publishCmd)
	session.RegisterTxFlags(publishCmd)

	return publishCmd
}

func setFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(
		&params.depsRaw,
		depsFlag,
		[]string{types.StdlibAddress.String(), types.FrameworkAddress.String()},
		"the packages the modules link against",
	)
}

func runPreRun(_ *cobra.Command, _ []string) error {
	return params.validateFlags()
}

// ReadModules reads the .mv files of dir, or of its bytecode_modules
// directory when it has one, ordered by file name
func ReadModules(dir string) ([][]byte, error) {
	if sub := filepath.Join(dir, bytecodeModules); common.DirectoryExists(sub) {
		dir = sub
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string

	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), moduleExt) {
			names = append(names, e.Name())
		}
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", errNoModules, dir)
	}

	sort.Strings(names)

	modules := make([][]byte, 0, len(names))

	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		modules = append(modules, b)
	}

	return modules, nil
}

func runCommand(cmd *cobra.Command, args []string) error {
	modules, err := ReadModules(args[0])
	if err != nil {
		return err
	}

	return session.Execute(cmd, func(env *sandbox.Env) (*ptb.Result, error) {
		return env.Publish(modules, params.deps)
	})
}
